package jira

import (
	"fmt"
	"strings"

	"github.com/untibullet/service-review/internal/models"
)

// MissingData подставляется вместо пустых значений в описании задачи
const MissingData = "MISSING DATA"

func orMissing(s string) string {
	if strings.TrimSpace(s) == "" {
		return MissingData
	}
	return s
}

// TicketTitle заголовок задачи, по нему же ищется задача сервиса
func TicketTitle(serviceID string) string {
	return "Review #" + serviceID
}

// ServiceLabel метка задачи с идентификатором сервиса
func ServiceLabel(serviceID string) string {
	return "service-" + serviceID
}

// buildDescription собирает описание задачи в разметке Jira wiki
func buildDescription(svc models.Service, delegate models.Delegate, firstPublication bool) string {
	var b strings.Builder

	publication := "update of a published service"
	if firstPublication {
		publication = "first publication"
	}

	b.WriteString("h3. Service\n")
	line(&b, "ID", svc.ID)
	line(&b, "Version", svc.Version)
	line(&b, "Name", svc.Name)
	line(&b, "Description", svc.Description)
	line(&b, "Scope", string(svc.Scope))
	line(&b, "Publication", publication)

	b.WriteString("\nh3. Organization\n")
	line(&b, "Fiscal code", svc.Organization.FiscalCode)
	line(&b, "Name", svc.Organization.Name)

	b.WriteString("\nh3. Contacts and privacy\n")
	line(&b, "Email", svc.Metadata.Email)
	line(&b, "PEC", svc.Metadata.PEC)
	line(&b, "Phone", svc.Metadata.Phone)
	line(&b, "Support URL", svc.Metadata.SupportURL)
	line(&b, "Privacy URL", svc.Metadata.PrivacyURL)
	line(&b, "Terms of service URL", svc.Metadata.TOSURL)
	line(&b, "Web URL", svc.Metadata.WebURL)
	line(&b, "App iOS", svc.Metadata.AppIOS)
	line(&b, "App Android", svc.Metadata.AppAndroid)

	b.WriteString("\nh3. Delegate\n")
	line(&b, "First name", delegate.FirstName)
	line(&b, "Last name", delegate.LastName)
	line(&b, "Email", delegate.Email)
	line(&b, "Permissions", strings.Join(delegate.Permissions, ", "))

	return b.String()
}

func line(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "*%s:* %s\n", label, orMissing(value))
}
