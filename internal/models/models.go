// models/models.go
package models

import (
	"encoding/json"
	"fmt"
)

// ReviewStatus статус записи о ревью в таблице pending_reviews
type ReviewStatus string

// Константы статусов ревью. Допустимы только переходы PENDING -> {APPROVED, REJECTED, ABORTED}
const (
	ReviewStatusPending  ReviewStatus = "PENDING"
	ReviewStatusApproved ReviewStatus = "APPROVED"
	ReviewStatusRejected ReviewStatus = "REJECTED"
	ReviewStatusAborted  ReviewStatus = "ABORTED"
)

// ParseReviewStatus разбирает статус, прочитанный из базы
func ParseReviewStatus(s string) (ReviewStatus, error) {
	switch st := ReviewStatus(s); st {
	case ReviewStatusPending, ReviewStatusApproved, ReviewStatusRejected, ReviewStatusAborted:
		return st, nil
	default:
		return "", fmt.Errorf("unknown review status %q", s)
	}
}

// Terminal сообщает, что ревью завершено
func (s ReviewStatus) Terminal() bool {
	return s == ReviewStatusApproved || s == ReviewStatusRejected || s == ReviewStatusAborted
}

func (s ReviewStatus) String() string {
	return string(s)
}

// Scope область действия сервиса
type Scope string

const (
	ScopeNational Scope = "NATIONAL"
	ScopeLocal    Scope = "LOCAL"
)

// PendingReview представляет строку таблицы pending_reviews
type PendingReview struct {
	ServiceID      string          `json:"service_id" db:"service_id"`
	ServiceVersion string          `json:"service_version" db:"service_version"`
	TicketID       string          `json:"ticket_id" db:"ticket_id"`
	TicketKey      string          `json:"ticket_key" db:"ticket_key"`
	Status         ReviewStatus    `json:"status" db:"status"`
	ExtraData      json.RawMessage `json:"extra_data,omitempty" db:"extra_data"`
}

// Organization организация, которой принадлежит сервис
type Organization struct {
	FiscalCode string `json:"fiscal_code"`
	Name       string `json:"name"`
}

// ServiceMetadata контактные данные и ссылки сервиса
type ServiceMetadata struct {
	Email      string `json:"email,omitempty"`
	PEC        string `json:"pec,omitempty"`
	Phone      string `json:"phone,omitempty"`
	SupportURL string `json:"support_url,omitempty"`
	PrivacyURL string `json:"privacy_url,omitempty"`
	TOSURL     string `json:"tos_url,omitempty"`
	WebURL     string `json:"web_url,omitempty"`
	AppIOS     string `json:"app_ios,omitempty"`
	AppAndroid string `json:"app_android,omitempty"`
}

// Service снимок сервиса, отправленного на ревью
type Service struct {
	ID           string          `json:"id"`
	Version      string          `json:"version"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Scope        Scope           `json:"scope"`
	Organization Organization    `json:"organization"`
	Metadata     ServiceMetadata `json:"metadata"`
}

// Delegate владелец подписки, который запросил публикацию
type Delegate struct {
	FirstName   string   `json:"first_name,omitempty"`
	LastName    string   `json:"last_name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Permissions []string `json:"permissions"`
}

// FullName возвращает имя и фамилию делегата через пробел
func (d Delegate) FullName() string {
	switch {
	case d.FirstName == "":
		return d.LastName
	case d.LastName == "":
		return d.FirstName
	default:
		return d.FirstName + " " + d.LastName
	}
}

// ReviewRequest сообщение с запросом на ревью
type ReviewRequest struct {
	Service          Service `json:"service"`
	FirstPublication bool    `json:"first_publication"`
}

// Validate проверяет обязательные поля запроса
func (r ReviewRequest) Validate() error {
	switch {
	case r.Service.ID == "":
		return fmt.Errorf("service.id is required")
	case r.Service.Version == "":
		return fmt.Errorf("service.version is required")
	case r.Service.Name == "":
		return fmt.Errorf("service.name is required")
	case r.Service.Organization.FiscalCode == "":
		return fmt.Errorf("service.organization.fiscal_code is required")
	}
	if r.Service.Scope != ScopeNational && r.Service.Scope != ScopeLocal {
		return fmt.Errorf("service.scope must be %s or %s, got %q", ScopeNational, ScopeLocal, r.Service.Scope)
	}
	return nil
}
