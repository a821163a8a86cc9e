package jira

import (
	"context"
	"fmt"
	"strings"

	"github.com/untibullet/service-review/internal/models"
)

// API операции клиента, которые нужны прокси
type API interface {
	CreateIssue(ctx context.Context, in IssueInput) (*Ticket, error)
	UpdateIssue(ctx context.Context, key string, in IssueInput) error
	ApplyTransition(ctx context.Context, key, transitionID, comment string) error
	SearchIssues(ctx context.Context, q SearchQuery) (*SearchResult, error)
}

// CustomFields идентификаторы пользовательских полей проекта ревью
type CustomFields struct {
	OrgFiscalCode string
	OrgName       string
	DelegateName  string
	DelegateEmail string
	Contract      string
}

// ProxyConfig настройки задач ревью
type ProxyConfig struct {
	ProjectKey         string
	ReopenTransitionID string
	ReopenComment      string
	ContractValue      string
	Fields             CustomFields
}

// searchFields поля, которые запрашиваются во всех поисках
var searchFields = []string{"summary", "status", "comment", "labels", "statuscategorychangedate"}

// Proxy знает, как выглядит задача ревью сервиса и как читать ее статус
type Proxy struct {
	api API
	cfg ProxyConfig
}

// NewProxy создает прокси поверх клиента Jira
func NewProxy(api API, cfg ProxyConfig) *Proxy {
	if cfg.ReopenComment == "" {
		cfg.ReopenComment = "The service has been updated and needs a new review."
	}
	return &Proxy{api: api, cfg: cfg}
}

// CreateJiraIssue создает задачу ревью для сервиса
func (p *Proxy) CreateJiraIssue(ctx context.Context, svc models.Service, delegate models.Delegate, firstPublication bool) (*Ticket, error) {
	return p.api.CreateIssue(ctx, p.issueInput(svc, delegate, firstPublication))
}

// UpdateJiraIssue перезаписывает задачу ревью актуальными данными сервиса
func (p *Proxy) UpdateJiraIssue(ctx context.Context, key string, svc models.Service, delegate models.Delegate, firstPublication bool) error {
	return p.api.UpdateIssue(ctx, key, p.issueInput(svc, delegate, firstPublication))
}

// ReOpenJiraIssue возвращает задачу на ревью фиксированным переходом с комментарием
func (p *Proxy) ReOpenJiraIssue(ctx context.Context, key string) error {
	return p.api.ApplyTransition(ctx, key, p.cfg.ReopenTransitionID, p.cfg.ReopenComment)
}

// GetJiraIssueByServiceID ищет задачу сервиса по точному совпадению заголовка
func (p *Proxy) GetJiraIssueByServiceID(ctx context.Context, serviceID string) (*Ticket, bool, error) {
	return p.findByTitle(ctx, serviceID, nil)
}

// GetPendingAndRejectedJiraIssueByServiceID то же самое, но только среди задач в NEW, REVIEW и REJECTED
func (p *Proxy) GetPendingAndRejectedJiraIssueByServiceID(ctx context.Context, serviceID string) (*Ticket, bool, error) {
	return p.findByTitle(ctx, serviceID, []string{StatusNew, StatusReview, StatusRejected})
}

// SearchJiraIssuesByKeyAndStatus проверяет пачку задач разом. maxResults равен числу ключей,
// чтобы страница всегда запрашивалась целиком
func (p *Proxy) SearchJiraIssuesByKeyAndStatus(ctx context.Context, keys, statuses []string) (*SearchResult, error) {
	if len(keys) == 0 {
		return &SearchResult{}, nil
	}
	jql := fmt.Sprintf("project = %s AND key IN (%s)", quote(p.cfg.ProjectKey), quoteList(keys))
	if len(statuses) > 0 {
		jql += fmt.Sprintf(" AND status IN (%s)", quoteList(statuses))
	}
	return p.api.SearchIssues(ctx, SearchQuery{
		JQL:        jql,
		Fields:     searchFields,
		MaxResults: len(keys),
	})
}

func (p *Proxy) findByTitle(ctx context.Context, serviceID string, statuses []string) (*Ticket, bool, error) {
	title := TicketTitle(serviceID)
	// В Jira ~ ищет по словам, поэтому фраза берется в кавычки, а точное совпадение проверяется ниже
	jql := fmt.Sprintf("project = %s AND summary ~ %s", quote(p.cfg.ProjectKey), quote(quote(title)))
	if len(statuses) > 0 {
		jql += fmt.Sprintf(" AND status IN (%s)", quoteList(statuses))
	}
	jql += " ORDER BY created DESC"

	res, err := p.api.SearchIssues(ctx, SearchQuery{
		JQL:        jql,
		Fields:     searchFields,
		MaxResults: 10,
	})
	if err != nil {
		return nil, false, err
	}
	// Выдача отсортирована по дате создания, при нескольких совпадениях берем самую свежую задачу
	for i := range res.Issues {
		if res.Issues[i].Fields.Summary == title {
			return &res.Issues[i], true, nil
		}
	}
	return nil, false, nil
}

func (p *Proxy) issueInput(svc models.Service, delegate models.Delegate, firstPublication bool) IssueInput {
	fields := make(map[string]any)
	set := func(id string, v any) {
		if id != "" {
			fields[id] = v
		}
	}
	set(p.cfg.Fields.OrgFiscalCode, svc.Organization.FiscalCode)
	set(p.cfg.Fields.OrgName, svc.Organization.Name)
	set(p.cfg.Fields.DelegateName, delegate.FullName())
	set(p.cfg.Fields.DelegateEmail, delegate.Email)
	if p.cfg.ContractValue != "" {
		set(p.cfg.Fields.Contract, map[string]string{"value": p.cfg.ContractValue})
	}

	return IssueInput{
		Title:        TicketTitle(svc.ID),
		Description:  buildDescription(svc, delegate, firstPublication),
		Priority:     PriorityForScope(svc.Scope),
		Labels:       []string{ServiceLabel(svc.ID)},
		CustomFields: fields,
	}
}

var jqlEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quote(s string) string {
	return `"` + jqlEscaper.Replace(s) + `"`
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quote(v)
	}
	return strings.Join(quoted, ", ")
}
