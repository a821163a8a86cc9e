package jira

import "github.com/untibullet/service-review/internal/models"

// Имена статусов workflow ревью в Jira
const (
	StatusNew       = "NEW"
	StatusReview    = "REVIEW"
	StatusRejected  = "REJECTED"
	StatusApproved  = "APPROVED"
	StatusDone      = "DONE"
	StatusCompleted = "Completata"
)

// ClassifyStatus переводит статус Jira в доменный: REJECTED, APPROVED или PENDING для всего остального.
// DONE и "Completata" остались от старого workflow и тоже означают одобрение.
func ClassifyStatus(name string) models.ReviewStatus {
	// Имена сравниваются точно: "approved" из чужого workflow терминальным не считается
	switch name {
	case StatusRejected:
		return models.ReviewStatusRejected
	case StatusApproved, StatusDone, StatusCompleted:
		return models.ReviewStatusApproved
	default:
		return models.ReviewStatusPending
	}
}

// PriorityForScope сервисы национального уровня получают высокий приоритет
func PriorityForScope(scope models.Scope) Priority {
	if scope == models.ScopeNational {
		return PriorityHigh
	}
	return PriorityMedium
}
