// Package review открывает тикеты ревью по запросам на публикацию сервисов
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/untibullet/service-review/internal/jira"
	"github.com/untibullet/service-review/internal/models"
	"github.com/untibullet/service-review/internal/owner"
	"github.com/untibullet/service-review/internal/repository"
)

// ErrInvalidRequest запрос не разобран или не прошел валидацию, побочных эффектов не было
var ErrInvalidRequest = errors.New("invalid review request")

// Tracker операции прокси Jira, нужные для открытия ревью
type Tracker interface {
	GetJiraIssueByServiceID(ctx context.Context, serviceID string) (*jira.Ticket, bool, error)
	GetPendingAndRejectedJiraIssueByServiceID(ctx context.Context, serviceID string) (*jira.Ticket, bool, error)
	CreateJiraIssue(ctx context.Context, svc models.Service, delegate models.Delegate, firstPublication bool) (*jira.Ticket, error)
	UpdateJiraIssue(ctx context.Context, key string, svc models.Service, delegate models.Delegate, firstPublication bool) error
	ReOpenJiraIssue(ctx context.Context, key string) error
}

// Store запись ожидающих ревью
type Store interface {
	Insert(ctx context.Context, review models.PendingReview) (repository.Ack, error)
}

// Outcome что было сделано по запросу
type Outcome struct {
	TicketID      string `json:"ticket_id"`
	TicketKey     string `json:"ticket_key"`
	TicketCreated bool   `json:"ticket_created"`
	Reopened      bool   `json:"reopened"`
	RowInserted   bool   `json:"row_inserted"`
}

type Submitter struct {
	tracker Tracker
	owners  owner.Resolver
	store   Store
	logger  *zap.Logger
}

// NewSubmitter создает обработчик запросов на ревью
func NewSubmitter(tracker Tracker, owners owner.Resolver, store Store, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{tracker: tracker, owners: owners, store: store, logger: logger}
}

// DecodeRequest разбирает и валидирует сообщение с запросом
func DecodeRequest(raw []byte) (models.ReviewRequest, error) {
	var req models.ReviewRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return req, nil
}

// Submit гарантирует, что для сервиса есть тикет, и записывает ожидающее ревью.
// Любая ошибка прерывает обработку: повторную доставку обеспечивает триггер
func (s *Submitter) Submit(ctx context.Context, raw []byte) (*Outcome, error) {
	req, err := DecodeRequest(raw)
	if err != nil {
		return nil, err
	}
	svc := req.Service
	log := s.logger.With(zap.String("service_id", svc.ID), zap.String("service_version", svc.Version))

	ticket, found, err := s.tracker.GetJiraIssueByServiceID(ctx, svc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up ticket: %w", err)
	}

	out := &Outcome{}
	if found {
		log.Info("reusing existing review ticket", zap.String("ticket_key", ticket.Key))
	} else {
		if ticket, err = s.createTicket(ctx, req); err != nil {
			return nil, err
		}
		out.TicketCreated = true
		log.Info("review ticket created", zap.String("ticket_key", ticket.Key))
	}

	if err := s.insertPending(ctx, svc, ticket, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Resubmit повторное ревью: обновляет открытый или отклоненный тикет и при отклонении возвращает его на ревью.
// Если такого тикета нет, работает как Submit
func (s *Submitter) Resubmit(ctx context.Context, raw []byte) (*Outcome, error) {
	req, err := DecodeRequest(raw)
	if err != nil {
		return nil, err
	}
	svc := req.Service
	log := s.logger.With(zap.String("service_id", svc.ID), zap.String("service_version", svc.Version))

	ticket, found, err := s.tracker.GetPendingAndRejectedJiraIssueByServiceID(ctx, svc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up open ticket: %w", err)
	}

	out := &Outcome{}
	if !found {
		if ticket, err = s.createTicket(ctx, req); err != nil {
			return nil, err
		}
		out.TicketCreated = true
		log.Info("review ticket created", zap.String("ticket_key", ticket.Key))
	} else {
		delegate, err := s.owners.GetDelegateFromServiceID(ctx, svc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve delegate: %w", err)
		}
		if err := s.tracker.UpdateJiraIssue(ctx, ticket.Key, svc, delegate, req.FirstPublication); err != nil {
			return nil, fmt.Errorf("failed to update ticket %s: %w", ticket.Key, err)
		}
		if jira.ClassifyStatus(ticket.StatusName()) == models.ReviewStatusRejected {
			if err := s.tracker.ReOpenJiraIssue(ctx, ticket.Key); err != nil {
				return nil, fmt.Errorf("failed to reopen ticket %s: %w", ticket.Key, err)
			}
			out.Reopened = true
		}
		log.Info("review ticket updated", zap.String("ticket_key", ticket.Key), zap.Bool("reopened", out.Reopened))
	}

	if err := s.insertPending(ctx, svc, ticket, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Submitter) createTicket(ctx context.Context, req models.ReviewRequest) (*jira.Ticket, error) {
	delegate, err := s.owners.GetDelegateFromServiceID(ctx, req.Service.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve delegate: %w", err)
	}
	ticket, err := s.tracker.CreateJiraIssue(ctx, req.Service, delegate, req.FirstPublication)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	return ticket, nil
}

func (s *Submitter) insertPending(ctx context.Context, svc models.Service, ticket *jira.Ticket, out *Outcome) error {
	ack, err := s.store.Insert(ctx, models.PendingReview{
		ServiceID:      svc.ID,
		ServiceVersion: svc.Version,
		TicketID:       ticket.ID,
		TicketKey:      ticket.Key,
		Status:         models.ReviewStatusPending,
	})
	if err != nil {
		return fmt.Errorf("failed to record pending review: %w", err)
	}
	out.TicketID = ticket.ID
	out.TicketKey = ticket.Key
	out.RowInserted = ack.RowsAffected > 0
	return nil
}
