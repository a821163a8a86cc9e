// Package reconcile переносит решения ревью из Jira в хранилище жизненного цикла
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/untibullet/service-review/internal/jira"
	"github.com/untibullet/service-review/internal/lifecycle"
	"github.com/untibullet/service-review/internal/models"
	"github.com/untibullet/service-review/internal/repository"
)

// ErrRunInProgress предыдущий прогон этого процессора еще не закончился
var ErrRunInProgress = errors.New("reconciliation run already in progress")

// Tracker поиск тикетов страницы
type Tracker interface {
	SearchJiraIssuesByKeyAndStatus(ctx context.Context, keys, statuses []string) (*jira.SearchResult, error)
}

// Store хранилище ожидающих ревью
type Store interface {
	ExecuteOnPending(ctx context.Context, fn repository.BatchFunc) (repository.Result, error)
	UpdateStatus(ctx context.Context, review models.PendingReview) (repository.Ack, error)
}

// Strategy способ записи решения в автомат
type Strategy int

const (
	// StrategyApply применяет действие approve/reject
	StrategyApply Strategy = iota
	// StrategyOverride перезаписывает элемент целиком с известным состоянием
	StrategyOverride
)

// Mode словарь статусов поиска и способ перехода
type Mode struct {
	Name     string
	Statuses []string
	Strategy Strategy
}

// PrimaryMode основной путь: текущий workflow Jira
func PrimaryMode() Mode {
	return Mode{
		Name:     "primary",
		Statuses: []string{jira.StatusApproved, jira.StatusRejected},
		Strategy: StrategyApply,
	}
}

// LegacyMode старый workflow, где одобрение называлось DONE или Completata
func LegacyMode() Mode {
	return Mode{
		Name:     "legacy",
		Statuses: []string{jira.StatusDone, jira.StatusCompleted, jira.StatusRejected},
		Strategy: StrategyOverride,
	}
}

// IssueItemPair строка ожидающего ревью и ее тикет в терминальном статусе
type IssueItemPair struct {
	Review  models.PendingReview
	Ticket  jira.Ticket
	Outcome models.ReviewStatus
}

// Report итоги прогона
type Report struct {
	Pages      int `json:"pages"`
	Rows       int `json:"rows"`
	Pairs      int `json:"pairs"`
	Reconciled int `json:"reconciled"`
	Skipped    int `json:"skipped"`
	Tolerated  int `json:"tolerated"`
	Failed     int `json:"failed"`
}

func (r *Report) add(o Report) {
	r.Pairs += o.Pairs
	r.Reconciled += o.Reconciled
	r.Skipped += o.Skipped
	r.Tolerated += o.Tolerated
	r.Failed += o.Failed
}

type Processor struct {
	mode      Mode
	tracker   Tracker
	lifecycle lifecycle.Store
	store     Store
	logger    *zap.Logger
	running   atomic.Bool
}

// NewProcessor создает процессор синхронизации для заданного режима
func NewProcessor(mode Mode, tracker Tracker, fsm lifecycle.Store, store Store, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		mode:      mode,
		tracker:   tracker,
		lifecycle: fsm,
		store:     store,
		logger:    logger.With(zap.String("mode", mode.Name)),
	}
}

// Mode режим процессора
func (p *Processor) Mode() Mode {
	return p.mode
}

// Run проходит весь PENDING-бэклог страницами.
// Ошибки отдельных пар попадают в отчет, прогон прерывают только ошибки страницы и курсора
func (p *Processor) Run(ctx context.Context) (Report, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Report{}, ErrRunInProgress
	}
	defer p.running.Store(false)

	var report Report
	res, err := p.store.ExecuteOnPending(ctx, func(ctx context.Context, page []models.PendingReview) error {
		pairs, err := p.BuildIssueItemPairs(ctx, page)
		if err != nil {
			return err
		}
		pageReport, err := p.UpdateReview(ctx, pairs)
		report.add(pageReport)
		if err != nil {
			p.logger.Warn("some reviews were not reconciled",
				zap.Int("rows", len(page)),
				zap.Int("failed", pageReport.Failed),
				zap.Error(err),
			)
		}
		return nil
	})
	report.Pages = res.Pages
	report.Rows = res.Rows
	if err != nil {
		p.logger.Error("reconciliation run aborted", zap.Int("page", res.Pages+1), zap.Error(err))
		return report, fmt.Errorf("failed to reconcile pending reviews: %w", err)
	}

	p.logger.Info("reconciliation run finished",
		zap.Int("pages", report.Pages),
		zap.Int("rows", report.Rows),
		zap.Int("reconciled", report.Reconciled),
		zap.Int("skipped", report.Skipped),
		zap.Int("tolerated", report.Tolerated),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// BuildIssueItemPairs один поиск на страницу, тикеты соединяются со строками по id тикета.
// Строки с нетерминальным тикетом пар не дают и остаются PENDING
func (p *Processor) BuildIssueItemPairs(ctx context.Context, page []models.PendingReview) ([]IssueItemPair, error) {
	if len(page) == 0 {
		return nil, nil
	}
	// Новая версия сервиса переиспользует тикет, поэтому на один тикет может приходиться несколько строк
	byTicket := make(map[string][]models.PendingReview, len(page))
	seenKeys := make(map[string]struct{}, len(page))
	keys := make([]string, 0, len(page))
	for _, row := range page {
		byTicket[row.TicketID] = append(byTicket[row.TicketID], row)
		if _, ok := seenKeys[row.TicketKey]; !ok {
			seenKeys[row.TicketKey] = struct{}{}
			keys = append(keys, row.TicketKey)
		}
	}

	res, err := p.tracker.SearchJiraIssuesByKeyAndStatus(ctx, keys, p.mode.Statuses)
	if err != nil {
		return nil, fmt.Errorf("failed to search tickets: %w", err)
	}

	pairs := make([]IssueItemPair, 0, len(res.Issues))
	for _, ticket := range res.Issues {
		rows, ok := byTicket[ticket.ID]
		if !ok {
			p.logger.Warn("ticket without pending review", zap.String("ticket_key", ticket.Key), zap.String("ticket_id", ticket.ID))
			continue
		}
		outcome := jira.ClassifyStatus(ticket.StatusName())
		if !outcome.Terminal() {
			continue
		}
		for _, row := range rows {
			pairs = append(pairs, IssueItemPair{Review: row, Ticket: ticket, Outcome: outcome})
		}
		// Тикет, вернувшийся в поиске дважды, не должен дать пары повторно
		delete(byTicket, ticket.ID)
	}
	return pairs, nil
}

// pairResult чем закончилась обработка одной пары
type pairResult int

const (
	pairReconciled pairResult = iota
	pairSkipped
	pairTolerated
)

// UpdateReview параллельно обрабатывает пары страницы.
// Ошибка пары не мешает остальным, возвращается объединение ошибок всех неудачных пар
func (p *Processor) UpdateReview(ctx context.Context, pairs []IssueItemPair) (Report, error) {
	report := Report{Pairs: len(pairs)}
	if len(pairs) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	wp := pool.New().WithErrors().WithMaxGoroutines(len(pairs))
	for _, pair := range pairs {
		wp.Go(func() error {
			result, err := p.updatePair(ctx, pair)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				return err
			}
			switch result {
			case pairSkipped:
				report.Skipped++
			case pairTolerated:
				report.Tolerated++
			}
			report.Reconciled++
			return nil
		})
	}
	return report, wp.Wait()
}

func (p *Processor) updatePair(ctx context.Context, pair IssueItemPair) (pairResult, error) {
	review := pair.Review
	log := p.logger.With(
		zap.String("service_id", review.ServiceID),
		zap.String("service_version", review.ServiceVersion),
		zap.String("ticket_key", pair.Ticket.Key),
		zap.String("status", pair.Outcome.String()),
	)

	item, found, err := p.lifecycle.Fetch(ctx, review.ServiceID)
	if err != nil {
		log.Error("failed to fetch service", zap.Error(err))
		return 0, fmt.Errorf("service %s: failed to fetch: %w", review.ServiceID, err)
	}
	if !found {
		log.Error("service not found in lifecycle store")
		return 0, fmt.Errorf("service %s: %w", review.ServiceID, &lifecycle.FsmError{Kind: lifecycle.ItemNotFound})
	}

	data, action, state := transitionData(pair)
	result := pairReconciled
	switch {
	case item.Deleted():
		log.Warn("service is deleted, transition skipped")
		result = pairSkipped
	default:
		if err := p.transition(ctx, review, item, action, state, data); err != nil {
			var fsmErr *lifecycle.FsmError
			if !errors.As(err, &fsmErr) || !fsmErr.Kind.Tolerant() {
				log.Error("failed to apply transition", zap.Error(err))
				return 0, fmt.Errorf("service %s: failed to %s: %w", review.ServiceID, action, err)
			}
			log.Warn("transition not applicable, decision already reflected", zap.Error(err))
			result = pairTolerated
		}
	}

	extra, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("service %s: failed to marshal extra data: %w", review.ServiceID, err)
	}
	review.Status = pair.Outcome
	review.ExtraData = extra
	if _, err := p.store.UpdateStatus(ctx, review); err != nil {
		log.Error("failed to record review outcome", zap.Error(err))
		return 0, fmt.Errorf("service %s: failed to update pending review: %w", review.ServiceID, err)
	}
	log.Debug("review reconciled")
	return result, nil
}

func (p *Processor) transition(ctx context.Context, review models.PendingReview, item *lifecycle.Item, action, state string, data any) error {
	switch p.mode.Strategy {
	case StrategyOverride:
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		_, err = p.lifecycle.Override(ctx, review.ServiceID, lifecycle.Item{
			ID:      item.ID,
			Version: item.Version,
			State:   state,
			Data:    raw,
		})
		return err
	default:
		_, err := p.lifecycle.Apply(ctx, action, review.ServiceID, data)
		return err
	}
}

// transitionData данные перехода, имя действия и целевое состояние для исхода пары
func transitionData(pair IssueItemPair) (any, string, string) {
	if pair.Outcome == models.ReviewStatusRejected {
		return lifecycle.RejectData{Reason: pair.Ticket.RejectionReason()}, lifecycle.ActionReject, lifecycle.StateRejected
	}
	return lifecycle.ApproveData{ApprovalDate: pair.Ticket.ApprovalDate()}, lifecycle.ActionApprove, lifecycle.StateApproved
}
