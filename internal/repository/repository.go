// repository/repository.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/untibullet/service-review/internal/models"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrDecode строка из таблицы не разбирается, прогон по курсору прерывается целиком
	ErrDecode = errors.New("failed to decode pending review")
)

// DefaultPageSize размер страницы курсора по умолчанию
const DefaultPageSize = 100

// Ack результат записи
type Ack struct {
	RowsAffected int64
}

// Result итог прохода по курсору
type Result struct {
	Pages int
	Rows  int
}

// BatchFunc обрабатывает одну страницу ожидающих ревью
type BatchFunc func(ctx context.Context, page []models.PendingReview) error

type Repository struct {
	pool     *pgxpool.Pool
	pageSize int
}

func New(pool *pgxpool.Pool, pageSize int) *Repository {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Repository{pool: pool, pageSize: pageSize}
}

// Insert добавляет новую запись в статусе PENDING.
// Повторная вставка той же версии сервиса с тем же тикетом ничего не меняет и возвращает RowsAffected == 0
func (r *Repository) Insert(ctx context.Context, review models.PendingReview) (Ack, error) {
	if review.Status == "" {
		review.Status = models.ReviewStatusPending
	}
	if review.Status != models.ReviewStatusPending {
		return Ack{}, fmt.Errorf("%w: new review must be %s, got %s", ErrInvalidInput, models.ReviewStatusPending, review.Status)
	}

	query := `
        INSERT INTO pending_reviews (service_id, service_version, ticket_id, ticket_key, status, extra_data)
        VALUES ($1, $2, $3, $4, $5::text::review_status, $6)
        ON CONFLICT (service_id, service_version, ticket_id) DO NOTHING
    `
	tag, err := r.pool.Exec(ctx, query,
		review.ServiceID, review.ServiceVersion, review.TicketID, review.TicketKey,
		string(review.Status), extraData(review),
	)
	if err != nil {
		return Ack{}, fmt.Errorf("failed to insert pending review: %w", err)
	}
	return Ack{RowsAffected: tag.RowsAffected()}, nil
}

// UpdateStatus переводит запись из PENDING в итоговый статус. Запись, которая уже не PENDING, не трогается
func (r *Repository) UpdateStatus(ctx context.Context, review models.PendingReview) (Ack, error) {
	if !review.Status.Terminal() {
		return Ack{}, fmt.Errorf("%w: status %q is not terminal", ErrInvalidInput, review.Status)
	}

	query := `
        UPDATE pending_reviews
        SET status = $1::text::review_status, ticket_key = $2, extra_data = COALESCE($3, extra_data), updated_at = NOW()
        WHERE service_id = $4 AND service_version = $5 AND ticket_id = $6 AND status = 'PENDING'
    `
	tag, err := r.pool.Exec(ctx, query,
		string(review.Status), review.TicketKey, extraData(review),
		review.ServiceID, review.ServiceVersion, review.TicketID,
	)
	if err != nil {
		return Ack{}, fmt.Errorf("failed to update pending review status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Ack{}, ErrNotFound
	}
	return Ack{RowsAffected: tag.RowsAffected()}, nil
}

// ExecuteOnPending проходит по всем записям в PENDING серверным курсором и вызывает fn
// для каждой непустой страницы. Следующая страница читается только после обработки предыдущей.
// Соединение держится весь проход и возвращается в пул при любом исходе
func (r *Repository) ExecuteOnPending(ctx context.Context, fn BatchFunc) (Result, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return Result{}, fmt.Errorf("failed to begin cursor transaction: %w", err)
	}
	// Rollback закрывает курсор и освобождает соединение, после Commit это no-op
	defer tx.Rollback(ctx)

	cur, err := declarePendingCursor(ctx, tx)
	if err != nil {
		return Result{}, err
	}

	res, err := drain(ctx, cur, r.pageSize, fn)
	if err != nil {
		return res, err
	}

	if err := cur.Close(ctx); err != nil {
		return res, err
	}
	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("failed to commit cursor transaction: %w", err)
	}
	return res, nil
}

// drain читает курсор страницами, пока очередная страница не окажется пустой
func drain(ctx context.Context, cur pageFetcher, pageSize int, fn BatchFunc) (Result, error) {
	var res Result
	for {
		page, err := cur.Fetch(ctx, pageSize)
		if err != nil {
			return res, err
		}
		if len(page) == 0 {
			return res, nil
		}
		if err := fn(ctx, page); err != nil {
			return res, fmt.Errorf("failed to process page %d: %w", res.Pages+1, err)
		}
		res.Pages++
		res.Rows += len(page)
	}
}

func extraData(review models.PendingReview) any {
	if len(review.ExtraData) == 0 {
		return nil
	}
	return []byte(review.ExtraData)
}
