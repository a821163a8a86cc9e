package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/untibullet/service-review/internal/models"
)

const pendingCursorName = "pending_reviews_cursor"

// pageFetcher источник страниц для drain
type pageFetcher interface {
	Fetch(ctx context.Context, n int) ([]models.PendingReview, error)
}

// txCursor серверный курсор Postgres, живет внутри транзакции
type txCursor struct {
	tx   pgx.Tx
	name string
}

func declarePendingCursor(ctx context.Context, tx pgx.Tx) (*txCursor, error) {
	query := `
        DECLARE ` + pendingCursorName + ` NO SCROLL CURSOR FOR
        SELECT service_id, service_version, ticket_id, ticket_key, status::text, extra_data
        FROM pending_reviews
        WHERE status = 'PENDING'
        ORDER BY service_id, service_version, ticket_id
    `
	if _, err := tx.Exec(ctx, query); err != nil {
		return nil, fmt.Errorf("failed to declare pending reviews cursor: %w", err)
	}
	return &txCursor{tx: tx, name: pendingCursorName}, nil
}

// Fetch читает следующие n строк курсора
func (c *txCursor) Fetch(ctx context.Context, n int) ([]models.PendingReview, error) {
	rows, err := c.tx.Query(ctx, fmt.Sprintf("FETCH FORWARD %d FROM %s", n, c.name), pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending reviews: %w", err)
	}
	defer rows.Close()

	page := make([]models.PendingReview, 0, n)
	for rows.Next() {
		review, err := scanPendingReview(rows)
		if err != nil {
			return nil, err
		}
		page = append(page, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending reviews: %w", err)
	}
	return page, nil
}

// Close закрывает курсор до конца транзакции
func (c *txCursor) Close(ctx context.Context) error {
	if _, err := c.tx.Exec(ctx, "CLOSE "+c.name); err != nil {
		return fmt.Errorf("failed to close pending reviews cursor: %w", err)
	}
	return nil
}

func scanPendingReview(rows pgx.Rows) (models.PendingReview, error) {
	var (
		review models.PendingReview
		status string
		extra  []byte
	)
	if err := rows.Scan(&review.ServiceID, &review.ServiceVersion, &review.TicketID, &review.TicketKey, &status, &extra); err != nil {
		return review, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	st, err := models.ParseReviewStatus(status)
	if err != nil {
		return review, fmt.Errorf("%w: service %s: %v", ErrDecode, review.ServiceID, err)
	}
	review.Status = st

	if len(extra) > 0 {
		if !json.Valid(extra) {
			return review, fmt.Errorf("%w: service %s: extra_data is not valid json", ErrDecode, review.ServiceID)
		}
		review.ExtraData = json.RawMessage(extra)
	}
	return review, nil
}
