package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/untibullet/service-review/internal/models"
)

// setupPostgres поднимает Postgres в контейнере или берет TEST_DB_DSN и накатывает миграции
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	ctx := context.Background()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		req := testcontainers.ContainerRequest{
			Image: "postgres:16-alpine",
			Env: map[string]string{
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_USER":     "test",
				"POSTGRES_DB":       "reviews",
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		}
		pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			t.Skipf("postgres container unavailable: %v", err)
		}
		t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

		host, err := pg.Host(ctx)
		require.NoError(t, err)
		port, err := pg.MappedPort(ctx, "5432")
		require.NoError(t, err)
		dsn = fmt.Sprintf("postgres://test:test@%s:%s/reviews?sslmode=disable", host, port.Port())
	}

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	_, err = pool.Exec(ctx, "TRUNCATE pending_reviews")
	require.NoError(t, err)
	return pool
}

func TestRepository_Integration(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	repo := New(pool, 3)

	for i := 0; i < 7; i++ {
		ack, err := repo.Insert(ctx, models.PendingReview{
			ServiceID:      fmt.Sprintf("s%02d", i),
			ServiceVersion: "v1",
			TicketID:       fmt.Sprintf("%d", 100+i),
			TicketKey:      fmt.Sprintf("IEST-%d", i),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), ack.RowsAffected)
	}

	t.Run("insert is idempotent per version", func(t *testing.T) {
		ack, err := repo.Insert(ctx, models.PendingReview{ServiceID: "s00", ServiceVersion: "v1", TicketID: "100", TicketKey: "IEST-0"})
		require.NoError(t, err)
		assert.Equal(t, int64(0), ack.RowsAffected)
	})

	t.Run("update status only from pending", func(t *testing.T) {
		row := models.PendingReview{ServiceID: "s06", ServiceVersion: "v1", TicketID: "106", TicketKey: "IEST-6", Status: models.ReviewStatusApproved}
		_, err := repo.UpdateStatus(ctx, row)
		require.NoError(t, err)

		row.Status = models.ReviewStatusRejected
		_, err = repo.UpdateStatus(ctx, row)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("stream pending pages", func(t *testing.T) {
		var sizes []int
		var ids []string
		res, err := repo.ExecuteOnPending(ctx, func(_ context.Context, page []models.PendingReview) error {
			sizes = append(sizes, len(page))
			for _, r := range page {
				ids = append(ids, r.ServiceID)
				assert.Equal(t, models.ReviewStatusPending, r.Status)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{3, 3}, sizes)
		assert.Equal(t, 2, res.Pages)
		assert.Equal(t, []string{"s00", "s01", "s02", "s03", "s04", "s05"}, ids)
	})

	t.Run("updates inside batch do not disturb the cursor", func(t *testing.T) {
		res, err := repo.ExecuteOnPending(ctx, func(ctx context.Context, page []models.PendingReview) error {
			for _, r := range page {
				r.Status = models.ReviewStatusRejected
				r.ExtraData = json.RawMessage(`{"reason":"test"}`)
				if _, err := repo.UpdateStatus(ctx, r); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 6, res.Rows)

		calls := 0
		_, err = repo.ExecuteOnPending(ctx, func(context.Context, []models.PendingReview) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Zero(t, calls)
	})

	t.Run("connection is released", func(t *testing.T) {
		assert.Zero(t, pool.Stat().AcquiredConns())
	})
}

func TestRepository_DecodeFailureAbortsRun(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	repo := New(pool, 10)

	_, err := repo.Insert(ctx, models.PendingReview{ServiceID: "ok", ServiceVersion: "v1", TicketID: "1", TicketKey: "IEST-1"})
	require.NoError(t, err)
	// Портим extra_data в обход jsonb, чтобы строка перестала разбираться
	_, err = pool.Exec(ctx, `ALTER TABLE pending_reviews ALTER COLUMN extra_data TYPE TEXT`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `TRUNCATE pending_reviews`)
		_, _ = pool.Exec(context.Background(), `ALTER TABLE pending_reviews ALTER COLUMN extra_data TYPE JSONB USING extra_data::jsonb`)
	})
	_, err = pool.Exec(ctx, `UPDATE pending_reviews SET extra_data = '{broken' WHERE service_id = 'ok'`)
	require.NoError(t, err)

	calls := 0
	_, err = repo.ExecuteOnPending(ctx, func(context.Context, []models.PendingReview) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrDecode)
	assert.Zero(t, calls)
	assert.Zero(t, pool.Stat().AcquiredConns())
}
