package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/untibullet/service-review/internal/models"
)

// sliceCursor отдает заранее заданные строки страницами, как FETCH FORWARD n
type sliceCursor struct {
	rows    []models.PendingReview
	pos     int
	fetches int
	failAt  int
}

func (c *sliceCursor) Fetch(_ context.Context, n int) ([]models.PendingReview, error) {
	c.fetches++
	if c.failAt > 0 && c.fetches == c.failAt {
		return nil, fmt.Errorf("%w: broken row", ErrDecode)
	}
	end := c.pos + n
	if end > len(c.rows) {
		end = len(c.rows)
	}
	page := c.rows[c.pos:end]
	c.pos = end
	return page, nil
}

func makeRows(n int) []models.PendingReview {
	rows := make([]models.PendingReview, n)
	for i := range rows {
		rows[i] = models.PendingReview{
			ServiceID:      fmt.Sprintf("s%03d", i),
			ServiceVersion: "v1",
			TicketID:       fmt.Sprintf("%d", 10000+i),
			TicketKey:      fmt.Sprintf("IEST-%d", i),
			Status:         models.ReviewStatusPending,
		}
	}
	return rows
}

func TestDrain_CallsBatchCeilNOverP(t *testing.T) {
	tests := []struct {
		rows, pageSize, wantPages, lastPage int
	}{
		{rows: 0, pageSize: 5, wantPages: 0},
		{rows: 1, pageSize: 5, wantPages: 1, lastPage: 1},
		{rows: 5, pageSize: 5, wantPages: 1, lastPage: 5},
		{rows: 12, pageSize: 5, wantPages: 3, lastPage: 2},
		{rows: 100, pageSize: 1, wantPages: 100, lastPage: 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_rows_by_%d", tt.rows, tt.pageSize), func(t *testing.T) {
			cur := &sliceCursor{rows: makeRows(tt.rows)}
			var sizes []int
			res, err := drain(context.Background(), cur, tt.pageSize, func(_ context.Context, page []models.PendingReview) error {
				sizes = append(sizes, len(page))
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPages, res.Pages)
			assert.Equal(t, tt.rows, res.Rows)
			assert.Len(t, sizes, tt.wantPages)
			if tt.wantPages > 0 {
				assert.Equal(t, tt.lastPage, sizes[len(sizes)-1])
			}
			// Последний FETCH всегда пустой
			assert.Equal(t, tt.wantPages+1, cur.fetches)
		})
	}
}

func TestDrain_PagesInCursorOrder(t *testing.T) {
	cur := &sliceCursor{rows: makeRows(7)}
	var seen []string
	_, err := drain(context.Background(), cur, 3, func(_ context.Context, page []models.PendingReview) error {
		for _, r := range page {
			seen = append(seen, r.ServiceID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s000", "s001", "s002", "s003", "s004", "s005", "s006"}, seen)
}

func TestDrain_BatchErrorStopsRun(t *testing.T) {
	cur := &sliceCursor{rows: makeRows(10)}
	boom := errors.New("db down")
	calls := 0
	res, err := drain(context.Background(), cur, 3, func(_ context.Context, _ []models.PendingReview) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, res.Pages)
}

func TestDrain_DecodeErrorIsFatal(t *testing.T) {
	cur := &sliceCursor{rows: makeRows(10), failAt: 2}
	calls := 0
	_, err := drain(context.Background(), cur, 3, func(_ context.Context, _ []models.PendingReview) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, 1, calls)
}

func TestInsert_RejectsNonPending(t *testing.T) {
	r := New(nil, 0)
	_, err := r.Insert(context.Background(), models.PendingReview{ServiceID: "s1", Status: models.ReviewStatusApproved})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateStatus_RejectsPending(t *testing.T) {
	r := New(nil, 0)
	_, err := r.UpdateStatus(context.Background(), models.PendingReview{ServiceID: "s1", Status: models.ReviewStatusPending})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNew_DefaultPageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, New(nil, 0).pageSize)
	assert.Equal(t, 7, New(nil, 7).pageSize)
}
