package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/untibullet/service-review/internal/jira"
	"github.com/untibullet/service-review/internal/reconcile"
	"github.com/untibullet/service-review/internal/review"
)

type stubSubmitter struct {
	out      *review.Outcome
	err      error
	lastRaw  string
	resubmit bool
}

func (s *stubSubmitter) Submit(_ context.Context, raw []byte) (*review.Outcome, error) {
	s.lastRaw = string(raw)
	return s.out, s.err
}

func (s *stubSubmitter) Resubmit(_ context.Context, raw []byte) (*review.Outcome, error) {
	s.resubmit = true
	s.lastRaw = string(raw)
	return s.out, s.err
}

type stubReconciler struct {
	report reconcile.Report
	err    error
}

func (s *stubReconciler) Run(context.Context) (reconcile.Report, error) {
	return s.report, s.err
}

func serve(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(New(&stubSubmitter{}, &stubReconciler{}, nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSubmitReview(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "accepted", wantCode: http.StatusAccepted},
		{name: "invalid", err: fmt.Errorf("%w: missing id", review.ErrInvalidRequest), wantCode: http.StatusBadRequest, wantErr: ErrCodeInvalidRequest},
		{name: "tracker", err: fmt.Errorf("failed to create ticket: %w", &jira.Error{Kind: jira.KindGeneric, StatusCode: 500}), wantCode: http.StatusBadGateway, wantErr: ErrCodeTracker},
		{name: "internal", err: errors.New("db down"), wantCode: http.StatusInternalServerError, wantErr: ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &stubSubmitter{out: &review.Outcome{TicketKey: "IEST-1", TicketCreated: true}, err: tt.err}
			rec := serve(New(sub, &stubReconciler{}, nil), http.MethodPost, "/api/v1/reviews", `{"service":{"id":"s1"}}`)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, `{"service":{"id":"s1"}}`, sub.lastRaw)
			if tt.wantErr == "" {
				var out review.Outcome
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
				assert.Equal(t, "IEST-1", out.TicketKey)
				return
			}
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantErr, resp.Error.Code)
		})
	}
}

func TestResubmitReview(t *testing.T) {
	sub := &stubSubmitter{out: &review.Outcome{TicketKey: "IEST-2", Reopened: true}}
	rec := serve(New(sub, &stubReconciler{}, nil), http.MethodPut, "/api/v1/reviews", `{}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, sub.resubmit)
	assert.Contains(t, rec.Body.String(), `"reopened":true`)
}

func TestReconcile(t *testing.T) {
	t.Run("report", func(t *testing.T) {
		rec := serve(New(&stubSubmitter{}, &stubReconciler{report: reconcile.Report{Pages: 2, Rows: 150, Reconciled: 3}}, nil),
			http.MethodPost, "/api/v1/reconcile", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		var report reconcile.Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, 150, report.Rows)
	})

	t.Run("in progress", func(t *testing.T) {
		rec := serve(New(&stubSubmitter{}, &stubReconciler{err: reconcile.ErrRunInProgress}, nil),
			http.MethodPost, "/api/v1/reconcile", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("aborted", func(t *testing.T) {
		rec := serve(New(&stubSubmitter{}, &stubReconciler{err: errors.New("cursor lost")}, nil),
			http.MethodPost, "/api/v1/reconcile", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
