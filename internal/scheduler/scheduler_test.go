package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/untibullet/service-review/internal/reconcile"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) Run(context.Context) (reconcile.Report, error) {
	r.calls.Add(1)
	return reconcile.Report{Rows: 4}, r.err
}

func TestAdd_InvalidSchedule(t *testing.T) {
	s := New(context.Background(), nil)
	err := s.Add("primary", "not a schedule", &countingRunner{})
	assert.ErrorContains(t, err, "primary")
}

func TestJob_LogsOutcome(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
		level   string
	}{
		{name: "ok", wantMsg: "scheduled run completed", level: "info"},
		{name: "busy", err: reconcile.ErrRunInProgress, wantMsg: "previous run still in progress, skipped", level: "warn"},
		{name: "failed", err: errors.New("cursor lost"), wantMsg: "scheduled run failed", level: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			s := New(context.Background(), zap.New(core))
			r := &countingRunner{err: tt.err}

			s.job("primary", r)()

			assert.Equal(t, int32(1), r.calls.Load())
			entries := logs.FilterMessage(tt.wantMsg).All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level.String())
			assert.Equal(t, "primary", entries[0].ContextMap()["job"])
		})
	}
}

func TestScheduler_RunsRegisteredJobs(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the cron tick")
	}
	s := New(context.Background(), nil)
	r := &countingRunner{}
	require.NoError(t, s.Add("primary", "@every 1s", r))

	s.Start()
	assert.Eventually(t, func() bool { return r.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
