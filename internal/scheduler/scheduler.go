// Package scheduler запускает прогоны синхронизации по расписанию cron
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/untibullet/service-review/internal/reconcile"
)

// Runner один прогон синхронизации
type Runner interface {
	Run(ctx context.Context) (reconcile.Report, error)
}

type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	ctx    context.Context
}

// New создает планировщик. Задача, не успевшая завершиться к следующему срабатыванию, пропускает его
func New(ctx context.Context, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger: logger,
		ctx:    ctx,
	}
}

// Add регистрирует прогон под именем name на расписание schedule
func (s *Scheduler) Add(name, schedule string, r Runner) error {
	if _, err := s.cron.AddFunc(schedule, s.job(name, r)); err != nil {
		return fmt.Errorf("failed to schedule %s run %q: %w", name, schedule, err)
	}
	s.logger.Info("reconciliation scheduled", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

func (s *Scheduler) job(name string, r Runner) func() {
	return func() {
		log := s.logger.With(zap.String("job", name))
		report, err := r.Run(s.ctx)
		switch {
		case errors.Is(err, reconcile.ErrRunInProgress):
			log.Warn("previous run still in progress, skipped")
		case err != nil:
			log.Error("scheduled run failed", zap.Error(err))
		default:
			log.Info("scheduled run completed", zap.Int("rows", report.Rows), zap.Int("failed", report.Failed))
		}
	}
}

// Start запускает планировщик в фоне
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop останавливает планировщик и ждет завершения идущих прогонов
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger пишет служебные сообщения cron через zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
