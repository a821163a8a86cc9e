package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/untibullet/service-review/internal/handlers"
	"github.com/untibullet/service-review/internal/queue"
	"github.com/untibullet/service-review/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the review request consumer and the reconciliation scheduler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		logger.Info("starting service review synchronization",
			zap.String("server_address", cfg.Server.GetAddress()))

		// Graceful shutdown
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		// Расписание синхронизации
		sched := scheduler.New(ctx, logger.Named("scheduler"))
		if err := sched.Add(a.primary.Mode().Name, cfg.Reconcile.Schedule, a.primary); err != nil {
			return err
		}
		if cfg.Reconcile.LegacyEnabled {
			if err := sched.Add(a.legacy.Mode().Name, cfg.Reconcile.LegacySchedule, a.legacy); err != nil {
				return err
			}
		}
		sched.Start()

		e := newServer(handlers.New(a.submitter, a.primary, logger.Named("http")), logger)

		var wg conc.WaitGroup
		// Запуск сервера в горутине
		wg.Go(func() {
			addr := cfg.Server.GetAddress()
			logger.Info("server listening", zap.String("address", addr))
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server start failed", zap.Error(err))
				stop()
			}
		})

		// Консьюмер запросов на ревью
		var consumer *queue.Consumer
		if cfg.Kafka.Enabled() {
			consumer = queue.NewKafkaConsumer(queue.Options{
				Brokers:     cfg.Kafka.Brokers,
				Topic:       cfg.Kafka.Topic,
				GroupID:     cfg.Kafka.GroupID,
				PoisonTopic: cfg.Kafka.PoisonTopic,
				MaxAttempts: cfg.Kafka.MaxAttempts,
				Backoff:     cfg.Kafka.Backoff,
			}, a.submitter, logger.Named("consumer"))
			wg.Go(func() {
				if err := consumer.Run(ctx); err != nil {
					logger.Error("review request consumer failed", zap.Error(err))
					stop()
				}
			})
		} else {
			logger.Warn("kafka is not configured, review requests are accepted over HTTP only")
		}

		// Ожидание сигнала завершения
		<-ctx.Done()
		logger.Info("shutting down server gracefully")

		// Таймаут для graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Error("scheduler shutdown error", zap.Error(err))
		}
		wg.Wait()
		if consumer != nil {
			if err := consumer.Close(); err != nil {
				logger.Error("consumer close error", zap.Error(err))
			}
		}

		logger.Info("server stopped")
		return nil
	},
}

func newServer(h *handlers.Handler, logger *zap.Logger) *echo.Echo {
	// Настройка Echo сервера
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error == nil {
				logger.Info("request",
					zap.String("method", c.Request().Method),
					zap.String("uri", v.URI),
					zap.Int("status", v.Status),
				)
			} else {
				logger.Error("request error",
					zap.String("method", c.Request().Method),
					zap.String("uri", v.URI),
					zap.Int("status", v.Status),
					zap.Error(v.Error),
				)
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Регистрация роутов
	h.RegisterRoutes(e)
	return e
}
