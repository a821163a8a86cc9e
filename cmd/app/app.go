package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/untibullet/service-review/internal/config"
	"github.com/untibullet/service-review/internal/jira"
	"github.com/untibullet/service-review/internal/lifecycle"
	"github.com/untibullet/service-review/internal/owner"
	"github.com/untibullet/service-review/internal/reconcile"
	"github.com/untibullet/service-review/internal/repository"
	"github.com/untibullet/service-review/internal/review"
)

// app собранные компоненты сервиса
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	pool      *pgxpool.Pool
	repo      *repository.Repository
	proxy     *jira.Proxy
	submitter *review.Submitter
	primary   *reconcile.Processor
	legacy    *reconcile.Processor
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	// Подключение к базе данных
	pool, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("database connection established")

	// Инициализация слоя данных
	repo := repository.New(pool, cfg.Reconcile.PageSize)

	jiraClient := jira.NewClient(jira.ClientConfig{
		BaseURL:    cfg.Jira.BaseURL,
		Username:   cfg.Jira.Username,
		Token:      cfg.Jira.Token,
		ProjectKey: cfg.Jira.ProjectKey,
		Timeout:    cfg.Jira.Timeout,
	})
	proxy := jira.NewProxy(jiraClient, jira.ProxyConfig{
		ProjectKey:         cfg.Jira.ProjectKey,
		ReopenTransitionID: cfg.Jira.ReopenTransitionID,
		ReopenComment:      cfg.Jira.ReopenComment,
		ContractValue:      cfg.Jira.ContractValue,
		Fields: jira.CustomFields{
			OrgFiscalCode: cfg.Jira.Fields.OrgFiscalCode,
			OrgName:       cfg.Jira.Fields.OrgName,
			DelegateName:  cfg.Jira.Fields.DelegateName,
			DelegateEmail: cfg.Jira.Fields.DelegateEmail,
			Contract:      cfg.Jira.Fields.Contract,
		},
	})
	fsm := lifecycle.NewClient(cfg.Lifecycle.BaseURL, cfg.Lifecycle.Timeout)
	owners := owner.NewClient(cfg.Owner.BaseURL, cfg.Owner.Timeout)

	return &app{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		repo:      repo,
		proxy:     proxy,
		submitter: review.NewSubmitter(proxy, owners, repo, logger.Named("submitter")),
		primary:   reconcile.NewProcessor(reconcile.PrimaryMode(), proxy, fsm, repo, logger.Named("reconcile")),
		legacy:    reconcile.NewProcessor(reconcile.LegacyMode(), proxy, fsm, repo, logger.Named("reconcile")),
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
}
