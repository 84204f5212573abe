package main

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/sidv1711/slack-bot/pkg/adapter"
	"github.com/sidv1711/slack-bot/pkg/chat"
	"github.com/sidv1711/slack-bot/pkg/codegen"
	"github.com/sidv1711/slack-bot/pkg/config"
	"github.com/sidv1711/slack-bot/pkg/database"
	"github.com/sidv1711/slack-bot/pkg/identity"
	"github.com/sidv1711/slack-bot/pkg/logging"
	"github.com/sidv1711/slack-bot/pkg/metrics"
	"github.com/sidv1711/slack-bot/pkg/reports"
	"github.com/sidv1711/slack-bot/pkg/router"
	"github.com/sidv1711/slack-bot/pkg/service"
	"github.com/sidv1711/slack-bot/pkg/slackbot"
	"github.com/sidv1711/slack-bot/pkg/sqlgen"
)

// app holds the wired services shared by every command.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	db         *database.Executor
	dispatcher *router.Dispatcher
	identities identity.Store
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	base, err := adapter.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm adapter: %w", err)
	}
	llm := adapter.NewBounded(base, cfg.LLM.Model, cfg.LLM.Timeout,
		adapter.WithLogger(logger),
		adapter.WithObserver(metrics.ObserveLLMCall))

	a := &app{cfg: cfg, logger: logger}

	var exec sqlgen.Executor
	if cfg.Database.URL != "" {
		db, err := database.Open(ctx, cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
		exec = db
	} else {
		logger.Warn("DATABASE_URL is not set, queries will fail")
	}

	registry, err := router.NewRegistry(llm,
		chat.New(llm, logger),
		[]service.Service{
			sqlgen.New(llm, exec, sqlgen.WithTable(cfg.Database.Table), sqlgen.WithLogger(logger)),
			codegen.New(llm, logger),
		},
		router.WithCache(cfg.Classifier.CacheSize),
		router.WithClassifierLogger(logger))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build service registry: %w", err)
	}
	a.dispatcher = router.NewDispatcher(registry,
		router.WithRecorder(metrics.Recorder{}),
		router.WithLogger(logger))

	if a.db == nil || cfg.DevelopmentMode {
		a.identities = identity.NewMemoryStore()
	} else {
		a.identities = identity.NewPostgresStore(a.db.Pool())
	}
	return a, nil
}

// linker returns nil when the auth provider is not configured.
func (a *app) linker(client *slack.Client) *identity.Linker {
	if a.cfg.Auth.URL == "" || a.cfg.Auth.ClientID == "" {
		a.logger.Info("auth provider not configured, account linking disabled")
		return nil
	}
	opts := []identity.LinkerOption{identity.WithLinkerLogger(a.logger)}
	if client != nil {
		opts = append(opts, identity.WithEmailLookup(slackbot.EmailLookup(client)))
	}
	l, err := identity.NewLinker(a.cfg.Auth, a.identities, opts...)
	if err != nil {
		a.logger.Warn("account linking disabled", zap.Error(err))
		return nil
	}
	return l
}

func (a *app) reports() *reports.Client {
	return reports.New(a.cfg.Reports, reports.WithLogger(a.logger))
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	_ = a.logger.Sync()
}
