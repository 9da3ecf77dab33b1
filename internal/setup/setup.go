// Package setup wires configuration into running components. Every
// entry point builds its logger, knowledge base, run audit store,
// response cache, and interpretation engine through the same path, so
// the HTTP server, the MCP server, and the CLI agree on construction
// order and defaults.
package setup

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pgx-risk-engine/internal/api"
	"github.com/pgx-risk-engine/internal/config"
	"github.com/pgx-risk-engine/internal/database"
	"github.com/pgx-risk-engine/internal/domain"
	"github.com/pgx-risk-engine/internal/metrics"
	"github.com/pgx-risk-engine/internal/service"
	"github.com/pgx-risk-engine/internal/store"
	"github.com/pgx-risk-engine/pkg/cache"
	"github.com/pgx-risk-engine/pkg/kb"
)

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	switch cfg.Output {
	case "", "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger.SetOutput(os.Stderr)
			logger.WithError(err).WithField("path", cfg.Output).
				Warn("Could not open log file, logging to stderr")
		} else {
			logger.SetOutput(f)
		}
	}

	return logger
}

// App holds the wired components shared by the entry points. RunStore
// and DB stay nil when run auditing is disabled; Cache is never nil.
type App struct {
	Config    *domain.Config
	Logger    *logrus.Logger
	KB        domain.KnowledgeBase
	Engine    *service.Engine
	Batch     *service.BatchRunner
	RunStore  store.RunStore
	DB        *database.DB
	Cache     cache.Cache
	Collector *metrics.Collector
}

// Build constructs the application in dependency order: knowledge
// base, engine, batch runner, audit store, response cache, metrics.
// On error any partially built components are released.
func Build(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*App, error) {
	if logger == nil {
		logger = NewLogger(cfg.Logging)
	}

	provider, err := BuildKB(cfg.KB, logger)
	if err != nil {
		return nil, fmt.Errorf("building knowledge base: %w", err)
	}

	app := &App{
		Config:    cfg,
		Logger:    logger,
		KB:        provider,
		Collector: metrics.NewCollector(logger),
	}
	app.Engine = service.NewEngine(provider, logger)
	app.Batch = service.NewBatchRunner(app.Engine, provider, cfg.Batch.Workers, logger)

	if err := app.buildStore(ctx, cfg); err != nil {
		app.Close()
		return nil, err
	}

	responseCache, err := cache.New(cfg.Cache, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("building response cache: %w", err)
	}
	app.Cache = responseCache

	return app, nil
}

// BuildKB loads the knowledge base named by the kb section: a SQLite
// snapshot, a directory of JSON documents, or the embedded dataset
// when neither is configured.
func BuildKB(cfg domain.KBConfig, logger *logrus.Logger) (*kb.Provider, error) {
	loader := kb.NewLoader(logger)
	switch cfg.Source {
	case "sqlite":
		return loader.LoadSQLite(cfg.SQLitePath)
	case "json", "":
		if cfg.Path != "" {
			return loader.LoadDir(cfg.Path)
		}
		return kb.Default(logger)
	default:
		return nil, fmt.Errorf("unknown kb source %q", cfg.Source)
	}
}

// buildStore opens the run audit store named by the store section.
// The postgres driver also applies schema migrations and opens the
// pgx health pool.
func (a *App) buildStore(ctx context.Context, cfg *domain.Config) error {
	switch cfg.Store.Driver {
	case "", "none":
		a.Logger.Info("Run auditing disabled")
		return nil

	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening sqlite run store: %w", err)
		}
		a.RunStore = s
		a.Logger.WithField("path", cfg.Store.SQLitePath).Info("SQLite run store opened")
		return nil

	case "postgres":
		url := config.DatabaseURL(cfg.Database)

		runner, err := database.NewMigrationRunner(url, cfg.Store.MigrationsPath, a.Logger)
		if err != nil {
			return fmt.Errorf("preparing audit schema migrations: %w", err)
		}
		migrateErr := runner.Up(ctx)
		if closeErr := runner.Close(); closeErr != nil {
			a.Logger.WithError(closeErr).Warn("Closing migration runner")
		}
		if migrateErr != nil {
			return migrateErr
		}

		db, err := database.NewConnection(ctx, database.NewConfig(cfg.Database), a.Logger)
		if err != nil {
			return fmt.Errorf("connecting audit database: %w", err)
		}
		a.DB = db

		s, err := store.NewPostgresStoreFromURL(url)
		if err != nil {
			return fmt.Errorf("opening postgres run store: %w", err)
		}
		a.RunStore = s
		return nil

	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// Dependencies bundles the wired components for the HTTP server.
func (a *App) Dependencies() api.Dependencies {
	return api.Dependencies{
		Config:    a.Config,
		Engine:    a.Engine,
		Batch:     a.Batch,
		KB:        a.KB,
		RunStore:  a.RunStore,
		DB:        a.DB,
		Cache:     a.Cache,
		Collector: a.Collector,
		Logger:    a.Logger,
	}
}

// Close releases every component that holds resources. Safe to call
// on a partially built app and more than once.
func (a *App) Close() {
	if a.RunStore != nil {
		if err := a.RunStore.Close(); err != nil {
			a.Logger.WithError(err).Warn("Closing run store")
		}
		a.RunStore = nil
	}
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.WithError(err).Warn("Closing response cache")
		}
		a.Cache = nil
	}
}
