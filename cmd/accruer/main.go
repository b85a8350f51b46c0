// Package main provides the balance accrual runner entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/accrual-runner/internal/adapter"
	"github.com/accrual-runner/internal/config"
	"github.com/accrual-runner/internal/display"
	"github.com/accrual-runner/internal/logging"
	"github.com/accrual-runner/internal/retry"
	"github.com/accrual-runner/internal/storage"
	"github.com/accrual-runner/internal/wallets"
	"github.com/accrual-runner/internal/worker"
)

func main() {
	fmt.Println("Balance Accrual Runner")

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatalf("Failed to load configuration: %v", err)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	sessions, closeSessions, err := openSessionStore(cfg)
	if err != nil {
		logger.Fatalf("Failed to open session store: %v", err)
	}
	defer closeSessions()
	logger.WithField("backend", sessions.Backend().Name()).Info("Session store ready")

	client, err := adapter.NewAccrualClient(&adapter.AccrualClientConfig{
		BaseURL:   cfg.Service.BaseURL,
		Referer:   cfg.Service.Referer,
		UserAgent: cfg.Service.UserAgent,
		Timeout:   cfg.Service.RequestTimeout,
		RateLimit: cfg.Service.RateLimit,
		RateBurst: cfg.Service.RateBurst,
	})
	if err != nil {
		logger.Fatalf("Failed to create accrual client: %v", err)
	}

	retryCfg := retry.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.Retry.MaxAttempts
	retryCfg.InitialDelay = cfg.Retry.InitialDelay

	reporter := display.NewConsoleReporter(os.Stdout)

	coordinator, err := worker.NewCoordinator(&worker.CoordinatorConfig{
		Source: &wallets.FileSource{Path: cfg.Wallets.File, Strict: cfg.Wallets.Strict},
		NewWorker: func(identifier string, index int) (*worker.AccountWorker, error) {
			return worker.NewAccountWorker(&worker.AccountWorkerConfig{
				Identifier:      identifier,
				Index:           index,
				Service:         client,
				Sessions:        sessions,
				Reporter:        reporter,
				Retry:           retryCfg,
				Hashrate:        cfg.Worker.Hashrate,
				PollInterval:    cfg.Worker.PollInterval,
				FailureCooldown: cfg.Worker.FailureCooldown,
				InitRetryDelay:  cfg.Worker.InitRetryDelay,
			})
		},
		Reporter:            reporter,
		ShutdownConcurrency: cfg.Shutdown.Concurrency,
	})
	if err != nil {
		logger.Fatalf("Failed to create coordinator: %v", err)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := coordinator.Start(context.Background()); err != nil {
		logger.Fatalf("Failed to start workers: %v", err)
	}
	if len(coordinator.Workers()) == 0 {
		logger.Warn("Nothing to run, exiting")
		return
	}
	logger.WithField("run_id", coordinator.RunID()).Info("Workers started. Press Ctrl+C to stop")

	<-sigCtx.Done()
	stop()
	logger.Info("Shutdown signal received, stopping workers...")

	coordinator.Shutdown(context.Background())
	logger.Info("All workers stopped. Goodbye!")
}

// openSessionStore builds the configured session backend and a func releasing it
func openSessionStore(cfg *config.Config) (*storage.SessionStore, func(), error) {
	switch cfg.Session.Backend {
	case "redis":
		cache, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to Redis: %w", err)
		}
		closeFn := func() {
			if err := cache.Close(); err != nil {
				logging.WithError(err).Warn("Error closing Redis")
			}
		}
		return storage.NewSessionStore(storage.NewRedisSessionBackend(cache, cfg.Session.RedisTTL)), closeFn, nil

	case "postgres":
		if cfg.Session.AutoMigrate {
			if err := storage.MigrateSessions(cfg.Database.Postgres.PostgresURL(), cfg.Session.MigrationsPath); err != nil {
				return nil, nil, fmt.Errorf("migrate session schema: %w", err)
			}
		}
		db, err := storage.NewPostgresDB(&cfg.Database.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to Postgres: %w", err)
		}
		return storage.NewSessionStore(storage.NewPostgresSessionBackend(db)), db.Close, nil

	default:
		if err := os.MkdirAll(cfg.Session.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create session dir: %w", err)
		}
		return storage.NewSessionStore(storage.NewFileBackend(cfg.Session.Dir)), func() {}, nil
	}
}
