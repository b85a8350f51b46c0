// Package main provides a CLI tool for managing the Postgres session schema.
package main

import (
	"flag"
	"fmt"

	"github.com/accrual-runner/internal/config"
	"github.com/accrual-runner/internal/logging"
	"github.com/accrual-runner/internal/storage"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		steps  = flag.Int("steps", 1, "Number of migrations to roll back with -action down")
		path   = flag.String("path", "", "Migrations directory (default SESSION_MIGRATIONS_PATH)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatalf("Failed to load config: %v", err)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))

	migrationsPath := cfg.Session.MigrationsPath
	if *path != "" {
		migrationsPath = *path
	}

	if err := run(cfg.Database.Postgres.PostgresURL(), migrationsPath, *action, *steps); err != nil {
		logging.Fatalf("Postgres migration failed: %v", err)
	}
}

func run(databaseURL, migrationsPath, action string, steps int) error {
	mg, err := storage.NewMigrator(databaseURL, migrationsPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := mg.Close(); err != nil {
			logging.WithError(err).Warn("Error closing migrator")
		}
	}()

	logger := logging.WithField("path", migrationsPath)

	switch action {
	case "up":
		logger.Info("Running Postgres migrations...")
		if err := mg.Up(); err != nil {
			return err
		}
		logger.Info("Postgres migrations completed successfully")

	case "down":
		logger.Infof("Rolling back %d Postgres migration(s)...", steps)
		if err := mg.Down(steps); err != nil {
			return err
		}
		logger.Info("Postgres migration rolled back successfully")

	case "version":
		version, dirty, err := mg.Version()
		if err != nil {
			return err
		}
		logger.Infof("Current Postgres migration version: %d (dirty: %v)", version, dirty)

	default:
		return fmt.Errorf("unknown action: %s", action)
	}

	return nil
}
