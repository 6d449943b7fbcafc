package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"libraryapi/internal/config"
	"libraryapi/internal/platform/logging"
	"libraryapi/internal/platform/pg"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, status, version, create")
		name    = flag.String("name", "", "Name for 'create' command")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, logger, *command, *name); err != nil {
		logger.Fatal().Err(err).Str("command", *command).Msg("migration failed")
	}
}

func run(cfg config.Config, logger zerolog.Logger, command, name string) error {
	dir := migrationsDir()
	if command == "create" {
		return runCommand(nil, command, name, dir, logger)
	}

	ctx := context.Background()
	pool, err := pg.Open(ctx, cfg.Database.DSN, cfg.Database.Timeout)
	if err != nil {
		return err
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	return runCommand(db, command, name, dir, logger)
}

func runCommand(db *sql.DB, command, name, dir string, logger zerolog.Logger) error {
	goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	switch command {
	case "up":
		if err := goose.Up(db, dir); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info().Msg("migrations applied successfully")
	case "down":
		if err := goose.Down(db, dir); err != nil {
			return fmt.Errorf("roll back migration: %w", err)
		}
		logger.Info().Msg("migration rolled back successfully")
	case "status":
		if err := goose.Status(db, dir); err != nil {
			return fmt.Errorf("check migration status: %w", err)
		}
	case "version":
		if err := goose.Version(db, dir); err != nil {
			return fmt.Errorf("read migration version: %w", err)
		}
	case "create":
		if name == "" {
			return fmt.Errorf("name is required for 'create' command")
		}
		if err := goose.Create(nil, dir, name, "sql"); err != nil {
			return fmt.Errorf("create migration: %w", err)
		}
		logger.Info().Str("name", name).Msg("migration created")
	default:
		return fmt.Errorf("unknown command %q: use up, down, status, version, create", command)
	}
	return nil
}
