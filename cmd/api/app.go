package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"libraryapi/internal/book"
	"libraryapi/internal/config"
	"libraryapi/internal/loan"
	"libraryapi/internal/notify"
	"libraryapi/internal/overdue"
	"libraryapi/internal/platform/pg"
)

// app holds the wired services of one server process.
type app struct {
	books   *book.Service
	loans   *loan.Service
	scanner *overdue.Scanner
	runs    overdue.RunRepository
	ready   func(ctx context.Context) error
	close   func()
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	var (
		bookRepo interface {
			book.Repository
			loan.BookCatalog
		}
		loanRepo loan.Repository
		runs     overdue.RunRepository
		ready    = func(context.Context) error { return nil }
		closeFn  = func() {}
	)

	switch cfg.Database.Storage {
	case config.StoragePostgres:
		pool, err := pg.Open(ctx, cfg.Database.DSN, cfg.Database.Timeout)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("dsn", pg.RedactDSN(cfg.Database.DSN)).Msg("database connection OK")
		bookRepo = book.NewPostgresRepo(pool, cfg.Database.Timeout)
		loanRepo = loan.NewPostgresRepo(pool, cfg.Database.Timeout)
		runs = overdue.NewPostgresRepo(pool, cfg.Database.Timeout)
		ready = pool.Ping
		closeFn = pool.Close
	case config.StorageMemory:
		books := book.NewMemoryRepo()
		bookRepo = books
		loanRepo = loan.NewMemoryRepo(books)
		runs = overdue.NewMemoryRepo()
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Database.Storage)
	}

	loans := loan.NewService(loanRepo, bookRepo, loan.Config{GracePeriodDays: cfg.Loans.GracePeriodDays})
	books := book.NewService(bookRepo, loans)

	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(logger)
	if cfg.SMTP.Enabled() {
		dispatcher = notify.NewSMTPDispatcher(cfg.SMTP, logger)
	}
	scanner := overdue.NewScanner(loans, dispatcher, runs, overdue.Config{
		Schedule: cfg.Scanner.Schedule,
		Location: cfg.Scanner.Location(),
		Timeout:  cfg.Scanner.Timeout,
	}, logger)

	return &app{
		books:   books,
		loans:   loans,
		scanner: scanner,
		runs:    runs,
		ready:   ready,
		close:   closeFn,
	}, nil
}

func (a *app) Close() {
	a.close()
}
