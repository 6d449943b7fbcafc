package overdue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"libraryapi/internal/notify"
)

const (
	DefaultSchedule = "0 0 * * *"
	DefaultTimeout  = 10 * time.Minute

	journalTimeout = 5 * time.Second
)

// Config controls when the scanner runs. Zero fields fall back to a
// midnight schedule in local time with a ten minute run timeout.
type Config struct {
	// Schedule is a standard five-field cron expression.
	Schedule string
	Location *time.Location
	// Timeout bounds each scheduled run.
	Timeout time.Duration
}

// Scanner finds late loans and hands each one to the dispatcher. A failed
// notice is counted and logged; it never stops the rest of the scan.
type Scanner struct {
	loans      LateLoanSource
	dispatcher notify.Dispatcher
	runs       RunRepository
	cfg        Config
	logger     zerolog.Logger
	now        func() time.Time

	running atomic.Bool

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewScanner creates a scanner. runs may be nil to skip the journal.
func NewScanner(loans LateLoanSource, dispatcher notify.Dispatcher, runs RunRepository, cfg Config, logger zerolog.Logger) *Scanner {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Scanner{
		loans:      loans,
		dispatcher: dispatcher,
		runs:       runs,
		cfg:        cfg,
		logger:     logger.With().Str("component", "overdue_scanner").Logger(),
		now:        time.Now,
	}
}

// Run performs one scan. Concurrent calls fail with ErrScanInProgress.
func (s *Scanner) Run(ctx context.Context) (run ScanRun, err error) {
	if !s.running.CompareAndSwap(false, true) {
		return ScanRun{}, ErrScanInProgress
	}
	defer s.running.Store(false)

	run = ScanRun{Status: StatusRunning, StartedAt: s.now()}
	if s.runs != nil {
		id, rErr := s.runs.CreateRun(ctx, &run)
		if rErr != nil {
			return run, fmt.Errorf("create scan run: %w", rErr)
		}
		run.ID = id
	}

	defer func() {
		finished := s.now()
		run.FinishedAt = &finished
		if err != nil {
			run.Status = StatusFailed
			run.Error = err.Error()
		} else {
			run.Status = StatusCompleted
		}
		if s.runs == nil {
			return
		}
		// The journal entry is written even when ctx has expired.
		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
		defer cancel()
		if updateErr := s.runs.UpdateRun(jctx, &run); updateErr != nil {
			s.logger.Error().Err(updateErr).Str("run_id", run.ID).Msg("failed to update scan run")
		}
	}()

	late, err := s.loans.GetAllLateLoans(ctx)
	if err != nil {
		return run, fmt.Errorf("list late loans: %w", err)
	}
	run.LateFound = len(late)

	for _, l := range late {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		if err := s.dispatcher.NotifyLate(ctx, l); err != nil {
			run.Failed++
			s.logger.Warn().Err(err).Str("loan_id", l.ID).Msg("late notice not delivered")
			continue
		}
		run.Notified++
	}
	return run, nil
}

// Start schedules Run on the configured cron expression.
func (s *Scanner) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return ErrAlreadyStarted
	}

	cronLogger := s.logger.With().Str("source", "cron").Logger()
	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(cron.PrintfLogger(&cronLogger)),
		cron.WithChain(cron.Recover(cron.PrintfLogger(&cronLogger))),
	)
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.scheduled(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule overdue scan %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.cron = c
	s.cancel = cancel

	s.logger.Info().
		Str("schedule", s.cfg.Schedule).
		Str("location", s.cfg.Location.String()).
		Dur("timeout", s.cfg.Timeout).
		Msg("overdue scanner started")
	return nil
}

// Stop unschedules the scanner and waits for a running scan to finish.
// When ctx expires first the scan is cancelled and ctx's error returned.
func (s *Scanner) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	defer cancel()

	select {
	case <-c.Stop().Done():
		s.logger.Info().Msg("overdue scanner stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scanner) scheduled(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.Timeout)
	defer cancel()

	run, err := s.Run(ctx)
	switch {
	case errors.Is(err, ErrScanInProgress):
		s.logger.Warn().Msg("previous overdue scan still running, skipping")
	case err != nil:
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("overdue scan failed")
	default:
		s.logger.Info().
			Str("run_id", run.ID).
			Int("late_found", run.LateFound).
			Int("notified", run.Notified).
			Int("failed", run.Failed).
			Msg("overdue scan completed")
	}
}
