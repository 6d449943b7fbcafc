// Package overdue runs the recurring scan for late loans and notifies
// their customers.
package overdue

import (
	"context"
	"errors"
	"time"

	"libraryapi/internal/loan"
)

const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

var (
	// ErrScanInProgress is returned when a scan is requested while one runs.
	ErrScanInProgress = errors.New("overdue scan already running")
	// ErrAlreadyStarted is returned by Start on a running scheduler.
	ErrAlreadyStarted = errors.New("overdue scanner already started")
)

// ScanRun is the journal entry of one scan.
type ScanRun struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	LateFound  int        `json:"late_found"`
	Notified   int        `json:"notified"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
}

// LateLoanSource lists the loans that are currently late.
type LateLoanSource interface {
	GetAllLateLoans(ctx context.Context) ([]loan.Loan, error)
}

// RunRepository journals scans.
type RunRepository interface {
	CreateRun(ctx context.Context, run *ScanRun) (string, error)
	UpdateRun(ctx context.Context, run *ScanRun) error
	ListRuns(ctx context.Context, limit int) ([]ScanRun, error)
}
