package overdue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepo keeps the scan journal in process.
type MemoryRepo struct {
	mu   sync.Mutex
	runs []ScanRun
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) CreateRun(_ context.Context, run *ScanRun) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *run
	stored.ID = uuid.NewString()
	r.runs = append(r.runs, stored)
	return stored.ID, nil
}

func (r *MemoryRepo) UpdateRun(_ context.Context, run *ScanRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.runs {
		if r.runs[i].ID == run.ID {
			r.runs[i] = *run
			return nil
		}
	}
	return nil
}

// ListRuns returns the newest runs first.
func (r *MemoryRepo) ListRuns(_ context.Context, limit int) ([]ScanRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ScanRun, 0, limit)
	for i := len(r.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.runs[i])
	}
	return out, nil
}
