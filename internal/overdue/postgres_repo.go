package overdue

import (
	"context"
	"time"

	"libraryapi/internal/platform/pg"
)

type PostgresRepo struct {
	db      pg.Querier
	timeout time.Duration
}

func NewPostgresRepo(db pg.Querier, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *PostgresRepo) CreateRun(ctx context.Context, run *ScanRun) (string, error) {
	const sql = `
		INSERT INTO overdue_scan_runs (started_at, status)
		VALUES ($1, $2)
		RETURNING id`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var id string
	err := r.db.QueryRow(timeoutCtx, sql, run.StartedAt, run.Status).Scan(&id)
	return id, err
}

func (r *PostgresRepo) UpdateRun(ctx context.Context, run *ScanRun) error {
	const sql = `
		UPDATE overdue_scan_runs SET
			finished_at = $1,
			status = $2,
			late_found = $3,
			notified = $4,
			failed = $5,
			error = $6
		WHERE id = $7`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.db.Exec(timeoutCtx, sql, run.FinishedAt, run.Status, run.LateFound, run.Notified, run.Failed, run.Error, run.ID)
	return err
}

func (r *PostgresRepo) ListRuns(ctx context.Context, limit int) ([]ScanRun, error) {
	const sql = `
		SELECT id, started_at, finished_at, status, late_found, notified, failed, error
		FROM overdue_scan_runs
		ORDER BY started_at DESC
		LIMIT $1`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ScanRun
	for rows.Next() {
		var run ScanRun
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Status,
			&run.LateFound, &run.Notified, &run.Failed, &run.Error); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
