package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/LoveLedger/LoveLedger/internal/apperr"
)

// SweepRun is the bookkeeping row for one named scheduler job.
type SweepRun struct {
	JobName     string
	LastStatus  string
	LastSummary string
	LastRunAt   *time.Time
	RunCount    int
}

// RecordSweep upserts the outcome of a scheduler run.
func (c conn) RecordSweep(ctx context.Context, name, status, summary string, at time.Time) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO sweep_runs (job_name, last_status, last_summary, last_run_at, run_count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(job_name) DO UPDATE SET
			last_status = excluded.last_status,
			last_summary = excluded.last_summary,
			last_run_at = excluded.last_run_at,
			run_count = run_count + 1`,
		name, status, summary, millis(at))
	return apperr.Store("record sweep run", err)
}

// SweepRuns lists every recorded job.
func (c conn) SweepRuns(ctx context.Context) ([]SweepRun, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT job_name, last_status, last_summary, last_run_at, run_count
		FROM sweep_runs ORDER BY job_name`)
	if err != nil {
		return nil, apperr.Store("query sweep runs", err)
	}
	defer rows.Close()

	var out []SweepRun
	for rows.Next() {
		var r SweepRun
		var status, summary sql.NullString
		var last sql.NullInt64
		if err := rows.Scan(&r.JobName, &status, &summary, &last, &r.RunCount); err != nil {
			return nil, apperr.Store("scan sweep run", err)
		}
		r.LastStatus = status.String
		r.LastSummary = summary.String
		r.LastRunAt = fromMillis(last)
		out = append(out, r)
	}
	return out, apperr.Store("iterate sweep runs", rows.Err())
}
