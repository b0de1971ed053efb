package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned by Outcomes for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Runs returns up to limit runs, newest first. A limit below 1 returns all.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Summary, error) {
	if limit < 1 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT r.id, r.tool_version, r.started_at, r.duration_ns,
		       COUNT(o.seq),
		       COALESCE(SUM(CASE WHEN o.error != '' THEN 1 ELSE 0 END), 0)
		FROM runs r
		LEFT JOIN outcomes o ON o.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var started, dur int64
		if err := rows.Scan(&s.ID, &s.ToolVersion, &started, &dur, &s.Programs, &s.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.StartedAt = time.Unix(0, started).UTC()
		s.Duration = time.Duration(dur)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return out, nil
}

// Outcomes returns the outcomes of one run in input order.
func (j *Journal) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	var exists int
	err := j.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	return j.queryOutcomes(ctx, `
		SELECT program, content_hash, source, target, decision, reason,
		       steps_run, error, cache_error, duration_ns
		FROM outcomes
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
}

// ProgramHistory returns the most recent outcomes of one program across
// runs, newest first.
func (j *Journal) ProgramHistory(ctx context.Context, program string, limit int) ([]Outcome, error) {
	if limit < 1 {
		limit = -1
	}
	return j.queryOutcomes(ctx, `
		SELECT o.program, o.content_hash, o.source, o.target, o.decision, o.reason,
		       o.steps_run, o.error, o.cache_error, o.duration_ns
		FROM outcomes o
		JOIN runs r ON r.id = o.run_id
		WHERE o.program = ?
		ORDER BY r.started_at DESC, r.id DESC
		LIMIT ?
	`, program, limit)
}

func (j *Journal) queryOutcomes(ctx context.Context, query string, args ...any) ([]Outcome, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		var dur int64
		if err := rows.Scan(&o.Program, &o.ContentHash, &o.Source, &o.Target, &o.Decision,
			&o.Reason, &o.StepsRun, &o.Error, &o.CacheError, &dur); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Duration = time.Duration(dur)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	return out, nil
}
