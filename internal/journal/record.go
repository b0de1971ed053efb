package journal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Run is one optimize invocation.
type Run struct {
	ID          string
	ToolVersion string
	StartedAt   time.Time
	Duration    time.Duration
	Outcomes    []Outcome
}

// Outcome is the result of one program within a run.
type Outcome struct {
	Program     string
	ContentHash string
	Source      string
	Target      string
	Decision    string
	Reason      string
	StepsRun    int
	Error       string
	CacheError  string
	Duration    time.Duration
}

// Failed reports whether the program failed.
func (o Outcome) Failed() bool {
	return o.Error != ""
}

// Summary is a run with outcome counts instead of outcomes.
type Summary struct {
	ID          string
	ToolVersion string
	StartedAt   time.Time
	Duration    time.Duration
	Programs    int
	Failed      int
}

// Record writes a run and its outcomes in one transaction. Recording a run
// ID that already exists is a no-op.
func (j *Journal) Record(ctx context.Context, run Run) (err error) {
	if run.ID == "" {
		return errors.New("record run: empty run ID")
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, tool_version, started_at, duration_ns)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.ToolVersion, run.StartedAt.UnixNano(), int64(run.Duration))
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	if inserted == 0 {
		return tx.Commit()
	}

	for i, o := range run.Outcomes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO outcomes
			(run_id, seq, program, content_hash, source, target, decision, reason,
			 steps_run, error, cache_error, duration_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID, i+1, o.Program, o.ContentHash, o.Source, o.Target,
			o.Decision, o.Reason, o.StepsRun, o.Error, o.CacheError, int64(o.Duration),
		)
		if err != nil {
			return fmt.Errorf("record outcome %s: %w", o.Program, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}
