package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/shaker/internal/program"
	"github.com/roach88/shaker/internal/staleness"
)

// ProgramResult is the outcome of one program.
type ProgramResult struct {
	Program  program.Program
	Decision staleness.Decision
	Reason   string

	// StepsRun counts the steps that completed; zero unless recomputed.
	StepsRun int

	// Err is set when the program failed. Its target slot was not written.
	Err error

	// CacheErr records cache problems that were tolerated.
	CacheErr error

	Duration time.Duration
}

// OK reports whether the program succeeded.
func (r *ProgramResult) OK() bool {
	return r.Err == nil
}

// BatchResult collects per-program results of one run.
type BatchResult struct {
	RunID       string
	ToolVersion string
	StartedAt   time.Time
	Duration    time.Duration

	// Results is keyed by program ID. A program repeating an earlier ID is
	// failed and only listed by Ordered.
	Results map[string]*ProgramResult

	ordered []*ProgramResult
}

// Ordered returns every result in input order.
func (b *BatchResult) Ordered() []*ProgramResult {
	out := make([]*ProgramResult, len(b.ordered))
	copy(out, b.ordered)
	return out
}

// Failed returns the failed results in input order.
func (b *BatchResult) Failed() []*ProgramResult {
	var out []*ProgramResult
	for _, r := range b.Ordered() {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many programs succeeded with decision d.
func (b *BatchResult) Count(d staleness.Decision) int {
	n := 0
	for _, r := range b.ordered {
		if r.OK() && r.Decision == d {
			n++
		}
	}
	return n
}

// Err joins the failures of every program, or returns nil.
func (b *BatchResult) Err() error {
	var errs []error
	for _, r := range b.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", r.Program.ID(), r.Err))
	}
	return errors.Join(errs...)
}
