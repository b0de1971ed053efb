package steps

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"github.com/roach88/shaker/internal/xmir"
)

// Step is a single pure transformation.
type Step interface {
	Name() string
	Apply(doc *xmir.Document) (*xmir.Document, error)
}

type funcStep struct {
	name string
	fn   func(*xmir.Document) (*xmir.Document, error)
}

func (s funcStep) Name() string { return s.name }

func (s funcStep) Apply(doc *xmir.Document) (*xmir.Document, error) { return s.fn(doc) }

// Func adapts a function value to a Step.
func Func(name string, fn func(*xmir.Document) (*xmir.Document, error)) Step {
	return funcStep{name: name, fn: fn}
}

// StepError reports a failed step. Index is 1-based.
type StepError struct {
	Index int
	Step  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", Label(e.Index, e.Step), e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// IsStepError reports whether err is or wraps a *StepError.
func IsStepError(err error) bool {
	var se *StepError
	return errors.As(err, &se)
}

// ErrNilDocument is returned (wrapped in a StepError) when a step produces
// no document and no error.
var ErrNilDocument = errors.New("step returned no document")

var validName = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Registry is an ordered, immutable list of steps.
//
// Thread-safety: read-only after NewRegistry; safe for concurrent Run calls.
type Registry struct {
	steps []Step
}

// NewRegistry creates a registry. Names must be unique kebab-case
// identifiers so they can label trace files.
func NewRegistry(steps ...Step) (*Registry, error) {
	seen := make(map[string]bool, len(steps))
	for i, s := range steps {
		if s == nil {
			return nil, fmt.Errorf("step %d is nil", i+1)
		}
		name := s.Name()
		if !validName.MatchString(name) {
			return nil, fmt.Errorf("step %d: invalid name %q", i+1, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("step %d: duplicate name %q", i+1, name)
		}
		seen[name] = true
	}
	// Copy to prevent external mutation of the order.
	cp := make([]Step, len(steps))
	copy(cp, steps)
	return &Registry{steps: cp}, nil
}

// MustRegistry is like NewRegistry but panics on error.
// Use only for static step lists.
func MustRegistry(steps ...Step) *Registry {
	r, err := NewRegistry(steps...)
	if err != nil {
		panic(err)
	}
	return r
}

// Len returns the number of steps.
func (r *Registry) Len() int {
	return len(r.steps)
}

// Steps returns a copy of the steps in order.
func (r *Registry) Steps() []Step {
	cp := make([]Step, len(r.steps))
	copy(cp, r.steps)
	return cp
}

// Names returns the step names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.steps))
	for i, s := range r.steps {
		names[i] = s.Name()
	}
	return names
}

// Fingerprint hashes the ordered step names.
func (r *Registry) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte("shaker/steps/v1"))
	for _, s := range r.steps {
		h.Write([]byte{0x00})
		h.Write([]byte(s.Name()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Version derives the tool version from a base version and the registry
// fingerprint.
func (r *Registry) Version(base string) string {
	return base + "-" + r.Fingerprint()[:8]
}

// Observer is called after each successful step with the 1-based index,
// the step and its output.
type Observer func(index int, step Step, out *xmir.Document)

// Run applies every step in order. The first failing step aborts the run
// and is reported as a *StepError; the count of completed steps is
// returned either way.
func (r *Registry) Run(doc *xmir.Document, observe Observer) (*xmir.Document, int, error) {
	cur := doc
	for i, s := range r.steps {
		out, err := apply(s, cur)
		if err == nil && out == nil {
			err = ErrNilDocument
		}
		if err != nil {
			return nil, i, &StepError{Index: i + 1, Step: s.Name(), Err: err}
		}
		if observe != nil {
			observe(i+1, s, out)
		}
		cur = out
	}
	return cur, len(r.steps), nil
}

// apply runs one step, converting a panic into an error so a single bad
// program cannot take down a batch.
func apply(s Step, doc *xmir.Document) (out *xmir.Document, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return s.Apply(doc)
}

// Label returns the trace label of a step: two-digit 1-based index and name.
func Label(index int, name string) string {
	return fmt.Sprintf("%02d-%s", index, name)
}
