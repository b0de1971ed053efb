package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/shaker/internal/cache"
	"github.com/roach88/shaker/internal/config"
	"github.com/roach88/shaker/internal/program"
	"github.com/roach88/shaker/internal/staleness"
	"github.com/roach88/shaker/internal/steps"
	"github.com/roach88/shaker/internal/xmir"
)

// Cache is the cache store as seen by the pipeline.
type Cache interface {
	Stat(k cache.Key) (time.Time, bool, error)
	LoadBytes(k cache.Key) ([]byte, bool, error)
	Save(k cache.Key, doc *xmir.Document) error
}

// Pipeline optimizes batches of programs.
//
// Thread-safety: all fields are read-only after New. Run may be called
// concurrently, but two runs over the same target root race on the slots.
type Pipeline struct {
	cfg         config.Config
	reg         *steps.Registry
	cache       Cache
	oracle      *staleness.Oracle
	logger      *slog.Logger
	concurrency int
	runIDs      RunIDGenerator
	now         func() time.Time
	toolVersion string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithConcurrency overrides cfg.Concurrency. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n >= 1 {
			p.concurrency = n
		}
	}
}

// WithRunIDGenerator sets the run ID source. Defaults to UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(p *Pipeline) {
		p.runIDs = g
	}
}

// WithCache replaces the cache store built from cfg.CacheRoot. It has no
// effect when the cache is disabled.
func WithCache(c Cache) Option {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// WithClock sets the clock stamping BatchResult.StartedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a pipeline. The effective tool version folds the registry
// fingerprint into cfg.ToolVersion, so changing the step list moves the
// cache to a fresh key space.
func New(cfg config.Config, reg *steps.Registry, opts ...Option) (*Pipeline, error) {
	if reg == nil {
		return nil, errors.New("pipeline: nil step registry")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:         cfg,
		reg:         reg,
		logger:      slog.Default(),
		concurrency: cfg.Concurrency,
		runIDs:      UUIDv7Generator{},
		now:         time.Now,
		toolVersion: reg.Version(cfg.ToolVersion),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	if !cfg.CacheEnabled {
		p.cache = nil
	} else if p.cache == nil {
		p.cache = cache.New(cfg.CacheRoot)
	}

	p.oracle = &staleness.Oracle{
		CacheEnabled: p.cache != nil,
		Force:        cfg.ForceRebuild,
		ToolVersion:  p.toolVersion,
	}
	if p.cache != nil {
		p.oracle.Cache = p.cache
	}
	return p, nil
}

// ToolVersion returns the effective tool version used in cache keys.
func (p *Pipeline) ToolVersion() string {
	return p.toolVersion
}

// RunRegistry lists the programs of reg and runs them. Only a registry that
// cannot be listed is an error; program failures are in the result.
func (p *Pipeline) RunRegistry(ctx context.Context, reg program.Registry) (*BatchResult, error) {
	programs, err := reg.ListPrograms()
	if err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}
	return p.Run(ctx, programs), nil
}

// Run optimizes every program. It always returns a result with one entry
// per program ID; a cancelled context fails the programs not yet started.
func (p *Pipeline) Run(ctx context.Context, programs []program.Program) *BatchResult {
	batch := &BatchResult{
		RunID:       p.runIDs.Generate(),
		ToolVersion: p.toolVersion,
		StartedAt:   p.now(),
		Results:     make(map[string]*ProgramResult, len(programs)),
	}
	started := time.Now()
	log := p.logger.With("run", batch.RunID)
	log.Info("optimization started",
		"programs", len(programs),
		"tool_version", p.toolVersion,
		"concurrency", p.concurrency)

	slots := make([]*ProgramResult, len(programs))
	seen := make(map[string]bool, len(programs))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, prog := range programs {
		id := prog.ID()
		if seen[id] {
			slots[i] = &ProgramResult{Program: prog, Err: fmt.Errorf("duplicate program id %q", id)}
			continue
		}
		seen[id] = true
		i, prog := i, prog
		g.Go(func() error {
			slots[i] = p.optimize(ctx, log, prog)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range slots {
		id := r.Program.ID()
		if _, dup := batch.Results[id]; dup {
			log.Error("program failed", "program", id, "error", r.Err)
		} else {
			batch.Results[id] = r
		}
	}
	batch.ordered = slots
	batch.Duration = time.Since(started)

	log.Info("optimization finished",
		"skipped", batch.Count(staleness.Skip),
		"cached", batch.Count(staleness.CacheHit),
		"recomputed", batch.Count(staleness.Recompute),
		"failed", len(batch.Failed()),
		"duration", batch.Duration)
	return batch
}

// optimize handles one program. It never panics; a panic anywhere in the
// program's path becomes its failure.
func (p *Pipeline) optimize(ctx context.Context, log *slog.Logger, prog program.Program) (res *ProgramResult) {
	start := time.Now()
	res = &ProgramResult{Program: prog}
	log = log.With("program", prog.ID())
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			log.Error("program failed", "error", res.Err)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	v := p.oracle.Decide(prog)
	res.Decision, res.Reason = v.Decision, v.Reason
	if v.CacheErr != nil {
		res.CacheErr = v.CacheErr
		log.Warn("cache entry not readable, recomputing", "key", v.Key.String(), "error", v.CacheErr)
	}
	log.Debug("decided", "decision", v.Decision.String(), "reason", v.Reason)

	switch v.Decision {
	case staleness.Skip:
		return res
	case staleness.CacheHit:
		if p.restore(log, prog, v.Key, res) {
			return res
		}
		res.Decision = staleness.Recompute
		res.Reason = "cache entry unusable"
	}

	p.recompute(log, prog, v.Key, res)
	return res
}

// restore copies a cached artifact into the target slot. It reports false
// when the entry could not be used and the program must be recomputed.
func (p *Pipeline) restore(log *slog.Logger, prog program.Program, k cache.Key, res *ProgramResult) bool {
	data, found, err := p.cache.LoadBytes(k)
	if err != nil || !found {
		if err == nil {
			err = fmt.Errorf("cache entry %s vanished", k)
		}
		res.CacheErr = errors.Join(res.CacheErr, err)
		log.Warn("cache entry not readable, recomputing", "key", k.String(), "error", err)
		return false
	}
	if err := p.writeTarget(log, prog, k, data); err != nil {
		res.Err = err
	}
	return true
}

// writeTarget fills the target slot, then stamps it with the key that
// produced it. A missing stamp only costs a rebuild on the next run.
func (p *Pipeline) writeTarget(log *slog.Logger, prog program.Program, k cache.Key, data []byte) error {
	if err := cache.WriteFileAtomic(prog.TargetPath, data, 0o644); err != nil {
		return fmt.Errorf("writing target %s: %w", prog.TargetPath, err)
	}
	if err := staleness.WriteStamp(prog.TargetPath, staleness.StampOf(k)); err != nil {
		log.Warn("target stamp not written", "target", prog.TargetPath, "error", err)
	}
	return nil
}

// clearTraces removes NN-<step>.xml snapshots of an earlier run. Nested
// directories belong to other programs and are left alone.
func clearTraces(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(traceGlob, e.Name()); ok {
			errs = append(errs, os.Remove(filepath.Join(dir, e.Name())))
		}
	}
	return errors.Join(errs...)
}

const traceGlob = "[0-9][0-9]-*.xml"

func (p *Pipeline) recompute(log *slog.Logger, prog program.Program, k cache.Key, res *ProgramResult) {
	src, err := os.ReadFile(prog.SourcePath)
	if err != nil {
		res.Err = fmt.Errorf("reading source: %w", err)
		return
	}
	doc, err := xmir.Parse(src)
	if err != nil {
		res.Err = fmt.Errorf("parsing %s: %w", prog.SourcePath, err)
		return
	}

	var observe steps.Observer
	if p.cfg.TrackSteps {
		if err := clearTraces(prog.TracePath); err != nil {
			log.Warn("old step traces not removed", "dir", prog.TracePath, "error", err)
		}
		observe = func(index int, s steps.Step, out *xmir.Document) {
			path := filepath.Join(prog.TracePath, steps.Label(index, s.Name())+".xml")
			if err := cache.WriteFileAtomic(path, xmir.Marshal(out), 0o644); err != nil {
				log.Warn("step trace not written", "path", path, "error", err)
			}
		}
	}

	out, n, err := p.reg.Run(doc, observe)
	res.StepsRun = n
	if err != nil {
		res.Err = err
		return
	}

	if err := p.writeTarget(log, prog, k, xmir.Marshal(out)); err != nil {
		res.Err = err
		return
	}

	if p.cache == nil {
		return
	}
	if err := p.cache.Save(k, out); err != nil {
		res.CacheErr = errors.Join(res.CacheErr, err)
		log.Warn("cache entry not written", "key", k.String(), "error", err)
	}
}
