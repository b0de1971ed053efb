package pipeline

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/shaker/internal/cache"
	"github.com/roach88/shaker/internal/config"
	"github.com/roach88/shaker/internal/program"
	"github.com/roach88/shaker/internal/steps"
	"github.com/roach88/shaker/internal/testutil"
	"github.com/roach88/shaker/internal/xmir"
)

// env is a throwaway build tree: sources, targets, traces and cache live
// under one temp root.
type env struct {
	root string
	cfg  config.Config
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.SourceRoot = filepath.Join(root, "src")
	cfg.TargetRoot = filepath.Join(root, "target")
	cfg.TraceRoot = filepath.Join(root, "steps")
	cfg.CacheRoot = filepath.Join(root, "cache")
	cfg.ToolVersion = "1.0.0"
	cfg.Concurrency = 4
	return &env{root: root, cfg: cfg}
}

func (e *env) layout() program.Layout {
	return program.Layout{TargetRoot: e.cfg.TargetRoot, TraceRoot: e.cfg.TraceRoot}
}

// program writes source for name and returns the program. The source mtime
// is pushed an hour into the past so outputs written now are newer.
func (e *env) program(t *testing.T, name, source, hash string) program.Program {
	t.Helper()
	path := testutil.WriteFile(t, e.cfg.SourceRoot, program.RelativePath(name, 0), source)
	testutil.SetModTime(t, path, time.Now().Add(-time.Hour))
	if hash == "" {
		hash = xmir.Hash([]byte(source))
	}
	return e.layout().Program(name, 0, path, hash)
}

func (e *env) pipeline(t *testing.T, reg *steps.Registry, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{
		WithLogger(quietLogger()),
		WithRunIDGenerator(testutil.NewFixedRunID("run-1")),
	}, opts...)
	p, err := New(e.cfg, reg, opts...)
	require.NoError(t, err)
	return p
}

func (e *env) cacheStore() *cache.Store {
	return cache.New(e.cfg.CacheRoot)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingRegistry wraps the default steps and counts every application.
func countingRegistry(n *atomic.Int64) *steps.Registry {
	var wrapped []steps.Step
	for _, s := range steps.Default().Steps() {
		wrapped = append(wrapped, steps.Func(s.Name(), func(doc *xmir.Document) (*xmir.Document, error) {
			n.Add(1)
			return s.Apply(doc)
		}))
	}
	return steps.MustRegistry(wrapped...)
}

// failingSaves serves reads from a real store but refuses every write.
type failingSaves struct {
	*cache.Store
}

func (failingSaves) Save(cache.Key, *xmir.Document) error {
	return errors.New("disk full")
}
