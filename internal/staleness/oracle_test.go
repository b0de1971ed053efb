package staleness

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shaker/internal/cache"
	"github.com/roach88/shaker/internal/program"
	"github.com/roach88/shaker/internal/testutil"
)

type fixture struct {
	prog  program.Program
	store *cache.Store
	now   time.Time
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	src := testutil.WriteFile(t, root, "src/foo/x/main.xmir", testutil.HelloWorld)
	now := time.Now().Truncate(time.Second)
	testutil.SetModTime(t, src, now)

	layout := program.Layout{
		TargetRoot: filepath.Join(root, "target"),
		TraceRoot:  filepath.Join(root, "steps"),
	}
	return fixture{
		prog:  layout.Program("foo.x.main", 0, src, "abcdef1"),
		store: cache.New(filepath.Join(root, "cache")),
		now:   now,
	}
}

func (f fixture) oracle() *Oracle {
	return &Oracle{Cache: f.store, CacheEnabled: true, ToolVersion: "1.2.3"}
}

// writeTarget writes a target built by the fixture oracle.
func (f fixture) writeTarget(t *testing.T, at time.Time) {
	t.Helper()
	f.writeTargetStamped(t, at, StampOf(f.oracle().KeyFor(f.prog)))
}

func (f fixture) writeTargetStamped(t *testing.T, at time.Time, s Stamp) {
	t.Helper()
	testutil.WriteFile(t, filepath.Dir(f.prog.TargetPath), filepath.Base(f.prog.TargetPath), testutil.HelloWorld)
	testutil.SetModTime(t, f.prog.TargetPath, at)
	require.NoError(t, WriteStamp(f.prog.TargetPath, s))
}

func (f fixture) writeCache(t *testing.T, at time.Time) {
	t.Helper()
	k := f.oracle().KeyFor(f.prog)
	require.NoError(t, f.store.SaveBytes(k, []byte(testutil.HelloWorld)))
	testutil.SetModTime(t, f.store.Path(k), at)
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "recompute", Recompute.String())
	assert.Equal(t, "skip", Skip.String())
	assert.Equal(t, "cache-hit", CacheHit.String())
	assert.Equal(t, "decision(7)", Decision(7).String())
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, f fixture, o *Oracle)
		want   Decision
		reason string
	}{
		{
			name:   "nothing built yet",
			setup:  func(*testing.T, fixture, *Oracle) {},
			want:   Recompute,
			reason: "no cache entry",
		},
		{
			name: "fresh target skips",
			setup: func(t *testing.T, f fixture, _ *Oracle) {
				f.writeTarget(t, f.now.Add(time.Minute))
			},
			want:   Skip,
			reason: "target is up to date",
		},
		{
			name: "equal timestamps count as fresh",
			setup: func(t *testing.T, f fixture, _ *Oracle) {
				f.writeTarget(t, f.now)
			},
			want: Skip,
		},
		{
			name: "expired target with fresh cache hits",
			setup: func(t *testing.T, f fixture, _ *Oracle) {
				f.writeTarget(t, f.now.Add(-10*24*time.Hour))
				f.writeCache(t, f.now.Add(50*time.Second))
			},
			want:   CacheHit,
			reason: "cache entry is fresh",
		},
		{
			name: "missing target with fresh cache hits",
			setup: func(t *testing.T, f fixture, _ *Oracle) {
				f.writeCache(t, f.now)
			},
			want: CacheHit,
		},
		{
			name: "stale cache recomputes",
			setup: func(t *testing.T, f fixture, _ *Oracle) {
				f.writeCache(t, f.now.Add(-time.Hour))
			},
			want:   Recompute,
			reason: "cache entry older than source",
		},
		{
			name: "cache disabled ignores entry",
			setup: func(t *testing.T, f fixture, o *Oracle) {
				f.writeCache(t, f.now.Add(time.Hour))
				o.CacheEnabled = false
			},
			want:   Recompute,
			reason: "target missing or older than source",
		},
		{
			name: "force wins over fresh target",
			setup: func(t *testing.T, f fixture, o *Oracle) {
				f.writeTarget(t, f.now.Add(time.Hour))
				o.Force = true
			},
			want:   Recompute,
			reason: "forced rebuild",
		},
		{
			name: "fresh target from another tool version recomputes",
			setup: func(t *testing.T, f fixture, _ *Oracle) {
				f.writeTargetStamped(t, f.now.Add(time.Minute), Stamp{ToolVersion: "0.9.0", ContentHash: "abcdef1"})
			},
			want:   Recompute,
			reason: "no cache entry",
		},
		{
			name: "fresh target from another hash uses cache entry of the new hash",
			setup: func(t *testing.T, f fixture, _ *Oracle) {
				f.writeTargetStamped(t, f.now.Add(time.Minute), Stamp{ToolVersion: "1.2.3", ContentHash: "1234567"})
				f.writeCache(t, f.now.Add(time.Minute))
			},
			want: CacheHit,
		},
		{
			name: "fresh target from another hash without cache",
			setup: func(t *testing.T, f fixture, o *Oracle) {
				f.writeTargetStamped(t, f.now.Add(time.Minute), Stamp{ToolVersion: "1.2.3", ContentHash: "1234567"})
				o.CacheEnabled = false
			},
			want:   Recompute,
			reason: "target built from content hash 1234567",
		},
		{
			name: "fresh target from another tool version without cache",
			setup: func(t *testing.T, f fixture, o *Oracle) {
				f.writeTarget(t, f.now.Add(time.Minute))
				o.ToolVersion = "2.0.0"
				o.CacheEnabled = false
			},
			want:   Recompute,
			reason: "target built by tool version 1.2.3",
		},
		{
			name: "fresh target without stamp recomputes",
			setup: func(t *testing.T, f fixture, o *Oracle) {
				f.writeTarget(t, f.now.Add(time.Minute))
				require.NoError(t, os.Remove(StampPath(f.prog.TargetPath)))
				o.CacheEnabled = false
			},
			want:   Recompute,
			reason: "target has no stamp",
		},
		{
			name: "unreadable stamp recomputes",
			setup: func(t *testing.T, f fixture, o *Oracle) {
				f.writeTarget(t, f.now.Add(time.Minute))
				testutil.WriteFile(t, filepath.Dir(f.prog.TargetPath), filepath.Base(StampPath(f.prog.TargetPath)), "garbage")
				o.CacheEnabled = false
			},
			want:   Recompute,
			reason: "target stamp not readable",
		},
		{
			name: "entry under another tool version is ignored",
			setup: func(t *testing.T, f fixture, o *Oracle) {
				f.writeCache(t, f.now.Add(time.Hour))
				o.ToolVersion = "2.0.0"
			},
			want: Recompute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := f.oracle()
			tt.setup(t, f, o)

			v := o.Decide(f.prog)

			assert.Equal(t, tt.want, v.Decision, v.Reason)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, v.Reason)
			}
		})
	}
}

func TestDecide_MissingSource(t *testing.T) {
	f := newFixture(t)
	p := f.prog
	p.SourcePath = filepath.Join(t.TempDir(), "gone.xmir")

	v := f.oracle().Decide(p)

	assert.Equal(t, Recompute, v.Decision)
	assert.Contains(t, v.Reason, "source not readable")
}

func TestDecide_KeyUsesHashAndArtifactPath(t *testing.T) {
	f := newFixture(t)

	v := f.oracle().Decide(f.prog)

	assert.Equal(t, cache.Key{ToolVersion: "1.2.3", ContentHash: "abcdef1", Path: "foo/x/main.xmir"}, v.Key)
}

type failingCache struct{ err error }

func (c failingCache) Stat(cache.Key) (time.Time, bool, error) {
	return time.Time{}, false, c.err
}

func TestDecide_CacheStatErrorRecomputes(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("permission denied")
	o := &Oracle{Cache: failingCache{err: boom}, CacheEnabled: true, ToolVersion: "1.2.3"}

	v := o.Decide(f.prog)

	assert.Equal(t, Recompute, v.Decision)
	assert.ErrorIs(t, v.CacheErr, boom)
}

func TestDecide_SkipDoesNotTouchCache(t *testing.T) {
	f := newFixture(t)
	f.writeTarget(t, f.now.Add(time.Minute))
	o := &Oracle{Cache: failingCache{err: errors.New("must not be called")}, CacheEnabled: true, ToolVersion: "1.2.3"}

	v := o.Decide(f.prog)

	assert.Equal(t, Skip, v.Decision)
	assert.NoError(t, v.CacheErr)
}
