package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shaker/internal/steps"
	"github.com/roach88/shaker/internal/testutil"
)

type tree struct {
	src, target, trace, cache string
}

func newTree(t *testing.T) tree {
	t.Helper()
	root := t.TempDir()
	return tree{
		src:    filepath.Join(root, "src"),
		target: filepath.Join(root, "target"),
		trace:  filepath.Join(root, "steps"),
		cache:  filepath.Join(root, "cache"),
	}
}

func (tr tree) args(extra ...string) []string {
	return append([]string{"optimize",
		"--source", tr.src,
		"--target", tr.target,
		"--trace", tr.trace,
		"--cache", tr.cache,
	}, extra...)
}

type jsonReport struct {
	Status string         `json:"status"`
	Data   OptimizeReport `json:"data"`
}

func TestOptimize_TextReport(t *testing.T) {
	tr := newTree(t)
	testutil.WriteFile(t, tr.src, "foo/x/main.xmir", testutil.HelloWorld)

	out, _, err := execute(t, tr.args()...)

	require.NoError(t, err)
	assert.Contains(t, out, "✓ foo.x.main  recompute (4 steps)")
	assert.Contains(t, out, "1 total, 0 skipped, 0 from cache, 1 optimized, 0 failed")
	assert.FileExists(t, filepath.Join(tr.target, "foo", "x", "main.xmir"))
	assert.NoDirExists(t, tr.trace)
}

func TestOptimize_SecondRunSkips(t *testing.T) {
	tr := newTree(t)
	src := testutil.WriteFile(t, tr.src, "foo/x/main.xmir", testutil.HelloWorld)
	testutil.SetModTime(t, src, testutil.ModTime(t, src).Add(-time.Hour))

	_, _, err := execute(t, tr.args()...)
	require.NoError(t, err)

	out, _, err := execute(t, tr.args()...)

	require.NoError(t, err)
	assert.Contains(t, out, "✓ foo.x.main  skip")
	assert.Contains(t, out, "1 skipped")
}

func TestOptimize_FailureExitCode(t *testing.T) {
	tr := newTree(t)
	testutil.WriteFile(t, tr.src, "foo/x/main.xmir", testutil.HelloWorld)
	testutil.WriteFile(t, tr.src, "f/main.xmir", testutil.DuplicateBinding)

	out, _, err := execute(t, tr.args()...)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 of 2 programs failed")
	assert.Contains(t, out, `✗ f.main  step 02-unique-names: object "@" binds "x" twice (lines 4 and 5)`)
	assert.Contains(t, out, "✓ foo.x.main")
	assert.FileExists(t, filepath.Join(tr.target, "foo", "x", "main.xmir"))
	assert.NoFileExists(t, filepath.Join(tr.target, "f", "main.xmir"))
}

func TestOptimize_JSONReport(t *testing.T) {
	tr := newTree(t)
	testutil.WriteFile(t, tr.src, "foo/x/main.xmir", testutil.HelloWorld)

	out, _, err := execute(t, append([]string{"--format", "json"}, tr.args("--track-steps")...)...)

	require.NoError(t, err)
	var resp jsonReport
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Recomputed)
	require.Len(t, resp.Data.Programs, 1)
	p := resp.Data.Programs[0]
	assert.Equal(t, "foo.x.main", p.Program)
	assert.Equal(t, "recompute", p.Decision)
	assert.Equal(t, 4, p.Steps)
	assert.FileExists(t, filepath.Join(tr.trace, "foo", "x", "main", "01-remove-refs.xml"))
}

func TestOptimize_NoCache(t *testing.T) {
	tr := newTree(t)
	testutil.WriteFile(t, tr.src, "foo/x/main.xmir", testutil.HelloWorld)

	_, _, err := execute(t, tr.args("--no-cache")...)

	require.NoError(t, err)
	assert.NoDirExists(t, tr.cache)
}

func TestOptimize_ConfigFileAndOverrides(t *testing.T) {
	tr := newTree(t)
	testutil.WriteFile(t, tr.src, "foo/x/main.xmir", testutil.HelloWorld)
	cfgPath := testutil.WriteFile(t, t.TempDir(), "shaker.yaml",
		"source_root: "+tr.src+"\n"+
			"target_root: "+tr.target+"\n"+
			"trace_root: "+tr.trace+"\n"+
			"cache_root: "+tr.cache+"\n"+
			"track_steps: true\n")

	_, _, err := execute(t, "optimize", "--config", cfgPath, "--track-steps=false")

	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(tr.target, "foo", "x", "main.xmir"))
	assert.NoDirExists(t, tr.trace, "flag overrides the file")
}

func TestOptimize_ConfigErrors(t *testing.T) {
	tr := newTree(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad jobs", tr.args("--jobs", "0"), "concurrency"},
		{"missing config file", []string{"optimize", "--config", filepath.Join(tr.src, "nope.yaml")}, "reading config"},
		{"missing source", tr.args(), "failed to list programs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)

			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOptimize_Manifest(t *testing.T) {
	tr := newTree(t)
	src := testutil.WriteFile(t, tr.src, "anything.xmir", testutil.HelloWorld)
	manifest := testutil.WriteFile(t, t.TempDir(), "programs.cue",
		"programs: [{name: \"foo.x.main\", source: \""+filepath.ToSlash(src)+"\", hash: \"abcdef1\"}]\n")

	out, _, err := execute(t, tr.args("--manifest", manifest)...)

	require.NoError(t, err)
	assert.Contains(t, out, "✓ foo.x.main")
	assert.FileExists(t, filepath.Join(tr.target, "foo", "x", "main.xmir"))
	assert.DirExists(t, filepath.Join(tr.cache, steps.Default().Version(steps.BaseVersion), "abcdef1"))
}
