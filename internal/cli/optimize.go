package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shaker/internal/config"
	"github.com/roach88/shaker/internal/journal"
	"github.com/roach88/shaker/internal/pipeline"
	"github.com/roach88/shaker/internal/program"
	"github.com/roach88/shaker/internal/staleness"
	"github.com/roach88/shaker/internal/steps"
)

// OptimizeOptions holds flags for the optimize command.
type OptimizeOptions struct {
	*RootOptions
	ConfigPath  string
	Source      string
	Target      string
	Trace       string
	CacheRoot   string
	NoCache     bool
	TrackSteps  bool
	Force       bool
	Jobs        int
	Manifest    string
	Journal     string
	ToolVersion string
}

// OptimizeReport is the result of one optimize run.
type OptimizeReport struct {
	RunID       string          `json:"run_id"`
	ToolVersion string          `json:"tool_version"`
	Programs    []ProgramReport `json:"programs"`
	Skipped     int             `json:"skipped"`
	Cached      int             `json:"cached"`
	Recomputed  int             `json:"recomputed"`
	Failed      int             `json:"failed"`
}

// ProgramReport is the outcome of one program.
type ProgramReport struct {
	Program      string  `json:"program"`
	Decision     string  `json:"decision"`
	Reason       string  `json:"reason"`
	Steps        int     `json:"steps"`
	Target       string  `json:"target"`
	Error        string  `json:"error,omitempty"`
	CacheWarning string  `json:"cache_warning,omitempty"`
	DurationMS   float64 `json:"duration_ms"`
}

// NewOptimizeCommand creates the optimize command.
func NewOptimizeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OptimizeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Optimize XMIR programs",
		Long: `Run the optimization steps over every program of the build.

Programs come from a source directory (every *.xmir file) or from a CUE
manifest. Each program is skipped when its target is up to date, copied
from the cache when a fresh entry exists, or optimized from source.

Flags override values from the config file.

Examples:
  shaker optimize --source target/eo/2-assemble --target target/eo/3-shake
  shaker optimize --config shaker.yaml --track-steps
  shaker optimize --manifest programs.cue --journal shaker.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	f.StringVar(&opts.Source, "source", "", "directory scanned for *.xmir programs")
	f.StringVar(&opts.Target, "target", "", "directory receiving optimized programs")
	f.StringVar(&opts.Trace, "trace", "", "directory receiving per-step snapshots")
	f.StringVar(&opts.CacheRoot, "cache", "", "cache root directory")
	f.BoolVar(&opts.NoCache, "no-cache", false, "disable the cache")
	f.BoolVar(&opts.TrackSteps, "track-steps", false, "write NN-<step>.xml snapshots")
	f.BoolVar(&opts.Force, "force", false, "optimize every program from source")
	f.IntVarP(&opts.Jobs, "jobs", "j", 0, "programs optimized at once")
	f.StringVar(&opts.Manifest, "manifest", "", "CUE manifest listing programs")
	f.StringVar(&opts.Journal, "journal", "", "SQLite journal recording outcomes")
	f.StringVar(&opts.ToolVersion, "tool-version", "", "base tool version for cache keys")

	return cmd
}

// resolveConfig loads the config file, if any, and applies flags that were
// set explicitly.
func resolveConfig(opts *OptimizeOptions, cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("source") {
		cfg.SourceRoot = opts.Source
	}
	if changed("target") {
		cfg.TargetRoot = opts.Target
	}
	if changed("trace") {
		cfg.TraceRoot = opts.Trace
	}
	if changed("cache") {
		cfg.CacheRoot = opts.CacheRoot
	}
	if changed("no-cache") {
		cfg.CacheEnabled = !opts.NoCache
	}
	if changed("track-steps") {
		cfg.TrackSteps = opts.TrackSteps
	}
	if changed("force") {
		cfg.ForceRebuild = opts.Force
	}
	if changed("jobs") {
		cfg.Concurrency = opts.Jobs
	}
	if changed("manifest") {
		cfg.Manifest = opts.Manifest
	}
	if changed("journal") {
		cfg.Journal = opts.Journal
	}
	if changed("tool-version") {
		cfg.ToolVersion = opts.ToolVersion
	}

	return cfg, cfg.Validate()
}

func programRegistry(cfg config.Config) program.Registry {
	layout := program.Layout{TargetRoot: cfg.TargetRoot, TraceRoot: cfg.TraceRoot}
	if cfg.Manifest != "" {
		return &program.ManifestRegistry{Path: cfg.Manifest, Layout: layout}
	}
	return &program.DirRegistry{SourceRoot: cfg.SourceRoot, Layout: layout}
}

func runOptimize(opts *OptimizeOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := newFormatter(cmd, opts.RootOptions)

	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	p, err := pipeline.New(cfg, steps.Default(), pipeline.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	batch, err := p.RunRegistry(ctx, programRegistry(cfg))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list programs", err)
	}

	if cfg.Journal != "" {
		recordRun(ctx, logger, cfg.Journal, batch)
	}

	report := buildReport(batch)
	if out.JSON() {
		if err := out.Success(report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d of %d programs failed to optimize", report.Failed, len(report.Programs)))
	}
	return nil
}

// recordRun appends the batch to the journal. Journal problems are logged
// and never fail the build.
func recordRun(ctx context.Context, logger *slog.Logger, path string, batch *pipeline.BatchResult) {
	j, err := journal.Open(path)
	if err != nil {
		logger.Warn("journal not opened", "path", path, "error", err)
		return
	}
	defer j.Close()

	if err := j.Record(ctx, journalRun(batch)); err != nil {
		logger.Warn("run not recorded", "path", path, "error", err)
		return
	}
	logger.Debug("run recorded", "path", path, "run", batch.RunID)
}

func journalRun(batch *pipeline.BatchResult) journal.Run {
	run := journal.Run{
		ID:          batch.RunID,
		ToolVersion: batch.ToolVersion,
		StartedAt:   batch.StartedAt,
		Duration:    batch.Duration,
	}
	for _, r := range batch.Ordered() {
		run.Outcomes = append(run.Outcomes, journal.Outcome{
			Program:     r.Program.ID(),
			ContentHash: r.Program.ContentHash,
			Source:      r.Program.SourcePath,
			Target:      r.Program.TargetPath,
			Decision:    r.Decision.String(),
			Reason:      r.Reason,
			StepsRun:    r.StepsRun,
			Error:       errString(r.Err),
			CacheError:  errString(r.CacheErr),
			Duration:    r.Duration,
		})
	}
	return run
}

func buildReport(batch *pipeline.BatchResult) OptimizeReport {
	report := OptimizeReport{
		RunID:       batch.RunID,
		ToolVersion: batch.ToolVersion,
		Programs:    []ProgramReport{},
		Skipped:     batch.Count(staleness.Skip),
		Cached:      batch.Count(staleness.CacheHit),
		Recomputed:  batch.Count(staleness.Recompute),
		Failed:      len(batch.Failed()),
	}
	for _, r := range batch.Ordered() {
		report.Programs = append(report.Programs, ProgramReport{
			Program:      r.Program.ID(),
			Decision:     r.Decision.String(),
			Reason:       r.Reason,
			Steps:        r.StepsRun,
			Target:       r.Program.TargetPath,
			Error:        errString(r.Err),
			CacheWarning: errString(r.CacheErr),
			DurationMS:   float64(r.Duration) / float64(time.Millisecond),
		})
	}
	return report
}

func printReport(out *OutputFormatter, report OptimizeReport) {
	for _, p := range report.Programs {
		switch {
		case p.Error != "":
			out.Printf("%s %s  %s\n", red("✗"), bold(p.Program), p.Error)
		case p.Decision == staleness.Recompute.String():
			out.Printf("%s %s  %s %s\n", green("✓"), bold(p.Program), p.Decision, dim(fmt.Sprintf("(%d steps)", p.Steps)))
		default:
			out.Printf("%s %s  %s\n", green("✓"), bold(p.Program), p.Decision)
		}
		if p.CacheWarning != "" {
			out.Printf("  %s %s\n", yellow("warning:"), p.CacheWarning)
		}
	}
	out.Printf("%d total, %d skipped, %d from cache, %d optimized, %d failed %s\n",
		len(report.Programs), report.Skipped, report.Cached, report.Recomputed, report.Failed,
		dim("(tool "+report.ToolVersion+")"))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
