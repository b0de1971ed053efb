package cli

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shaker/internal/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Journal string
	RunID   string
	Program string
	Limit   int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded optimize runs",
		Long: `Show runs recorded in a journal.

Without --run or --program, lists the most recent runs. With --run, lists
the outcome of every program in that run. With --program, lists the most
recent outcomes of one program across runs.

Examples:
  shaker history --journal shaker.db
  shaker history --journal shaker.db --run 0193c0de-...
  shaker history --journal shaker.db --program foo.x.main --limit 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show outcomes of one run")
	cmd.Flags().StringVar(&opts.Program, "program", "", "show outcomes of one program")
	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "maximum rows (0 for all)")
	cmd.MarkFlagsMutuallyExclusive("run", "program")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := newFormatter(cmd, opts.RootOptions)

	// Opening would create an empty database; a missing journal is a typo.
	if _, err := os.Stat(opts.Journal); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}
	j, err := journal.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	switch {
	case opts.RunID != "":
		outcomes, err := j.Outcomes(ctx, opts.RunID)
		if errors.Is(err, journal.ErrRunNotFound) {
			return WrapExitError(ExitCommandError, "unknown run", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read outcomes", err)
		}
		return printOutcomes(out, outcomes)

	case opts.Program != "":
		outcomes, err := j.ProgramHistory(ctx, opts.Program, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read outcomes", err)
		}
		return printOutcomes(out, outcomes)

	default:
		runs, err := j.Runs(ctx, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read runs", err)
		}
		return printRuns(out, runs)
	}
}

// RunEntry is a journal run as reported by history.
type RunEntry struct {
	ID          string    `json:"id"`
	ToolVersion string    `json:"tool_version"`
	StartedAt   time.Time `json:"started_at"`
	DurationMS  float64   `json:"duration_ms"`
	Programs    int       `json:"programs"`
	Failed      int       `json:"failed"`
}

func printRuns(out *OutputFormatter, runs []journal.Summary) error {
	entries := make([]RunEntry, 0, len(runs))
	for _, r := range runs {
		entries = append(entries, RunEntry{
			ID:          r.ID,
			ToolVersion: r.ToolVersion,
			StartedAt:   r.StartedAt,
			DurationMS:  float64(r.Duration) / float64(time.Millisecond),
			Programs:    r.Programs,
			Failed:      r.Failed,
		})
	}
	if out.JSON() {
		return out.Success(entries)
	}

	if len(entries) == 0 {
		out.Printf("No runs recorded\n")
		return nil
	}
	for _, e := range entries {
		mark := green("✓")
		if e.Failed > 0 {
			mark = red("✗")
		}
		out.Printf("%s %s  %s  %d programs, %d failed %s\n",
			mark, e.ID, e.StartedAt.Format(time.RFC3339), e.Programs, e.Failed, dim("(tool "+e.ToolVersion+")"))
	}
	return nil
}

func printOutcomes(out *OutputFormatter, outcomes []journal.Outcome) error {
	reports := make([]ProgramReport, 0, len(outcomes))
	for _, o := range outcomes {
		reports = append(reports, ProgramReport{
			Program:      o.Program,
			Decision:     o.Decision,
			Reason:       o.Reason,
			Steps:        o.StepsRun,
			Target:       o.Target,
			Error:        o.Error,
			CacheWarning: o.CacheError,
			DurationMS:   float64(o.Duration) / float64(time.Millisecond),
		})
	}
	if out.JSON() {
		return out.Success(reports)
	}

	if len(reports) == 0 {
		out.Printf("No outcomes recorded\n")
		return nil
	}
	for _, r := range reports {
		if r.Error != "" {
			out.Printf("%s %s  %s\n", red("✗"), bold(r.Program), r.Error)
			continue
		}
		out.Printf("%s %s  %s %s\n", green("✓"), bold(r.Program), r.Decision, dim(r.Reason))
	}
	return nil
}
