package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/shaker/internal/steps"
)

// StepsOptions holds flags for the steps command.
type StepsOptions struct {
	*RootOptions
	ToolVersion string
}

// StepInfo describes one registered step.
type StepInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

// StepsReport lists the registry and the tool version it produces.
type StepsReport struct {
	ToolVersion string     `json:"tool_version"`
	Fingerprint string     `json:"fingerprint"`
	Steps       []StepInfo `json:"steps"`
}

// NewStepsCommand creates the steps command.
func NewStepsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StepsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "steps",
		Short: "List optimization steps",
		Long: `List the optimization steps in the order they run.

The labels are the file names of per-step snapshots written with
--track-steps. The tool version shown is the cache namespace: it changes
whenever a step is added, removed or reordered.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSteps(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ToolVersion, "tool-version", steps.BaseVersion, "base tool version")

	return cmd
}

func runSteps(opts *StepsOptions, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts.RootOptions)
	reg := steps.Default()

	report := StepsReport{
		ToolVersion: reg.Version(opts.ToolVersion),
		Fingerprint: reg.Fingerprint(),
	}
	for i, name := range reg.Names() {
		report.Steps = append(report.Steps, StepInfo{
			Index: i + 1,
			Name:  name,
			Label: steps.Label(i+1, name),
		})
	}

	if out.JSON() {
		return out.Success(report)
	}
	for _, s := range report.Steps {
		out.Printf("%s\n", s.Label)
	}
	out.Printf("%s %s\n", dim("tool version"), bold(report.ToolVersion))
	return nil
}
