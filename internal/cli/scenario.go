package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/scenario"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Keep bool // keep each scenario's data directory
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name       string   `json:"name"`
	File       string   `json:"file"`
	Pass       bool     `json:"pass"`
	Transcript []string `json:"transcript,omitempty"`
	Dump       string   `json:"dump,omitempty"`
	DataDir    string   `json:"data_dir,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// ScenarioSummary holds the overall result.
type ScenarioSummary struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <file.yaml>...",
		Short: "Run scripted scenarios against scratch data directories",
		Long: `Run each scenario file against a fresh data directory with a deterministic
clock and event ids, then print the transcript and the final projection dump.
The data directory given by --data-dir is never touched.

Exit codes:
  0 - All scenarios passed
  1 - A step, parity check or assertion failed
  2 - Command error (unreadable or invalid scenario file)

Examples:
  chronicle scenario testdata/interleaved_supersede.yaml
  chronicle scenario demo.yaml --keep`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Keep, "keep", false, "keep scenario data directories for inspection")

	return cmd
}

func runScenarios(opts *ScenarioOptions, files []string, cmd *cobra.Command) error {
	scenarios := make([]*scenario.Scenario, 0, len(files))
	for _, file := range files {
		s, err := scenario.Load(file)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load %s", file), err)
		}
		scenarios = append(scenarios, s)
	}

	f := opts.formatter(cmd)
	summary := ScenarioSummary{Scenarios: make([]ScenarioResult, 0, len(scenarios))}
	for i, s := range scenarios {
		res, err := runScenario(opts, cmd, s)
		res.File = files[i]
		if err != nil {
			return err
		}
		summary.Scenarios = append(summary.Scenarios, res)
		if res.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}

		if f.Format != "json" {
			printScenario(f, res)
		}
	}

	if f.Format == "json" {
		if err := f.Success(summary); err != nil {
			return err
		}
	} else if len(scenarios) > 1 {
		fmt.Fprintf(f.Writer, "%d passed, %d failed\n", summary.Passed, summary.Failed)
	}

	if summary.Failed > 0 {
		return &ExitError{Code: ExitFailure, Reason: "SCENARIO_FAILED", Message: fmt.Sprintf("%d scenario(s) failed", summary.Failed)}
	}
	return nil
}

// runScenario returns an error only when the scratch directory cannot be
// managed; scenario failures are reported in the result.
func runScenario(opts *ScenarioOptions, cmd *cobra.Command, s *scenario.Scenario) (ScenarioResult, error) {
	dir, err := os.MkdirTemp("", "chronicle-scenario-*")
	if err != nil {
		return ScenarioResult{Name: s.Name}, WrapExitError(ExitCommandError, "failed to create scratch directory", err)
	}
	if opts.Keep {
		defer opts.formatter(cmd).VerboseLog("kept %s data in %s", s.Name, dir)
	} else {
		defer os.RemoveAll(dir)
	}

	res := ScenarioResult{Name: s.Name, Pass: true}
	if opts.Keep {
		res.DataDir = dir
	}

	out, err := scenario.Run(cmd.Context(), s, dir)
	if out != nil {
		res.Transcript = out.Transcript
		res.Dump = out.Dump
	}
	if err != nil {
		res.Pass = false
		res.Error = err.Error()
	}
	return res, nil
}

func printScenario(f *OutputFormatter, res ScenarioResult) {
	fmt.Fprintf(f.Writer, "# scenario %s\n", res.Name)
	for _, line := range res.Transcript {
		fmt.Fprintln(f.Writer, line)
	}
	fmt.Fprint(f.Writer, res.Dump)
	if res.Pass {
		fmt.Fprintf(f.Writer, "PASS %s\n", res.Name)
	} else {
		fmt.Fprintf(f.Writer, "FAIL %s: %s\n", res.Name, res.Error)
	}
	if res.DataDir != "" {
		fmt.Fprintf(f.Writer, "data: %s\n", res.DataDir)
	}
}
