package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cigrirepo/Floww/internal/domain"
	"github.com/cigrirepo/Floww/internal/usecase"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var workspace string
	var pipeline string
	var env string
	var noSave bool
	var format string

	c := &cobra.Command{
		Use:   "run",
		Short: "Run a pipeline (install, lint, smoke) from a Floww workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			pipelinePath, err := resolvePipelinePath(ws, pipeline)
			if err != nil {
				return err
			}

			envArg, err := resolveEnvironmentArg(ws, env)
			if err != nil {
				return err
			}

			var store = ws.store
			if noSave {
				store = nil
			}

			uc := usecase.NewRunPipeline(ws.pipelines, ws.envs, ws.commands, ws.launcher, ws.prober, store)

			run, runID, err := uc.Execute(cmd.Context(), pipelinePath, envArg)
			if err != nil {
				// Print whatever partial result we have before surfacing the error.
				_ = printRun(os.Stdout, run, runID, format)
				return err
			}

			if err := printRun(os.Stdout, run, runID, format); err != nil {
				return err
			}

			if fails := run.FailedSteps(); fails > 0 {
				return fmt.Errorf("run failed (%d failed step(s))", fails)
			}
			return nil
		},
	}

	c.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	c.Flags().StringVarP(&pipeline, "pipeline", "p", "", "Pipeline name or path (required)")
	c.Flags().StringVarP(&env, "env", "e", "", "Environment name or path (optional; defaults to workspace default env)")
	c.Flags().BoolVar(&noSave, "no-save", false, "Do not save run artifact under runs/")
	c.Flags().StringVar(&format, "format", "pretty", "Output format: pretty|json")

	_ = c.MarkFlagRequired("pipeline")
	return c
}

func printRun(w io.Writer, run domain.RunResult, runID string, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		// Include runID (optional) as a wrapper to avoid changing domain model.
		payload := map[string]any{
			"run_id": runID,
			"run":    run,
		}
		return enc.Encode(payload)
	case "pretty", "":
		printPrettyRun(w, run, runID)
		return nil
	default:
		return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
	}
}

func printPrettyRun(w io.Writer, run domain.RunResult, runID string) {
	total := run.EndedAt.Sub(run.StartedAt)
	if run.StartedAt.IsZero() || run.EndedAt.IsZero() {
		total = 0
	}

	fmt.Fprintf(w, "Pipeline: %s\n", run.PipelineName)
	fmt.Fprintf(w, "Env:      %s\n", run.EnvironmentName)
	fmt.Fprintf(w, "Started:  %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Ended:    %s\n", run.EndedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Duration: %s\n", total)
	if runID != "" {
		fmt.Fprintf(w, "Run ID:   %s\n", runID)
	}
	fmt.Fprintln(w)

	for _, r := range run.Results {
		status := "OK"
		switch {
		case r.Skipped:
			status = "SKIP"
		case r.Failed():
			status = "FAIL"
		}

		fmt.Fprintf(w, "- [%s] %s (%s) %dms\n", status, r.Name, r.Kind, r.DurationMS)

		if r.Skipped {
			fmt.Fprintf(w, "  skipped: earlier step failed\n")
			fmt.Fprintln(w)
			continue
		}

		if r.Error != nil {
			fmt.Fprintf(w, "  error: %s (%s)\n", r.Error.Message, r.Error.Kind)
		} else if r.Probe == nil {
			fmt.Fprintf(w, "  exit: %d\n", r.ExitCode)
		}

		if r.Probe != nil {
			p := r.Probe
			if p.Error != nil {
				fmt.Fprintf(w, "  probe: %s — %s (%s)\n", p.URL, p.Error.Message, p.Error.Kind)
			} else {
				fmt.Fprintf(w, "  probe: %s — status %d in %dms (%d attempt(s))\n", p.URL, p.StatusCode, p.LatencyMS, p.Attempts)
			}

			if len(p.Assertions) > 0 {
				pass, fail := countAssertionPassFail(p.Assertions)
				fmt.Fprintf(w, "  assertions: %d pass / %d fail\n", pass, fail)
				for _, a := range p.Assertions {
					mark := "✓"
					if !a.Passed {
						mark = "✗"
					}
					fmt.Fprintf(w, "    %s %s — %s\n", mark, a.Name, a.Message)
				}
			}
		}

		fmt.Fprintln(w)
	}
}

func countAssertionPassFail(in []domain.AssertionResult) (pass int, fail int) {
	for _, a := range in {
		if a.Passed {
			pass++
		} else {
			fail++
		}
	}
	return pass, fail
}
