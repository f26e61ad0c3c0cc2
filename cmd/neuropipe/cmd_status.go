package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"neuropipe/internal/store"
)

var statusFlags struct {
	output string
	runID  string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recorded runs and their unit outcomes",
	RunE:  runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.StringVar(&statusFlags.output, "output", "", "Derivative output root of the runs (required)")
	f.StringVar(&statusFlags.runID, "run", "", "Show one run's unit outcomes instead of the run list")

	_ = statusCmd.MarkFlagRequired("output")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	st, err := store.Open(filepath.Join(statusFlags.output, "logs", "runs.db"))
	if err != nil {
		return err
	}
	defer st.Close()
	out := cmd.OutOrStdout()

	if statusFlags.runID != "" {
		run, err := st.GetRun(statusFlags.runID)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %s not found", statusFlags.runID)
		}
		fmt.Fprintf(out, "Run:       %s\n", run.ID)
		fmt.Fprintf(out, "Started:   %s\n", run.StartedAt)
		if run.FinishedAt == "" {
			fmt.Fprintf(out, "Finished:  (still running or aborted)\n")
		} else {
			fmt.Fprintf(out, "Finished:  %s\n", run.FinishedAt)
		}
		fmt.Fprintf(out, "Units:     %d (%d completed, %d failed)\n\n",
			run.Units, run.Completed, run.Failed)

		results, err := st.ListUnitResults(run.ID)
		if err != nil {
			return err
		}
		for _, r := range results {
			if r.Status == "failed" {
				fmt.Fprintf(out, "  %-28s %-8s %s at %s\n", r.Unit, r.Pipeline, r.Status, r.FailedStep)
			} else {
				fmt.Fprintf(out, "  %-28s %-8s %s\n", r.Unit, r.Pipeline, r.Status)
			}
		}
		return nil
	}

	runs, err := st.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No recorded runs.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(out, "%s  %s  units=%d completed=%d failed=%d\n",
			r.ID, r.StartedAt, r.Units, r.Completed, r.Failed)
	}
	return nil
}
