package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"neuropipe/internal/ledger"
)

var reportFlags struct {
	output string
	errors bool
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the last run report or the error ledger",
	RunE:  runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportFlags.output, "output", "", "Derivative output root of the run (required)")
	f.BoolVar(&reportFlags.errors, "errors", false, "Print the error ledger instead of the report")

	_ = reportCmd.MarkFlagRequired("output")
}

func runReport(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	logDir := filepath.Join(reportFlags.output, "logs")

	if reportFlags.errors {
		led := ledger.New(filepath.Join(logDir, "errors.ledger"))
		entries, err := led.Entries()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No recorded failures.")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s  %-28s %s/%s (code %d): %s\n",
				e.Time.Format("2006-01-02 15:04:05"), e.Unit, e.Pipeline, e.Step, e.Code, e.Message)
		}
		return nil
	}

	data, err := os.ReadFile(filepath.Join(logDir, "run-report.txt"))
	if err != nil {
		return fmt.Errorf("no run report found under %s: %w", logDir, err)
	}
	fmt.Fprint(out, string(data))
	return nil
}
