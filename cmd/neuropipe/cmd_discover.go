package main

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"neuropipe/internal/config"
	"neuropipe/internal/dataset"
)

var discoverFlags struct {
	input    string
	subjects string
	pattern  string
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List the units of work a run would process",
	RunE:  runDiscover,
}

func init() {
	f := discoverCmd.Flags()
	f.StringVar(&discoverFlags.input, "input", "", "Dataset root with subject directories (required)")
	f.StringVar(&discoverFlags.subjects, "subjects", "all", `Subject filter: "all" or a comma-separated list`)
	f.StringVar(&discoverFlags.pattern, "pattern", config.Default().SubjectPattern,
		"Regexp a directory name must match to count as a subject")

	_ = discoverCmd.MarkFlagRequired("input")
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	pattern, err := regexp.Compile(discoverFlags.pattern)
	if err != nil {
		return fmt.Errorf("pattern: %w", err)
	}
	units, err := dataset.Discover(discoverFlags.input, dataset.ParseFilter(discoverFlags.subjects), pattern)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(units) == 0 {
		fmt.Fprintln(out, "No processable units found.")
		return nil
	}
	for _, u := range units {
		fmt.Fprintln(out, u.Label())
	}
	fmt.Fprintf(out, "%d unit(s)\n", len(units))
	return nil
}
