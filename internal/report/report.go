// Package report renders the end-of-run summary consumed by operators
// and written next to the error ledger.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"neuropipe/internal/config"
	"neuropipe/internal/ledger"
	"neuropipe/internal/sched"
)

// Summary is everything the report is rendered from.
type Summary struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Config   *config.Config
	Tally    sched.Tally
	Errors   []ledger.Entry
}

// Format produces the human-readable run report.
func Format(sum *Summary) string {
	var b strings.Builder

	b.WriteString("=== neuropipe Run Report ===\n")
	b.WriteString(fmt.Sprintf("Run:      %s\n", sum.RunID))
	b.WriteString(fmt.Sprintf("Started:  %s\n", sum.Started.Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("Finished: %s (%s)\n", sum.Finished.Format(time.RFC3339),
		sum.Finished.Sub(sum.Started).Round(time.Second)))
	if sum.Config != nil {
		c := sum.Config
		b.WriteString(fmt.Sprintf("Input:    %s\n", c.InputRoot))
		b.WriteString(fmt.Sprintf("Output:   %s\n", c.OutputRoot))
		b.WriteString(fmt.Sprintf("Flavors:  %s\n", strings.Join(c.Flavors, ", ")))
		if c.DryRun {
			b.WriteString("Mode:     dry-run\n")
		}
		// Acquisition and processing parameters, recorded so a report on
		// its own is enough to reproduce the run.
		b.WriteString("\n--- Configuration ---\n")
		b.WriteString(fmt.Sprintf("Threads per subject: %d\n", c.ThreadsPerSubject))
		b.WriteString(fmt.Sprintf("Template:            %s\n", c.Template))
		b.WriteString(fmt.Sprintf("Atlas:               %s\n", c.Atlas))
		b.WriteString(fmt.Sprintf("Repetition time:     %g s\n", c.RepetitionTime))
		b.WriteString(fmt.Sprintf("Echo time:           %g ms\n", c.EchoTime))
		b.WriteString(fmt.Sprintf("Bandpass:            %g-%g Hz\n", c.HighpassHz, c.LowpassHz))
		b.WriteString(fmt.Sprintf("Smoothing FWHM:      %g mm\n", c.SmoothFWHM))
	}
	b.WriteString("\n--- Units ---\n")
	b.WriteString(fmt.Sprintf("Total:     %d\n", sum.Tally.Total))
	b.WriteString(fmt.Sprintf("Completed: %d\n", sum.Tally.Completed))
	b.WriteString(fmt.Sprintf("Failed:    %d\n\n", sum.Tally.Failed))

	if len(sum.Errors) > 0 {
		b.WriteString("--- Failures by step ---\n")
		counts := map[string]int{}
		for _, e := range sum.Errors {
			counts[e.Step]++
		}
		steps := make([]string, 0, len(counts))
		for s := range counts {
			steps = append(steps, s)
		}
		sort.Slice(steps, func(i, j int) bool {
			if counts[steps[i]] != counts[steps[j]] {
				return counts[steps[i]] > counts[steps[j]]
			}
			return steps[i] < steps[j]
		})
		for _, s := range steps {
			b.WriteString(fmt.Sprintf("%-24s %d\n", s, counts[s]))
		}
		b.WriteString("\n")
	}

	var failed []string
	for _, r := range sum.Tally.Results {
		if r.Failed() {
			failed = append(failed, fmt.Sprintf("%-28s %s failed at %s",
				r.Unit.Label(), r.Pipeline, r.FailedStep))
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		b.WriteString("--- Failed units ---\n")
		for _, line := range failed {
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}

	result := "PASS"
	if sum.Tally.Failed > 0 {
		result = "FAIL"
	}
	b.WriteString(fmt.Sprintf("RESULT: %s (%d/%d units completed)\n",
		result, sum.Tally.Completed, sum.Tally.Total))
	return b.String()
}

// Write renders the summary to path, creating parent directories.
func Write(path string, sum *Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(Format(sum)), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
