// neuropipe orchestrates multi-stage neuroimaging pipelines over a
// BIDS-style dataset: run, discover, status, report.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "neuropipe",
	Short: "Batch orchestration for neuroimaging pipelines",
	Long: "Neuropipe drives FreeSurfer/FSL processing pipelines over a dataset\n" +
		"of subjects and sessions: bounded parallelism, resumable steps, and a\n" +
		"deduplicated error ledger.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
