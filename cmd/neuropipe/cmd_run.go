package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"neuropipe/internal/command"
	"neuropipe/internal/config"
	"neuropipe/internal/dataset"
	"neuropipe/internal/fmri"
	"neuropipe/internal/ledger"
	"neuropipe/internal/logging"
	"neuropipe/internal/pipeline"
	"neuropipe/internal/preflight"
	"neuropipe/internal/report"
	"neuropipe/internal/sched"
	"neuropipe/internal/store"
)

var runFlags struct {
	configPath    string
	input         string
	output        string
	subjects      string
	threads       int
	flavors       []string
	dryRun        bool
	skipExisting  bool
	skipPreflight bool
	verbose       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipelines over the discovered units",
	RunE:  runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.configPath, "config", "c", "", "Path to config file (YAML/JSON)")
	f.StringVar(&runFlags.input, "input", "", "Dataset root with subject directories")
	f.StringVar(&runFlags.output, "output", "", "Derivative output root")
	f.StringVar(&runFlags.subjects, "subjects", "", `Subject filter: "all", or a comma-separated list (default: smoke-test subject)`)
	f.IntVar(&runFlags.threads, "threads-per-subject", 0, "Threads each unit's tools may use (sizes the worker pool)")
	f.StringSliceVar(&runFlags.flavors, "flavors", nil, "Nuisance-regression flavors to produce")
	f.BoolVarP(&runFlags.dryRun, "dry-run", "n", false, "Log commands without executing or touching the output root")
	f.BoolVar(&runFlags.skipExisting, "skip-existing", true, "Skip steps whose outputs already exist and validate")
	f.BoolVar(&runFlags.skipPreflight, "skip-preflight", false, "Skip the external tool checks")
	f.BoolVarP(&runFlags.verbose, "verbose", "v", false, "Debug logging")
}

// resolveConfig layers flag overrides over the config file over defaults.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if runFlags.configPath != "" {
		loaded, err := config.LoadFromPath(runFlags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		def := config.Default()
		cfg = &def
	}

	flags := cmd.Flags()
	if runFlags.input != "" {
		cfg.InputRoot = runFlags.input
	}
	if runFlags.output != "" {
		cfg.OutputRoot = runFlags.output
	}
	if flags.Changed("subjects") {
		cfg.Subjects = runFlags.subjects
	}
	if flags.Changed("threads-per-subject") {
		cfg.ThreadsPerSubject = runFlags.threads
	}
	if flags.Changed("flavors") {
		cfg.Flavors = runFlags.flavors
	}
	if flags.Changed("skip-existing") {
		cfg.SkipExisting = runFlags.skipExisting
	}
	if runFlags.dryRun {
		cfg.DryRun = true
	}
	if runFlags.verbose {
		cfg.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	// A dry run must leave the output root untouched, so it logs to
	// stderr only instead of opening the daily file.
	if cfg.DryRun {
		logging.Init(level, "text")
	} else {
		closer, err := logging.InitDaily(level, "text", cfg.LogDir())
		if err != nil {
			return err
		}
		defer closer.Close()
	}
	log := logging.New("run")

	if !cfg.DryRun && !runFlags.skipPreflight {
		if problems := preflight.New().Check(cfg); len(problems) > 0 {
			return fmt.Errorf("preflight failed:\n  %s", strings.Join(problems, "\n  "))
		}
	}

	var pattern *regexp.Regexp
	if cfg.SubjectPattern != "" {
		pattern, err = regexp.Compile(cfg.SubjectPattern)
		if err != nil {
			return fmt.Errorf("subject_pattern: %w", err)
		}
	}
	units, err := dataset.Discover(cfg.InputRoot, dataset.ParseFilter(cfg.Subjects), pattern)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		log.Warn("no units matched the subject filter, nothing to do",
			"subjects", cfg.Subjects)
		return nil
	}

	led := ledger.New(cfg.LedgerPath())
	ex := command.Shell{}
	reg := pipeline.NewRegistry()
	if err := fmri.Register(reg, cfg, ex); err != nil {
		return err
	}
	steps := pipeline.NewStepRunner(cfg, ex, led, nil)
	runner := pipeline.NewRunner(reg, steps, map[string]pipeline.Preparer{
		fmri.PipelineName: fmri.Prepare(cfg),
	})

	limit := sched.MaxParallel(runtime.NumCPU(), cfg.ThreadsPerSubject)
	scheduler := sched.New(runner, led, limit)

	runID := uuid.NewString()
	var st store.Store
	if !cfg.DryRun {
		st, err = store.Open(filepath.Join(cfg.LogDir(), "runs.db"))
		if err != nil {
			return err
		}
		defer st.Close()
		cfgJSON, _ := json.Marshal(cfg)
		if err := st.CreateRun(&store.Run{
			ID: runID, ConfigJSON: string(cfgJSON), Units: len(units),
		}); err != nil {
			return err
		}
	}

	started := time.Now()
	log.Info("starting run", "run_id", runID, "units", len(units),
		"pipelines", cfg.Pipelines, "dry_run", cfg.DryRun)
	tally := scheduler.Run(cmd.Context(), units, cfg.Pipelines)
	finished := time.Now()

	if st != nil {
		for _, r := range tally.Results {
			res := &store.UnitResult{
				RunID: runID, Unit: r.Unit.Label(), Pipeline: r.Pipeline,
				Status: r.State.String(), FailedStep: r.FailedStep, Code: r.FailedCode,
			}
			if err := st.AddUnitResult(res); err != nil {
				log.Error("cannot record unit result", "error", err)
			}
		}
		if err := st.FinishRun(runID, tally.Completed, tally.Failed); err != nil {
			log.Error("cannot finish run record", "error", err)
		}
	}

	entries, err := led.Entries()
	if err != nil {
		log.Error("cannot read error ledger", "error", err)
	}
	sum := &report.Summary{
		RunID:    runID,
		Started:  started,
		Finished: finished,
		Config:   cfg,
		Tally:    tally,
		Errors:   entries,
	}
	fmt.Fprint(cmd.OutOrStdout(), report.Format(sum))
	if !cfg.DryRun {
		if err := report.Write(cfg.ReportPath(), sum); err != nil {
			return err
		}
	}

	if tally.Failed > 0 {
		return fmt.Errorf("%d of %d units failed (see %s)",
			tally.Failed, tally.Total, cfg.LedgerPath())
	}
	return nil
}
