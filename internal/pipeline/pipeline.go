package pipeline

import (
	"context"
	"errors"

	"neuropipe/internal/dataset"
	"neuropipe/internal/logging"
)

// State of one unit's pipeline run.
type State int

const (
	StatePending State = iota
	StatePreparing
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StatePreparing:
		return "preparing"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Preparer creates a unit's local directory scaffolding before the first
// step. It must be idempotent: directories that already exist are fine.
type Preparer func(u dataset.Unit) error

// Result is the outcome of running one pipeline for one unit.
type Result struct {
	Unit       dataset.Unit
	Pipeline   string
	State      State
	FailedStep string // set when State == StateFailed
	FailedCode int    // exit/ledger code of the failing step
	StepsRun   int    // steps that completed (including skipped)
	Err        error
}

// failureCode extracts the ledgered code from a step failure; errors
// raised outside the step contract count as a generic failure.
func failureCode(err error) int {
	var se *StepError
	if errors.As(err, &se) {
		return se.Code
	}
	return 1
}

// Failed reports whether the run ended in failure.
func (r Result) Failed() bool { return r.State == StateFailed }

// Runner drives a pipeline's ordered steps for one unit, fail-fast: the
// first failing step halts the unit's pipeline, and no later step is
// attempted. There are no in-process retries; a failed unit is retried by
// rerunning the program, with skip-existing avoiding completed steps.
type Runner struct {
	registry *Registry
	steps    *StepRunner
	prepare  map[string]Preparer // per pipeline name, optional
}

// NewRunner wires a pipeline runner. prepare maps pipeline names to their
// scaffolding functions; pipelines without an entry skip the Preparing
// phase.
func NewRunner(reg *Registry, steps *StepRunner, prepare map[string]Preparer) *Runner {
	if prepare == nil {
		prepare = map[string]Preparer{}
	}
	return &Runner{registry: reg, steps: steps, prepare: prepare}
}

// Run executes the named pipeline for the unit:
// Pending → Preparing → Running(i) → Completed | Failed(i).
func (p *Runner) Run(ctx context.Context, pipeline string, u dataset.Unit) Result {
	log := logging.New("pipeline").With("unit", u.Label(), "pipeline", pipeline)
	res := Result{Unit: u, Pipeline: pipeline, State: StatePending}

	steps := p.registry.Steps(pipeline)
	if len(steps) == 0 {
		log.Warn("pipeline has no registered steps, nothing to do")
		res.State = StateCompleted
		return res
	}

	// Preparing. Scaffolding is skipped in dry-run so a dry run leaves
	// the output root untouched.
	res.State = StatePreparing
	if prep := p.prepare[pipeline]; prep != nil && !p.steps.Config().DryRun {
		if err := prep(u); err != nil {
			res.State = StateFailed
			res.FailedStep = "prepare"
			res.FailedCode = 1
			res.Err = p.steps.Fail(pipeline, "prepare", u, 1, err.Error())
			return res
		}
	}

	res.State = StateRunning
	for _, step := range steps {
		if err := p.steps.Execute(ctx, step, u); err != nil {
			res.State = StateFailed
			res.FailedStep = step.ID
			res.FailedCode = failureCode(err)
			res.Err = err
			log.Error("pipeline halted", "failed_step", step.ID, "steps_run", res.StepsRun)
			return res
		}
		res.StepsRun++
	}

	res.State = StateCompleted
	log.Info("pipeline completed", "steps", res.StepsRun)
	return res
}
