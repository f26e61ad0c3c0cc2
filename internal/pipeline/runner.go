package pipeline

import (
	"context"
	"fmt"

	"neuropipe/internal/command"
	"neuropipe/internal/config"
	"neuropipe/internal/dataset"
	"neuropipe/internal/ledger"
	"neuropipe/internal/logging"
)

// errMessageLines bounds how much captured output lands in the ledger.
const errMessageLines = 5

// StepContext carries a step's identity into custom routines.
type StepContext struct {
	Pipeline string
	StepID   string
	Label    string
	Unit     dataset.Unit

	// Runner lets a routine run sub-step commands and report failures
	// under the same contract as direct steps.
	Runner *StepRunner
}

// StepRunner executes one step for one unit: probe-and-skip, command
// building, dry-run, execution, failure classification, and ledger
// reporting.
type StepRunner struct {
	cfg    *config.Config
	exec   command.Execer
	ledger *ledger.Ledger

	// failure classifies captured output of a zero-exit command;
	// defaults to command.LooksLikeFailure. Overridable so the heuristic
	// can be disabled or tuned per tool in tests.
	failure func([]byte) bool
}

// NewStepRunner wires a step runner. failure may be nil to use the
// default output heuristic.
func NewStepRunner(cfg *config.Config, ex command.Execer, led *ledger.Ledger, failure func([]byte) bool) *StepRunner {
	if failure == nil {
		failure = command.LooksLikeFailure
	}
	return &StepRunner{cfg: cfg, exec: ex, ledger: led, failure: failure}
}

// Config exposes the run configuration to custom routines.
func (r *StepRunner) Config() *config.Config { return r.cfg }

// Execer exposes the command executor for probe queries.
func (r *StepRunner) Execer() command.Execer { return r.exec }

// Execute runs one step for one unit.
//
// With skip-existing enabled, a step whose probe reports complete is
// skipped without building or running anything. A step without a probe is
// never skipped.
func (r *StepRunner) Execute(ctx context.Context, step Step, u dataset.Unit) error {
	log := logging.New("step").With(
		"unit", u.Label(), "pipeline", step.Pipeline, "step", step.ID)

	if r.cfg.SkipExisting && step.Probe != nil && step.Probe(ctx, u) {
		log.Info("skipping step, output already complete")
		return nil
	}

	switch step.Kind {
	case DirectCommand:
		cmdline := step.Build(u)
		if cmdline == "" {
			return r.Fail(step.Pipeline, step.ID, u, 1,
				fmt.Sprintf("command builder for %s produced an empty command", step.ID))
		}
		return r.RunCommand(ctx, step.Pipeline, step.ID, u, cmdline)

	case CustomRoutine:
		return step.Run(ctx, StepContext{
			Pipeline: step.Pipeline,
			StepID:   step.ID,
			Label:    step.Label,
			Unit:     u,
			Runner:   r,
		})

	default:
		return r.Fail(step.Pipeline, step.ID, u, 1,
			fmt.Sprintf("unrecognized step kind %v", step.Kind))
	}
}

// RunCommand executes one concrete command under the given step identity,
// honoring dry-run and classifying failure by exit code plus the output
// heuristic. Custom routines use it to run sub-steps (e.g. one per
// regression flavor) with the full reporting contract.
func (r *StepRunner) RunCommand(ctx context.Context, pipeline, stepID string, u dataset.Unit, cmdline string) error {
	log := logging.New("step").With("unit", u.Label(), "pipeline", pipeline, "step", stepID)

	if r.cfg.DryRun {
		log.Info("dry-run, command not executed", "cmd", cmdline)
		return nil
	}

	log.Debug("executing", "cmd", cmdline)
	res, err := r.exec.Exec(ctx, cmdline)
	if err != nil {
		return r.Fail(pipeline, stepID, u, 1, fmt.Sprintf("cannot run command: %v", err))
	}

	if res.ExitCode != 0 || r.failure(res.Output) {
		code := res.ExitCode
		if code == 0 {
			code = 1
		}
		msg := command.LastLines(res.Output, errMessageLines)
		if msg == "" {
			msg = fmt.Sprintf("command exited with code %d and no output", res.ExitCode)
		}
		return r.Fail(pipeline, stepID, u, code, msg)
	}

	log.Info("step succeeded", "status", "ok")
	return nil
}

// StepError is the failure a step reports: the ledgered code alongside
// the message, so the pipeline driver can carry the code into results
// and the run store instead of re-parsing error text.
type StepError struct {
	Pipeline string
	StepID   string
	Unit     dataset.Unit
	Code     int
	Message  string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s/%s failed for %s (code %d): %s",
		e.Pipeline, e.StepID, e.Unit.Label(), e.Code, e.Message)
}

// Fail records a failure in the ledger, logs it, and returns the error
// the pipeline driver propagates. Every failure path goes through here so
// nothing is silently swallowed.
func (r *StepRunner) Fail(pipeline, stepID string, u dataset.Unit, code int, msg string) error {
	logging.New("step").Error("step failed",
		"unit", u.Label(), "pipeline", pipeline, "step", stepID, "code", code, "message", msg)
	if err := r.ledger.Record(ledger.Entry{
		Unit:     u.Label(),
		Pipeline: pipeline,
		Step:     stepID,
		Code:     code,
		Message:  msg,
	}); err != nil {
		logging.New("step").Error("cannot record failure", "error", err)
	}
	return &StepError{Pipeline: pipeline, StepID: stepID, Unit: u, Code: code, Message: msg}
}
