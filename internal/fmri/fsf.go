package fmri

import (
	"context"
	"fmt"

	"neuropipe/internal/pipeline"
)

// fsfRoutine is the nuisance-regression step. Unlike the direct steps it
// issues several commands: after validating the three required masks it
// runs each configured regression flavor as its own sub-step, and the
// step completes only when every flavor succeeds.
//
// Mask validation fails closed before any flavor is attempted: running a
// regression against an empty or corrupt mask would produce plausible
// but meaningless residuals.
func (s stepSet) fsfRoutine(ctx context.Context, sc pipeline.StepContext) error {
	l := s.layout(sc.Unit)
	cfg := sc.Runner.Config()

	if !cfg.DryRun {
		masks := []struct{ name, path string }{
			{"csf", l.csfMask()},
			{"wm", l.wmMask()},
			{"brain", l.brainMask()},
		}
		for _, m := range masks {
			if !pipeline.MaskValid(ctx, sc.Runner.Execer(), m.path) {
				return sc.Runner.Fail(sc.Pipeline, sc.StepID, sc.Unit, 1,
					fmt.Sprintf("required %s mask is missing, empty, or has no nonzero voxels: %s", m.name, m.path))
			}
		}
	}

	for _, flavor := range cfg.Flavors {
		subStep := sc.StepID + ":" + flavor
		cmd := s.regressionCommand(sc.Unit, flavor)
		if err := sc.Runner.RunCommand(ctx, sc.Pipeline, subStep, sc.Unit, cmd); err != nil {
			return err
		}
	}
	return nil
}
