// Package sched fans pipeline runs out over the discovered units with a
// bounded worker pool sized from the machine's cores and the per-subject
// thread budget.
package sched

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"neuropipe/internal/dataset"
	"neuropipe/internal/ledger"
	"neuropipe/internal/logging"
	"neuropipe/internal/pipeline"
)

// MaxParallel sizes the worker pool: cores divided by the threads each
// unit's external tools are allowed to use, clamped to at least one so an
// oversubscribed budget still makes progress.
func MaxParallel(cores, threadsPerSubject int) int {
	if threadsPerSubject < 1 {
		threadsPerSubject = 1
	}
	n := cores / threadsPerSubject
	if n < 1 {
		logging.New("sched").Warn("thread budget exceeds core count, running one unit at a time",
			"cores", cores, "threads_per_subject", threadsPerSubject)
		return 1
	}
	return n
}

// Tally summarizes a scheduled run.
type Tally struct {
	Total     int
	Completed int
	Failed    int
	Results   []pipeline.Result
}

// Scheduler runs each unit's pipelines concurrently across units and
// sequentially within a unit. A unit whose pipeline fails skips its
// remaining pipelines; other units are unaffected.
type Scheduler struct {
	runner *pipeline.Runner
	led    *ledger.Ledger
	limit  int
}

// New wires a scheduler with the given parallelism limit.
func New(runner *pipeline.Runner, led *ledger.Ledger, limit int) *Scheduler {
	if limit < 1 {
		limit = 1
	}
	return &Scheduler{runner: runner, led: led, limit: limit}
}

// Run executes the named pipelines for every unit and returns the tally.
// Unit failures are reported in the tally, not as an error; Run itself
// only fails on scheduling problems.
func (s *Scheduler) Run(ctx context.Context, units []dataset.Unit, pipelines []string) Tally {
	log := logging.New("sched")
	log.Info("scheduling run", "units", len(units), "pipelines", pipelines, "parallel", s.limit)

	var mu sync.Mutex
	tally := Tally{Total: len(units)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for _, u := range units {
		u := u
		g.Go(func() error {
			results := s.runUnit(gctx, u, pipelines)
			mu.Lock()
			defer mu.Unlock()
			tally.Results = append(tally.Results, results...)
			for _, r := range results {
				if r.Failed() {
					tally.Failed++
					return nil
				}
			}
			tally.Completed++
			return nil
		})
	}
	// Workers never return errors; failures land in the tally.
	_ = g.Wait()

	log.Info("run finished", "completed", tally.Completed, "failed", tally.Failed)
	return tally
}

// runUnit drives one unit through its pipelines in order, halting at the
// first failed pipeline. A panic in a step is converted into a failed
// result so one bad unit cannot take down the whole run.
func (s *Scheduler) runUnit(ctx context.Context, u dataset.Unit, pipelines []string) (results []pipeline.Result) {
	current := ""
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic: %v", r)
			logging.New("sched").Error("unit worker panicked", "unit", u.Label(), "pipeline", current, "panic", r)
			if err := s.led.Record(ledger.Entry{
				Unit: u.Label(), Pipeline: current, Step: "panic", Code: 1, Message: msg,
			}); err != nil {
				logging.New("sched").Error("cannot record panic", "error", err)
			}
			results = append(results, pipeline.Result{
				Unit: u, Pipeline: current, State: pipeline.StateFailed,
				FailedStep: "panic", FailedCode: 1, Err: fmt.Errorf("%s", msg),
			})
		}
	}()

	for _, name := range pipelines {
		current = name
		res := s.runner.Run(ctx, name, u)
		results = append(results, res)
		if res.Failed() {
			break
		}
	}
	return results
}
