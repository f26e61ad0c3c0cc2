package sched

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"neuropipe/internal/command"
	"neuropipe/internal/config"
	"neuropipe/internal/dataset"
	"neuropipe/internal/ledger"
	"neuropipe/internal/pipeline"
)

func TestMaxParallel(t *testing.T) {
	cases := []struct {
		cores, threads, want int
	}{
		{8, 3, 2},
		{8, 4, 2},
		{16, 4, 4},
		{2, 16, 1}, // budget exceeds cores, clamp
		{4, 0, 4},  // unset budget means one thread per unit
		{1, 1, 1},
	}
	for _, tc := range cases {
		if got := MaxParallel(tc.cores, tc.threads); got != tc.want {
			t.Errorf("MaxParallel(%d, %d) = %d, want %d", tc.cores, tc.threads, got, tc.want)
		}
	}
}

// gaugeExec tracks the peak number of concurrent Exec calls.
type gaugeExec struct {
	cur  int32
	peak int32
}

func (g *gaugeExec) Exec(context.Context, string) (command.Result, error) {
	n := atomic.AddInt32(&g.cur, 1)
	for {
		p := atomic.LoadInt32(&g.peak)
		if n <= p || atomic.CompareAndSwapInt32(&g.peak, p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&g.cur, -1)
	return command.Result{ExitCode: 0, Output: []byte("done\n")}, nil
}

func testStack(t *testing.T, ex command.Execer, reg *pipeline.Registry) (*pipeline.Runner, *ledger.Ledger) {
	t.Helper()
	cfg := config.Default()
	cfg.InputRoot = t.TempDir()
	cfg.OutputRoot = t.TempDir()
	cfg.SkipExisting = false
	led := ledger.New(filepath.Join(t.TempDir(), "errors.ledger"))
	steps := pipeline.NewStepRunner(&cfg, ex, led, nil)
	return pipeline.NewRunner(reg, steps, nil), led
}

func units(n int) []dataset.Unit {
	out := make([]dataset.Unit, n)
	for i := range out {
		out[i] = dataset.Unit{Subject: string(rune('a'+i)) + "-sub"}
	}
	return out
}

func TestRun_BoundsConcurrency(t *testing.T) {
	reg := pipeline.NewRegistry()
	if err := reg.Register("fmri", "work", "work", pipeline.DirectCommand,
		func(dataset.Unit) string { return "true" }, nil, nil); err != nil {
		t.Fatal(err)
	}
	ex := &gaugeExec{}
	runner, led := testStack(t, ex, reg)

	s := New(runner, led, 2)
	tally := s.Run(context.Background(), units(8), []string{"fmri"})

	if tally.Completed != 8 || tally.Failed != 0 {
		t.Fatalf("tally = %+v, want 8 completed", tally)
	}
	if peak := atomic.LoadInt32(&ex.peak); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestRun_FailureCountsAndSkipsRemainingPipelines(t *testing.T) {
	reg := pipeline.NewRegistry()
	var secondRan sync.Map
	if err := reg.Register("first", "A", "A", pipeline.DirectCommand,
		func(u dataset.Unit) string {
			if u.Subject == "b-sub" {
				return "" // forced failure
			}
			return "true"
		}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("second", "B", "B", pipeline.DirectCommand,
		func(u dataset.Unit) string {
			secondRan.Store(u.Subject, true)
			return "true"
		}, nil, nil); err != nil {
		t.Fatal(err)
	}
	ex := &gaugeExec{}
	runner, led := testStack(t, ex, reg)

	s := New(runner, led, 4)
	tally := s.Run(context.Background(), units(3), []string{"first", "second"})

	if tally.Completed != 2 || tally.Failed != 1 {
		t.Fatalf("tally = %+v, want 2 completed / 1 failed", tally)
	}
	if _, ok := secondRan.Load("b-sub"); ok {
		t.Error("failed unit still ran its later pipeline")
	}
	for _, sub := range []string{"a-sub", "c-sub"} {
		if _, ok := secondRan.Load(sub); !ok {
			t.Errorf("healthy unit %s skipped its later pipeline", sub)
		}
	}
}

func TestRun_PanicBecomesFailedResult(t *testing.T) {
	reg := pipeline.NewRegistry()
	if err := reg.Register("fmri", "boom", "boom", pipeline.CustomRoutine, nil,
		func(context.Context, pipeline.StepContext) error {
			panic("nil deref in routine")
		}, nil); err != nil {
		t.Fatal(err)
	}
	ex := &gaugeExec{}
	runner, led := testStack(t, ex, reg)

	s := New(runner, led, 1)
	tally := s.Run(context.Background(), units(1), []string{"fmri"})

	if tally.Failed != 1 {
		t.Fatalf("tally = %+v, want the panicked unit counted as failed", tally)
	}
	var panicked *pipeline.Result
	for i := range tally.Results {
		if tally.Results[i].FailedStep == "panic" {
			panicked = &tally.Results[i]
		}
	}
	if panicked == nil {
		t.Fatal("no panic result recorded")
	}
	entries, err := led.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Step != "panic" {
		t.Errorf("entries = %+v, want one panic entry", entries)
	}
}
