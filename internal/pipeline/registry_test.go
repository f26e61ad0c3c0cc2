package pipeline

import (
	"context"
	"strings"
	"testing"

	"neuropipe/internal/dataset"
)

func noopBuilder(dataset.Unit) string { return "true" }

func noopRoutine(context.Context, StepContext) error { return nil }

func TestRegister_AssignsIncreasingOrder(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		if err := r.Register("fmri", id, id, DirectCommand, noopBuilder, nil, nil); err != nil {
			t.Fatalf("Register %s: %v", id, err)
		}
	}

	steps := r.Steps("fmri")
	if len(steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(steps))
	}
	for i, s := range steps {
		if s.Order != i {
			t.Errorf("step %s order = %d, want %d", s.ID, s.Order, i)
		}
	}
}

func TestRegister_DuplicateID(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("fmri", "anatomical", "Anatomical", DirectCommand, noopBuilder, nil, nil); err != nil {
		t.Fatal(err)
	}
	err := r.Register("fmri", "anatomical", "Anatomical again", DirectCommand, noopBuilder, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("want duplicate error, got %v", err)
	}

	// Same id in another pipeline is fine.
	if err := r.Register("dwi", "anatomical", "Anatomical", DirectCommand, noopBuilder, nil, nil); err != nil {
		t.Errorf("same id in other pipeline: %v", err)
	}
}

func TestRegister_ExecutorMatchesKind(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("fmri", "x", "x", DirectCommand, nil, nil, nil); err == nil {
		t.Error("command step without builder should fail")
	}
	if err := r.Register("fmri", "y", "y", CustomRoutine, nil, nil, nil); err == nil {
		t.Error("routine step without routine should fail")
	}
	if err := r.Register("fmri", "z", "z", CustomRoutine, nil, noopRoutine, nil); err != nil {
		t.Errorf("valid routine step: %v", err)
	}
}

func TestSteps_UnknownPipelineIsEmpty(t *testing.T) {
	r := NewRegistry()
	if steps := r.Steps("nope"); len(steps) != 0 {
		t.Errorf("unknown pipeline yielded %d steps", len(steps))
	}
}

func TestSteps_ReturnsCopy(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("fmri", "a", "a", DirectCommand, noopBuilder, nil, nil); err != nil {
		t.Fatal(err)
	}
	steps := r.Steps("fmri")
	steps[0].ID = "mutated"
	if r.Steps("fmri")[0].ID != "a" {
		t.Error("Steps exposed internal slice")
	}
}

func TestPipelines_Sorted(t *testing.T) {
	r := NewRegistry()
	for _, p := range []string{"fmri", "dwi", "asl"} {
		if err := r.Register(p, "s", "s", DirectCommand, noopBuilder, nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	got := r.Pipelines()
	want := []string{"asl", "dwi", "fmri"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Pipelines = %v, want %v", got, want)
		}
	}
}
