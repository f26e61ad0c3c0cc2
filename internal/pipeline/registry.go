// Package pipeline is the orchestration core: a declarative step
// registry, a step runner with idempotency and failure capture, and a
// per-unit pipeline driver.
//
// Registration and execution are phase-separated: the registry is built
// once at startup and read-only afterwards, so concurrent workers read it
// without synchronization.
package pipeline

import (
	"context"
	"fmt"
	"sort"

	"neuropipe/internal/dataset"
)

// Kind selects how a step executes.
type Kind int

const (
	// DirectCommand steps build a single external command line.
	DirectCommand Kind = iota
	// CustomRoutine steps run an in-process routine that may issue
	// several commands and is responsible for its own sub-step reporting.
	CustomRoutine
)

func (k Kind) String() string {
	switch k {
	case DirectCommand:
		return "command"
	case CustomRoutine:
		return "routine"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// CommandBuilder produces the concrete command line for one unit.
// Returning an empty string marks the step as misconfigured and fails it.
type CommandBuilder func(u dataset.Unit) string

// Routine executes a CustomRoutine step. It receives its full identity in
// the StepContext and must report failures through sc.Runner before
// returning an error.
type Routine func(ctx context.Context, sc StepContext) error

// Probe reports whether a step's output artifacts already exist and are
// valid, so a resumed run can skip the step. Probes fail closed: any
// ambiguity or probe error means "not complete, redo".
type Probe func(ctx context.Context, u dataset.Unit) bool

// Step describes one registered pipeline stage.
type Step struct {
	Pipeline string
	Order    int // assigned at registration, strictly increasing per pipeline
	ID       string
	Label    string
	Kind     Kind
	Build    CommandBuilder // DirectCommand only
	Run      Routine        // CustomRoutine only
	Probe    Probe          // nil = step is never skipped
}

// Registry holds the ordered step definitions per pipeline. Append-only:
// Register before execution begins, never during a run.
type Registry struct {
	steps map[string][]Step
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{steps: make(map[string][]Step)}
}

// Register appends a step to the named pipeline, assigning the next order
// value. The step ID must be unique within the pipeline, and the executor
// matching the kind must be set.
func (r *Registry) Register(pipeline, id, label string, kind Kind, build CommandBuilder, run Routine, probe Probe) error {
	if pipeline == "" || id == "" {
		return fmt.Errorf("register %s/%s: pipeline and step id are required", pipeline, id)
	}
	switch kind {
	case DirectCommand:
		if build == nil {
			return fmt.Errorf("register %s/%s: command step needs a builder", pipeline, id)
		}
	case CustomRoutine:
		if run == nil {
			return fmt.Errorf("register %s/%s: routine step needs a routine", pipeline, id)
		}
	default:
		return fmt.Errorf("register %s/%s: unknown kind %v", pipeline, id, kind)
	}
	for _, s := range r.steps[pipeline] {
		if s.ID == id {
			return fmt.Errorf("register %s/%s: duplicate step id", pipeline, id)
		}
	}
	r.steps[pipeline] = append(r.steps[pipeline], Step{
		Pipeline: pipeline,
		Order:    len(r.steps[pipeline]),
		ID:       id,
		Label:    label,
		Kind:     kind,
		Build:    build,
		Run:      run,
		Probe:    probe,
	})
	return nil
}

// Steps returns the pipeline's steps in execution order. Unknown
// pipelines yield an empty list: an empty pipeline simply does nothing,
// and the caller logs the warning.
func (r *Registry) Steps(pipeline string) []Step {
	src := r.steps[pipeline]
	out := make([]Step, len(src))
	copy(out, src)
	return out
}

// Pipelines lists the registered pipeline names, sorted.
func (r *Registry) Pipelines() []string {
	names := make([]string, 0, len(r.steps))
	for name := range r.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
