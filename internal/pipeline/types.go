package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/lucasnoah/wasmfactory/internal/config"
	"github.com/lucasnoah/wasmfactory/internal/taskcache"
)

// Step is one stage of a component build.
type Step string

const (
	StepGenerate     Step = "generate"
	StepComponentize Step = "componentize"
	StepLink         Step = "link"
	StepMetadata     Step = "metadata"
)

// AllSteps lists the steps in execution order.
var AllSteps = []Step{StepGenerate, StepComponentize, StepLink, StepMetadata}

// ParseStep validates a step name.
func ParseStep(s string) (Step, error) {
	for _, step := range AllSteps {
		if string(step) == s {
			return step, nil
		}
	}
	return "", fmt.Errorf("unknown step %q (valid: generate, componentize, link, metadata)", s)
}

// Generator produces RPC stubs and bindings for a component's dependencies.
type Generator interface {
	Generate(ctx context.Context, c *config.Component) error
}

// Linker composes dependency RPC implementations into a component binary.
type Linker interface {
	Link(ctx context.Context, c *config.Component) error
}

// MetadataEmbedder writes package metadata into a component's final binary.
type MetadataEmbedder interface {
	AddMetadata(ctx context.Context, c *config.Component) error
}

// Toolchain is everything the runner needs besides external commands.
type Toolchain interface {
	Generator
	Linker
	MetadataEmbedder
}

// Outcome is the result of one task in a build.
type Outcome string

const (
	OutcomeUpToDate Outcome = "up-to-date"
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
)

// TaskOutcome describes what happened to a single task.
type TaskOutcome struct {
	Component string
	Step      Step
	Kind      taskcache.Kind
	Label     string
	Hash      string
	Outcome   Outcome
	Fresh     bool // external command skipped because its targets were newer than its sources
	Duration  time.Duration
	Err       error
}

// Observer is notified after every task. Calls are serialized.
type Observer interface {
	TaskFinished(o TaskOutcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(o TaskOutcome)

func (f ObserverFunc) TaskFinished(o TaskOutcome) { f(o) }

// Options control a build.
type Options struct {
	Steps      []Step   // empty means all
	Components []string // empty means all, in manifest order
	Force      bool
	Jobs       int // components built concurrently; <1 uses the manifest setting
}

func (o Options) wants(step Step) bool {
	if len(o.Steps) == 0 {
		return true
	}
	for _, s := range o.Steps {
		if s == step {
			return true
		}
	}
	return false
}

// Report collects every task outcome of a build in manifest order.
type Report struct {
	Tasks    []TaskOutcome
	Duration time.Duration
}

// Count returns how many tasks ended with outcome.
func (r *Report) Count(outcome Outcome) int {
	n := 0
	for _, t := range r.Tasks {
		if t.Outcome == outcome {
			n++
		}
	}
	return n
}

// Failed returns the failed tasks.
func (r *Report) Failed() []TaskOutcome {
	var out []TaskOutcome
	for _, t := range r.Tasks {
		if t.Outcome == OutcomeFailure {
			out = append(out, t)
		}
	}
	return out
}

// Summary is a one-line description of the report.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d tasks: %d built, %d up-to-date, %d failed (%s)",
		len(r.Tasks), r.Count(OutcomeSuccess), r.Count(OutcomeUpToDate), r.Count(OutcomeFailure),
		r.Duration.Round(time.Millisecond))
}
