package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/wasmfactory/internal/config"
	"github.com/lucasnoah/wasmfactory/internal/taskcache"
	"github.com/lucasnoah/wasmfactory/internal/toolchain"
)

// Runner builds the components of an app, skipping tasks whose markers show
// they already succeeded with the same inputs.
type Runner struct {
	app       *config.App
	store     *taskcache.Store
	tools     Toolchain
	cmd       toolchain.CommandRunner
	observers []Observer
	progress  io.Writer
	now       func() time.Time

	mu sync.Mutex // serializes observers and progress output
}

// NewRunner creates a Runner.
func NewRunner(app *config.App, store *taskcache.Store, tools Toolchain, cmd toolchain.CommandRunner) *Runner {
	return &Runner{
		app:   app,
		store: store,
		tools: tools,
		cmd:   cmd,
		now:   time.Now,
	}
}

// SetProgress sets the writer for progress logging.
func (r *Runner) SetProgress(w io.Writer) {
	r.progress = w
}

// AddObserver registers an observer for task outcomes.
func (r *Runner) AddObserver(o Observer) {
	r.observers = append(r.observers, o)
}

// logf prints a formatted message to the progress writer if one is set.
func (r *Runner) logf(format string, args ...any) {
	if r.progress != nil {
		r.mu.Lock()
		fmt.Fprintf(r.progress, format+"\n", args...)
		r.mu.Unlock()
	}
}

// Build runs the selected steps for the selected components. Components are
// independent: a failed task stops the rest of its component only. The
// returned error joins every component failure.
func (r *Runner) Build(ctx context.Context, opts Options) (*Report, error) {
	components, err := r.selectComponents(opts)
	if err != nil {
		return nil, err
	}
	jobs := opts.Jobs
	if jobs < 1 {
		jobs = r.app.Jobs
	}
	if jobs < 1 {
		jobs = 1
	}

	start := r.now()
	results := make([][]TaskOutcome, len(components))
	errs := make([]error, len(components))

	var g errgroup.Group
	g.SetLimit(jobs)
	for i, c := range components {
		i, c := i, c
		g.Go(func() error {
			results[i], errs[i] = r.buildComponent(ctx, c, opts)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{}
	for _, outs := range results {
		report.Tasks = append(report.Tasks, outs...)
	}
	report.Duration = r.now().Sub(start)
	return report, errors.Join(errs...)
}

func (r *Runner) buildComponent(ctx context.Context, c *config.Component, opts Options) ([]TaskOutcome, error) {
	var outcomes []TaskOutcome
	for _, pt := range r.plan(c, opts) {
		if err := ctx.Err(); err != nil {
			return outcomes, fmt.Errorf("component %s: %w", c.Name, err)
		}
		out := r.runTask(ctx, c, pt, opts.Force)
		outcomes = append(outcomes, out)
		r.notify(out)
		if out.Err != nil {
			return outcomes, fmt.Errorf("component %s: %s: %w", c.Name, out.Step, out.Err)
		}
	}
	return outcomes, nil
}

func (r *Runner) runTask(ctx context.Context, c *config.Component, pt plannedTask, force bool) TaskOutcome {
	start := r.now()
	out := r.execTask(ctx, c, pt, force)
	out.Duration = r.now().Sub(start)
	return out
}

func (r *Runner) execTask(ctx context.Context, c *config.Component, pt plannedTask, force bool) TaskOutcome {
	out := TaskOutcome{Component: c.Name, Step: pt.step, Kind: pt.task.Kind(), Label: pt.label}

	m, err := taskcache.NewMarker(r.store, pt.task)
	if err != nil {
		out.Outcome, out.Err = OutcomeFailure, err
		return out
	}
	out.Hash = m.Hash()

	if !force && m.IsUpToDate() {
		r.logf("%s %s: up to date", c.Name, pt.step)
		out.Outcome = OutcomeUpToDate
		return out
	}

	r.logf("%s %s: running %s", c.Name, pt.step, pt.label)
	fresh, runErr := pt.run(ctx)
	out.Fresh, err = taskcache.Result(m, fresh, runErr)
	if err != nil {
		r.logf("%s %s: failed: %v", c.Name, pt.step, err)
		out.Outcome, out.Err = OutcomeFailure, err
		return out
	}
	if out.Fresh {
		r.logf("%s %s: targets newer than sources, skipped", c.Name, pt.step)
	}
	out.Outcome = OutcomeSuccess
	return out
}

func (r *Runner) notify(out TaskOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.observers {
		o.TaskFinished(out)
	}
}
