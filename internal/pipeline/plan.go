package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lucasnoah/wasmfactory/internal/config"
	"github.com/lucasnoah/wasmfactory/internal/taskcache"
)

// plannedTask is one cacheable unit of work for a component.
type plannedTask struct {
	step  Step
	task  taskcache.Task
	label string
	// run executes the task. fresh is true when the work was skipped because
	// its outputs were already newer than its inputs.
	run func(ctx context.Context) (fresh bool, err error)
}

// plan lists the tasks for c, in step order, restricted to opts.Steps.
func (r *Runner) plan(c *config.Component, opts Options) []plannedTask {
	var tasks []plannedTask

	if opts.wants(StepGenerate) && c.HasDependencies() {
		tasks = append(tasks, plannedTask{
			step:  StepGenerate,
			task:  taskcache.ComponentGeneratorTask{ComponentName: c.Name, Generator: c.Generator},
			label: c.Generator,
			run: func(ctx context.Context) (bool, error) {
				return false, r.tools.Generate(ctx, c)
			},
		})
	}

	if opts.wants(StepComponentize) {
		for _, cmd := range c.Build {
			cmd := absCommand(c, cmd)
			tasks = append(tasks, plannedTask{
				step:  StepComponentize,
				task:  taskcache.ExternalCommandTask{BuildDir: r.app.BuildDir, Command: cmd},
				label: cmd.Command,
				run: func(ctx context.Context) (bool, error) {
					return r.runExternal(ctx, cmd, opts.Force)
				},
			})
		}
	}

	if opts.wants(StepLink) && c.HasDependencies() {
		tasks = append(tasks, plannedTask{
			step:  StepLink,
			task:  taskcache.RpcLinkTask{ComponentName: c.Name, Dependencies: c.Dependencies},
			label: strings.Join(c.DependencyNames(), ", "),
			run: func(ctx context.Context) (bool, error) {
				return false, r.tools.Link(ctx, c)
			},
		})
	}

	if opts.wants(StepMetadata) && c.Output != "" {
		tasks = append(tasks, plannedTask{
			step:  StepMetadata,
			task:  taskcache.AddMetadataTask{ComponentName: c.Name, RootPackageName: c.RootPackage},
			label: c.RootPackage,
			run: func(ctx context.Context) (bool, error) {
				return false, r.tools.AddMetadata(ctx, c)
			},
		})
	}
	return tasks
}

// absCommand resolves a build command's dir against the component dir so that
// identical commands in different components never share a marker.
func absCommand(c *config.Component, cmd taskcache.ExternalCommand) taskcache.ExternalCommand {
	switch {
	case cmd.Dir == "":
		cmd.Dir = c.Dir
	case !filepath.IsAbs(cmd.Dir):
		cmd.Dir = filepath.Join(c.Dir, cmd.Dir)
	}
	return cmd
}

// selectComponents returns the components named in opts, in manifest order.
func (r *Runner) selectComponents(opts Options) ([]*config.Component, error) {
	if len(opts.Components) == 0 {
		out := make([]*config.Component, len(r.app.Components))
		for i := range r.app.Components {
			out[i] = &r.app.Components[i]
		}
		return out, nil
	}

	wanted := make(map[string]bool, len(opts.Components))
	for _, name := range opts.Components {
		if _, ok := r.app.Component(name); !ok {
			return nil, fmt.Errorf("unknown component %q", name)
		}
		wanted[name] = true
	}
	var out []*config.Component
	for i := range r.app.Components {
		if wanted[r.app.Components[i].Name] {
			out = append(out, &r.app.Components[i])
		}
	}
	return out, nil
}
