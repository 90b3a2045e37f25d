package pipeline

import "github.com/lucasnoah/wasmfactory/internal/taskcache"

// TaskStatus is the dry-run state of one planned task.
type TaskStatus struct {
	Component string
	Step      Step
	Label     string
	*taskcache.Status
}

// Status classifies every task a Build with opts would consider, without
// running or recording anything.
func (r *Runner) Status(opts Options) ([]TaskStatus, error) {
	components, err := r.selectComponents(opts)
	if err != nil {
		return nil, err
	}

	var out []TaskStatus
	for _, c := range components {
		for _, pt := range r.plan(c, opts) {
			st, err := taskcache.Inspect(r.store, pt.task)
			if err != nil {
				return nil, err
			}
			out = append(out, TaskStatus{Component: c.Name, Step: pt.step, Label: pt.label, Status: st})
		}
	}
	return out, nil
}
