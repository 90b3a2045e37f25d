// Package metrics records build task outcomes as Prometheus metrics and
// exports them in the node_exporter textfile format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lucasnoah/wasmfactory/internal/pipeline"
	"github.com/lucasnoah/wasmfactory/internal/taskcache"
)

const namespace = "wfactory"

// Recorder collects task metrics in its own registry.
type Recorder struct {
	registry *prometheus.Registry

	tasks          *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	corruptMarkers prometheus.Counter
	buildDuration  prometheus.Gauge
	lastBuild      prometheus.Gauge
	lastBuildOK    prometheus.Gauge
}

// NewRecorder creates a Recorder with all metrics registered.
func NewRecorder(app string) *Recorder {
	labels := prometheus.Labels{"app": app}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "tasks_total",
			Help:        "Build tasks by kind and outcome",
			ConstLabels: labels,
		}, []string{"kind", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "task_duration_seconds",
			Help:        "Duration of executed build tasks",
			ConstLabels: labels,
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"kind"}),
		corruptMarkers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "corrupt_markers_total",
			Help:        "Task markers that could not be read or parsed",
			ConstLabels: labels,
		}),
		buildDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_build_duration_seconds",
			Help:        "Wall time of the most recent build",
			ConstLabels: labels,
		}),
		lastBuild: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_build_timestamp_seconds",
			Help:        "Unix time the most recent build finished",
			ConstLabels: labels,
		}),
		lastBuildOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_build_success",
			Help:        "1 if the most recent build had no failed tasks",
			ConstLabels: labels,
		}),
	}
	r.registry.MustRegister(r.tasks, r.taskDuration, r.corruptMarkers, r.buildDuration, r.lastBuild, r.lastBuildOK)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// TaskFinished implements pipeline.Observer.
func (r *Recorder) TaskFinished(o pipeline.TaskOutcome) {
	r.tasks.WithLabelValues(string(o.Kind), string(o.Outcome)).Inc()
	if o.Outcome != pipeline.OutcomeUpToDate {
		r.taskDuration.WithLabelValues(string(o.Kind)).Observe(o.Duration.Seconds())
	}
}

// BuildFinished records the summary of a completed build.
func (r *Recorder) BuildFinished(report *pipeline.Report) {
	r.buildDuration.Set(report.Duration.Seconds())
	r.lastBuild.SetToCurrentTime()
	if len(report.Failed()) == 0 {
		r.lastBuildOK.Set(1)
	} else {
		r.lastBuildOK.Set(0)
	}
}

// Warnings wraps next so that every marker warning is also counted.
func (r *Recorder) Warnings(next taskcache.WarnFunc) taskcache.WarnFunc {
	return func(err error) {
		r.corruptMarkers.Inc()
		if next != nil {
			next(err)
		}
	}
}

// WriteTextfile writes all metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
