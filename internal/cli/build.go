package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/wasmfactory/internal/config"
	"github.com/lucasnoah/wasmfactory/internal/history"
	"github.com/lucasnoah/wasmfactory/internal/metrics"
	"github.com/lucasnoah/wasmfactory/internal/pipeline"
	"github.com/lucasnoah/wasmfactory/internal/taskcache"
	"github.com/lucasnoah/wasmfactory/internal/toolchain"
	"github.com/lucasnoah/wasmfactory/internal/watch"
)

var buildCmd = &cobra.Command{
	Use:   "build [component]...",
	Short: "Build components, skipping steps that are up to date",
	Long: `Runs generate, componentize, link and metadata for each component.
A step is skipped when its marker shows a successful run with identical inputs.
Components build independently: a failure stops only the failing component.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}
		opts, err := buildOptions(cmd, args)
		if err != nil {
			return err
		}

		b, err := newBuilder(cmd, cfg)
		if err != nil {
			return err
		}
		defer b.close()

		watchMode, _ := cmd.Flags().GetBool("watch")
		if !watchMode {
			_, err := b.build(cmd.Context(), opts)
			return err
		}
		return b.watch(cmd, opts)
	},
}

// buildOptions reads the step, force and jobs flags.
func buildOptions(cmd *cobra.Command, args []string) (pipeline.Options, error) {
	opts := pipeline.Options{Components: args}
	names, _ := cmd.Flags().GetStringSlice("step")
	for _, name := range names {
		step, err := pipeline.ParseStep(name)
		if err != nil {
			return opts, err
		}
		opts.Steps = append(opts.Steps, step)
	}
	opts.Force, _ = cmd.Flags().GetBool("force-build")
	opts.Jobs, _ = cmd.Flags().GetInt("jobs")
	return opts, nil
}

// builder wires the runner to the metrics recorder and the build ledger.
type builder struct {
	cfg         *config.AppConfig
	out         io.Writer
	errOut      io.Writer
	recorder    *metrics.Recorder
	metricsFile string
	history     *history.DB
	cmdRunner   toolchain.CommandRunner
}

func newBuilder(cmd *cobra.Command, cfg *config.AppConfig) (*builder, error) {
	b := &builder{
		cfg:       cfg,
		out:       cmd.OutOrStdout(),
		errOut:    cmd.ErrOrStderr(),
		recorder:  metrics.NewRecorder(cfg.App.Name),
		cmdRunner: &toolchain.ExecRunner{},
	}
	b.metricsFile, _ = cmd.Flags().GetString("metrics-file")

	d, err := openHistory(cfg)
	if err != nil {
		return nil, fmt.Errorf("open build history: %w", err)
	}
	b.history = d
	return b, nil
}

func (b *builder) close() {
	if b.history != nil {
		b.history.Close()
	}
}

func (b *builder) build(ctx context.Context, opts pipeline.Options) (*pipeline.Report, error) {
	app := &b.cfg.App
	store := taskcache.ForBuildDir(app.BuildDir, b.recorder.Warnings(taskcache.WarnTo(b.errOut)))
	runner := pipeline.NewRunner(app, store, toolchain.NewSteps(app, b.cmdRunner), b.cmdRunner)
	runner.SetProgress(b.out)
	runner.AddObserver(b.recorder)

	var log *history.BuildLog
	if b.history != nil {
		var err error
		if log, err = b.history.StartBuild(app.Name); err != nil {
			fmt.Fprintf(b.errOut, "warning: %v\n", err)
		} else {
			runner.AddObserver(log)
		}
	}

	report, buildErr := runner.Build(ctx, opts)
	if report == nil {
		return nil, buildErr
	}

	if log != nil {
		if err := log.Finish(report); err != nil {
			fmt.Fprintf(b.errOut, "warning: %v\n", err)
		}
	}
	b.recorder.BuildFinished(report)
	if b.metricsFile != "" {
		if err := b.recorder.WriteTextfile(b.metricsFile); err != nil {
			fmt.Fprintf(b.errOut, "warning: %v\n", err)
		}
	}

	fmt.Fprintln(b.out, report.Summary())
	return report, buildErr
}

// watch builds once, then again whenever a component directory changes.
// Build failures are reported and watching continues.
func (b *builder) watch(cmd *cobra.Command, opts pipeline.Options) error {
	ctx := cmd.Context()
	if _, err := b.build(ctx, opts); err != nil {
		fmt.Fprintf(b.errOut, "build failed: %v\n", err)
	}

	debounce, _ := cmd.Flags().GetDuration("debounce")
	w, err := watch.New(watchRoots(b.cfg, opts), []string{b.cfg.App.BuildDir}, debounce)
	if err != nil {
		return err
	}
	defer w.Close()
	w.SetProgress(b.errOut)

	fmt.Fprintf(b.out, "watching %d directories (Ctrl-C to stop)\n", len(w.WatchList()))
	err = w.Run(ctx, func(ctx context.Context, paths []string) {
		fmt.Fprintf(b.out, "%d file(s) changed, rebuilding\n", len(paths))
		if _, err := b.build(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(b.errOut, "build failed: %v\n", err)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchRoots returns the distinct existing directories of the selected
// components.
func watchRoots(cfg *config.AppConfig, opts pipeline.Options) []string {
	selected := make(map[string]bool)
	for _, name := range opts.Components {
		selected[name] = true
	}
	seen := make(map[string]bool)
	var roots []string
	for _, c := range cfg.App.Components {
		if len(selected) > 0 && !selected[c.Name] {
			continue
		}
		if seen[c.Dir] {
			continue
		}
		if info, err := os.Stat(c.Dir); err != nil || !info.IsDir() {
			continue
		}
		seen[c.Dir] = true
		roots = append(roots, c.Dir)
	}
	return roots
}

func init() {
	buildCmd.Flags().StringSlice("step", nil, "Only run these steps (generate, componentize, link, metadata)")
	buildCmd.Flags().Bool("force-build", false, "Run every step even if it is up to date")
	buildCmd.Flags().IntP("jobs", "j", 0, "Components to build concurrently (default from manifest)")
	buildCmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file after each build")
	buildCmd.Flags().Bool("watch", false, "Rebuild when component sources change")
	buildCmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before a watch rebuild")
}
