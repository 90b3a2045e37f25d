package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasnoah/wasmfactory/internal/config"
)

// Steps runs the generate, link and metadata steps through the command
// templates configured in the manifest.
type Steps struct {
	app    *config.App
	runner CommandRunner
}

// NewSteps creates command-backed steps for app.
func NewSteps(app *config.App, runner CommandRunner) *Steps {
	return &Steps{app: app, runner: runner}
}

// StubsDir is where RPC stubs for c are generated.
func (s *Steps) StubsDir(c *config.Component) string {
	return filepath.Join(s.app.BuildDir, "stubs", c.Name)
}

// LinkedWasm is the linked binary for c, or its componentized binary when it
// has nothing to link.
func (s *Steps) LinkedWasm(c *config.Component) string {
	if !c.HasDependencies() {
		return componentPath(c, c.Wasm)
	}
	return filepath.Join(s.app.BuildDir, "linked", c.Name+".wasm")
}

// Vars returns the template variables for c. Paths are absolute and unset
// values have no words, so {{#if}} can test them.
func (s *Steps) Vars(c *config.Component) Vars {
	var deps, specs []string
	for _, d := range c.Dependencies {
		deps = append(deps, d.Name)
		specs = append(specs, d.Name+"="+d.Type)
	}
	return Vars{
		"app":           Word(s.app.Name),
		"component":     Word(c.Name),
		"component_dir": Word(c.Dir),
		"build_dir":     Word(s.app.BuildDir),
		"stubs_dir":     Word(s.StubsDir(c)),
		"root_package":  Word(c.RootPackage),
		"generator":     Word(c.Generator),
		"deps":          deps,
		"dep_specs":     Word(strings.Join(specs, ",")),
		"wasm":          Word(componentPath(c, c.Wasm)),
		"linked_wasm":   Word(s.LinkedWasm(c)),
		"output":        Word(componentPath(c, c.Output)),
	}
}

// Generate produces RPC stubs and bindings for c's dependencies.
func (s *Steps) Generate(ctx context.Context, c *config.Component) error {
	if err := os.MkdirAll(s.StubsDir(c), 0o755); err != nil {
		return fmt.Errorf("mkdir stubs dir: %w", err)
	}
	return s.run(ctx, "generate", s.app.Toolchain.Generate, c)
}

// Link composes RPC call implementations into c's binary.
func (s *Steps) Link(ctx context.Context, c *config.Component) error {
	if err := os.MkdirAll(filepath.Dir(s.LinkedWasm(c)), 0o755); err != nil {
		return fmt.Errorf("mkdir linked dir: %w", err)
	}
	return s.run(ctx, "link", s.app.Toolchain.Link, c)
}

// AddMetadata embeds package metadata into c's final binary.
func (s *Steps) AddMetadata(ctx context.Context, c *config.Component) error {
	if c.Output != "" {
		if err := os.MkdirAll(filepath.Dir(componentPath(c, c.Output)), 0o755); err != nil {
			return fmt.Errorf("mkdir output dir: %w", err)
		}
	}
	return s.run(ctx, "metadata", s.app.Toolchain.Metadata, c)
}

func (s *Steps) run(ctx context.Context, step, tmpl string, c *config.Component) error {
	if tmpl == "" {
		return fmt.Errorf("no %s command configured in toolchain", step)
	}
	command, err := Render(tmpl, s.Vars(c))
	if err != nil {
		return fmt.Errorf("render %s command: %w", step, err)
	}
	if _, err := RunChecked(ctx, s.runner, c.Dir, command); err != nil {
		return fmt.Errorf("%s %s: %w", step, c.Name, err)
	}
	return nil
}

func componentPath(c *config.Component, p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}
