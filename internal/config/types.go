package config

import "github.com/lucasnoah/wasmfactory/internal/taskcache"

// AppConfig is the top-level structure parsed from wfactory.yaml.
type AppConfig struct {
	App App `yaml:"app"`

	// Root is the directory holding the manifest. Relative paths in the
	// manifest are resolved against it.
	Root string `yaml:"-"`
}

// App describes the application: where build state lives, which tools run
// the in-between steps, and the components to build.
type App struct {
	Name       string      `yaml:"name"`
	BuildDir   string      `yaml:"build_dir"`
	History    string      `yaml:"history"` // DSN; empty = sqlite in build dir, "off" disables
	Jobs       int         `yaml:"jobs"`
	Toolchain  Toolchain   `yaml:"toolchain"`
	Components []Component `yaml:"components"`
}

// Toolchain holds command templates for the steps that are not plain build
// commands. Templates use {{var}} and {{#if var}}...{{/if}}.
type Toolchain struct {
	Generate string `yaml:"generate"`
	Link     string `yaml:"link"`
	Metadata string `yaml:"metadata"`
}

// Component is a single buildable WebAssembly component.
type Component struct {
	Name         string                      `yaml:"name"`
	Dir          string                      `yaml:"dir"`
	RootPackage  string                      `yaml:"root_package"`
	Generator    string                      `yaml:"generator"`
	Wasm         string                      `yaml:"wasm"`   // componentized output, relative to Dir
	Output       string                      `yaml:"output"` // final binary with metadata, relative to Dir
	Dependencies []taskcache.Dependency      `yaml:"dependencies"`
	Build        []taskcache.ExternalCommand `yaml:"build"`
}

// HasDependencies reports whether the component links against others.
func (c *Component) HasDependencies() bool {
	return len(c.Dependencies) > 0
}

// DependencyNames returns the names of c's dependencies in declaration order.
func (c *Component) DependencyNames() []string {
	names := make([]string, 0, len(c.Dependencies))
	for _, d := range c.Dependencies {
		names = append(names, d.Name)
	}
	return names
}

// Component returns the component with the given name.
func (a *App) Component(name string) (*Component, bool) {
	for i := range a.Components {
		if a.Components[i].Name == name {
			return &a.Components[i], true
		}
	}
	return nil, false
}

// HistoryDisabled reports whether the build ledger is turned off.
func (a *App) HistoryDisabled() bool {
	return a.History == HistoryOff
}
