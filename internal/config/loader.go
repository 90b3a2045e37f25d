package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// FileName is the manifest file name searched for by LoadDefault.
	FileName = "wfactory.yaml"

	DefaultBuildDir  = ".wfactory"
	DefaultGenerator = "wasm-rpc-stubs"
	HistoryOff       = "off"
	historyFile      = "history.db"
)

// Load reads and parses an application manifest from the given YAML file path.
// After parsing, it resolves paths against the manifest directory and fills
// in defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.Root = filepath.Dir(abs)

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a manifest in standard locations and loads the
// first one found. Search order: ./wfactory.yaml, ~/.wfactory/config.yaml
func LoadDefault() (*AppConfig, error) {
	candidates := []string{FileName}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".wfactory", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return nil, fmt.Errorf("no %s found (searched: %v)", FileName, candidates)
}

// applyDefaults fills unset fields and makes directories absolute.
func applyDefaults(cfg *AppConfig) {
	a := &cfg.App

	if a.BuildDir == "" {
		a.BuildDir = DefaultBuildDir
	}
	a.BuildDir = resolve(cfg.Root, a.BuildDir)

	if a.Jobs <= 0 {
		a.Jobs = 1
	}

	switch {
	case a.History == "":
		a.History = filepath.Join(a.BuildDir, historyFile)
	case a.History == HistoryOff, a.History == ":memory:", strings.Contains(a.History, "://"):
	default:
		a.History = resolve(cfg.Root, a.History)
	}

	for i := range a.Components {
		c := &a.Components[i]

		// Components default to the manifest directory
		c.Dir = resolve(cfg.Root, c.Dir)

		if c.Generator == "" {
			c.Generator = DefaultGenerator
		}
		if c.RootPackage == "" && c.Name != "" {
			c.RootPackage = a.Name + ":" + c.Name
		}
	}
}

func resolve(root, p string) string {
	if p == "" {
		return root
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}
