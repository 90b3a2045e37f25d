package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/wasmfactory/internal/config"
	"github.com/lucasnoah/wasmfactory/internal/history"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var configFile string

var rootCmd = &cobra.Command{
	Use:   "wfactory",
	Short: "Incremental builds for WebAssembly component apps",
	Long: `wfactory builds the components of an app described in wfactory.yaml:
stub generation, componentization, RPC linking and metadata embedding.

Every step is fingerprinted. A step whose inputs are unchanged since its last
successful run is skipped. Markers live in <build_dir>/task-results.`,
	SilenceUsage: true,
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to wfactory.yaml (default: search ./wfactory.yaml, ~/.wfactory/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(markersCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(dbCmd)
}

// resolveConfigPath makes a --config value absolute and checks that it
// exists. An empty value stays empty.
func resolveConfigPath(flag string) (string, error) {
	if flag == "" {
		return "", nil
	}
	abs, err := filepath.Abs(flag)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("config file %s not found", abs)
	}
	return abs, nil
}

func loadConfig() (*config.AppConfig, error) {
	path, err := resolveConfigPath(configFile)
	if err != nil {
		return nil, err
	}
	if path != "" {
		return config.Load(path)
	}
	return config.LoadDefault()
}

// loadValidConfig loads the manifest and rejects it when validation fails.
func loadValidConfig() (*config.AppConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %v (run 'wfactory config validate' for details)", errs[0])
	}
	return cfg, nil
}

// openHistory opens and migrates the build ledger. It returns nil when the
// ledger is disabled.
func openHistory(cfg *config.AppConfig) (*history.DB, error) {
	if cfg.App.HistoryDisabled() {
		return nil, nil
	}
	d, err := history.Open(cfg.App.History)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
