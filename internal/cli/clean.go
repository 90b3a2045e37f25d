package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/wasmfactory/internal/taskcache"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove task markers so every step runs again",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		all, _ := cmd.Flags().GetBool("all")
		if all {
			if dir := cfg.BuildDirConflict(); dir != "" {
				return fmt.Errorf("refusing to remove build dir %s: it contains %s", cfg.App.BuildDir, dir)
			}
			if err := os.RemoveAll(cfg.App.BuildDir); err != nil {
				return fmt.Errorf("remove build dir: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", cfg.App.BuildDir)
			return nil
		}

		store := taskcache.ForBuildDir(cfg.App.BuildDir, nil)
		if err := store.Clean(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", store.Dir())
		return nil
	},
}

func init() {
	cleanCmd.Flags().Bool("all", false, "Remove the whole build dir, including generated stubs and history")
}
