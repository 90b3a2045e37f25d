package cli

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/wasmfactory/internal/taskcache"
)

var markersCmd = &cobra.Command{
	Use:   "markers",
	Short: "Inspect stored task markers",
}

var markersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List task markers in the build dir",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store := taskcache.ForBuildDir(cfg.App.BuildDir, taskcache.WarnTo(cmd.ErrOrStderr()))
		entries, err := store.List()
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, entries)
		}

		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No markers.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MARKER\tKIND\tSUCCESS\tHASH\tID")
		for _, e := range entries {
			name := filepath.Base(e.Path)
			if e.Record == nil {
				fmt.Fprintf(w, "%s\t?\t-\t-\t(unreadable)\n", short(name))
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", short(name), e.Record.Kind, e.Record.Success, short(e.Record.HashHex), e.Record.ID)
		}
		return w.Flush()
	},
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func init() {
	markersListCmd.Flags().String("format", "text", "Output format: text or json")
	markersCmd.AddCommand(markersListCmd)
}
