package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/wasmfactory/internal/pipeline"
	"github.com/lucasnoah/wasmfactory/internal/taskcache"
	"github.com/lucasnoah/wasmfactory/internal/toolchain"
)

type statusRow struct {
	Component string          `json:"component"`
	Step      string          `json:"step"`
	Kind      string          `json:"kind"`
	State     taskcache.State `json:"state"`
	Label     string          `json:"label"`
	Hash      string          `json:"hash"`
	Marker    string          `json:"marker"`
}

var statusCmd = &cobra.Command{
	Use:   "status [component]...",
	Short: "Show which steps would run, without running them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}
		opts, err := buildOptions(cmd, args)
		if err != nil {
			return err
		}

		app := &cfg.App
		store := taskcache.ForBuildDir(app.BuildDir, taskcache.WarnTo(cmd.ErrOrStderr()))
		cmdRunner := &toolchain.ExecRunner{}
		runner := pipeline.NewRunner(app, store, toolchain.NewSteps(app, cmdRunner), cmdRunner)

		statuses, err := runner.Status(opts)
		if err != nil {
			return err
		}

		rows := make([]statusRow, 0, len(statuses))
		for _, st := range statuses {
			rows = append(rows, statusRow{
				Component: st.Component,
				Step:      string(st.Step),
				Kind:      string(st.Description.Kind),
				State:     st.State,
				Label:     st.Label,
				Hash:      st.Hash,
				Marker:    st.MarkerPath,
			})
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, rows)
		}

		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No tasks.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "COMPONENT\tSTEP\tSTATE\tTASK")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Component, r.Step, r.State, truncate(r.Label, 50))
		}
		return w.Flush()
	},
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func init() {
	statusCmd.Flags().StringSlice("step", nil, "Only show these steps")
	statusCmd.Flags().String("format", "text", "Output format: text or json")
}
