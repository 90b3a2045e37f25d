package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/wasmfactory/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query the build ledger",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent builds, or the tasks of one build with --build",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := historyDB()
		if err != nil {
			return err
		}
		defer cleanup()

		format, _ := cmd.Flags().GetString("format")
		buildID, _ := cmd.Flags().GetInt64("build")
		if buildID > 0 {
			runs, err := d.TaskRuns(buildID)
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(cmd, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No tasks recorded for build %d.\n", buildID)
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COMPONENT\tSTEP\tOUTCOME\tMS\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.Component, r.Step, r.Outcome, r.DurationMs, truncate(r.Error, 60))
			}
			return w.Flush()
		}

		limit, _ := cmd.Flags().GetInt("limit")
		builds, err := d.RecentBuilds(limit)
		if err != nil {
			return err
		}
		if format == "json" {
			return writeJSON(cmd, builds)
		}
		if len(builds) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No builds recorded.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tTASKS\tBUILT\tUP-TO-DATE\tFAILED\tMS")
		for _, b := range builds {
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\t%d\n", b.ID, b.StartedAt, b.Tasks, b.Built, b.UpToDate, b.Failed, b.DurationMs)
		}
		return w.Flush()
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Cache hit rate and durations per task kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := historyDB()
		if err != nil {
			return err
		}
		defer cleanup()

		since, _ := cmd.Flags().GetString("since")
		stats, err := d.Stats(since)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, stats)
		}
		if len(stats) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No task runs recorded.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tTOTAL\tHIT%\tFAILED\tAVG_MS\tP95_MS")
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%.1f\t%d\t%.1f\t%.1f\n", s.Kind, s.Total, s.HitRate, s.Failure, s.AvgMs, s.P95Ms)
		}
		return w.Flush()
	},
}

// historyDB opens the ledger configured in the manifest.
func historyDB() (*history.DB, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	d, err := openHistory(cfg)
	if err != nil {
		return nil, nil, err
	}
	if d == nil {
		return nil, nil, fmt.Errorf("build history is disabled (app.history: off)")
	}
	return d, func() { d.Close() }, nil
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "Number of builds to show")
	historyListCmd.Flags().Int64("build", 0, "Show the tasks of this build")
	historyListCmd.Flags().String("format", "text", "Output format: text or json")
	historyStatsCmd.Flags().String("since", "", "Only count runs at or after this UTC time (YYYY-MM-DD HH:MM:SS)")
	historyStatsCmd.Flags().String("format", "text", "Output format: text or json")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyStatsCmd)
}
