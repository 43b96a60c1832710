package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/deixis/agentstep/internal/report"
)

func init() {
	var historyDir string
	cmd := &cobra.Command{
		Use:   "inspect <run-id> [filter]",
		Short: "List transcript entries of a recorded run",
		Long: `List transcript entries of a run recorded with "agentstep run --history".

The filter is a record type (system, assistant, user, result) or tool:<name>.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter string
			if len(args) == 2 {
				filter = args[1]
			}
			return inspectRun(cmd.OutOrStdout(), report.NewDiskStore(historyDir), args[0], filter)
		},
	}
	cmd.Flags().StringVar(&historyDir, "history", ".agentstep-history", "directory holding run records")
	rootCmd.AddCommand(cmd)
}

func inspectRun(w io.Writer, store report.Store, runID, filter string) error {
	run, err := store.Load(runID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Run: %s (%s)\n", run.ID, run.Conclusion)
	if run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", run.Error)
	}
	for _, e := range report.Filter(run, filter) {
		fmt.Fprintf(w, "#%d %s\n", e.Index, e.Text)
	}
	return nil
}
