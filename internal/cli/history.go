package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/riemann/internal/domain"
	"github.com/tutu-network/riemann/internal/infra/sqlite"
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list")
	rootCmd.AddCommand(historyCmd)
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [RUN_ID]",
	Short: "List recorded runs, or show the task outcomes of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := sqlite.Open(cfg.HistoryDir())
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer db.Close()

	if len(args) == 1 {
		return showRun(cmd, db, args[0])
	}

	runs, err := db.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded. Use 'riemann run --record' or set history.enabled.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRANGE\tSTEP\tSTATUS\tTOTAL\tFAILED\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t[%g, %g)\t%g\t%s\t%v\t%d/%d\t%s\n",
			r.ID, r.Start, r.End, r.Step, r.Status, r.Total,
			r.Failed, r.Dispatched, r.StartedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, db *sqlite.DB, id string) error {
	run, err := db.GetRun(id)
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	outcomes, err := db.Outcomes(id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s  %s\n", run.ID, run.Status)
	fmt.Fprintf(out, "Range [%g, %g) step %g  total %v  rounds %d\n", run.Start, run.End, run.Step, run.Total, run.Rounds)
	if run.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", run.Error)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tROUND\tPEER\tTASK\tRESULT")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", o.Seq, o.Round, o.Peer, o.Task, outcomeResult(o))
	}
	return w.Flush()
}

func outcomeResult(o domain.TaskOutcome) string {
	if o.Failed() {
		return "failed: " + o.Error
	}
	return fmt.Sprintf("%v", o.Result)
}
