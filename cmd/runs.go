package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/salesintel/core/runlog"
)

var (
	runsLimit    int
	runsSince    time.Duration
	runsCustomer string
	runsJSON     bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded pipeline runs",
	RunE:  listRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs")
	runsCmd.Flags().DurationVar(&runsSince, "since", 0, "only runs newer than this age")
	runsCmd.Flags().StringVar(&runsCustomer, "customer", "", "only runs that allocated actions to this customer")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "print records as JSON lines")
	rootCmd.AddCommand(runsCmd)
}

func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := cfg.Logging.Open()
	if err != nil {
		return err
	}
	defer store.Close()

	q := runlog.Query{CustomerID: runsCustomer, Limit: runsLimit}
	if runsSince > 0 {
		q.Start = time.Now().Add(-runsSince)
	}
	recs, err := store.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if runsJSON {
		enc := json.NewEncoder(out)
		for _, r := range recs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tRUN\tCUSTOMERS\tALLOCATED\tRECIPIENTS\tPIPELINE $M\tTEST R2\tERROR")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d/%d\t%d\t%.2f\t%.3f\t%s\n",
			r.Timestamp.Format(time.RFC3339), r.RunID, r.Customers, r.Allocated, r.Budget,
			r.Recipients, r.PipelineValue/1000, r.TestR2, r.Error)
	}
	return tw.Flush()
}
