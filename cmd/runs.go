package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/CraigKelly/bayesgraph/trace"
	"github.com/CraigKelly/bayesgraph/tracestore"
)

func newRunsCmd(s *settings) *cobra.Command {
	var storeFile string
	var deleteRun bool
	var compareWith string
	var bins int

	cmd := &cobra.Command{
		Use:   "runs [RUN-ID]",
		Short: "List the runs in a trace store, or summarize or compare one of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tracestore.Open(storeFile, s.log)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				runs, err := store.Runs(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tMODEL\tCREATED\tCHAINS\tITERATIONS\tBURNIN\tTHIN\tSEED")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
						r.ID, r.Model, r.Created.Format(time.RFC3339), r.Chains, r.Iterations, r.Burnin, r.Thin, r.Seed)
				}
				return tw.Flush()
			}

			if deleteRun {
				if err := store.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Run %s deleted\n", args[0])
				return nil
			}

			run, traces, err := store.Load(ctx, args[0])
			if err != nil {
				return err
			}
			if compareWith != "" {
				_, other, err := store.Load(ctx, compareWith)
				if err != nil {
					return err
				}
				es, err := trace.Compare(traces, other, bins)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run %s against %s over %d column(s)\n", run.ID, compareWith, es.Columns)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ERROR\tMEAN\tMAX")
				fmt.Fprintf(tw, "mean abs\t%.6f\t%.6f\n", es.MeanMeanAbsError, es.MaxMeanAbsError)
				fmt.Fprintf(tw, "max abs\t%.6f\t%.6f\n", es.MeanMaxAbsError, es.MaxMaxAbsError)
				fmt.Fprintf(tw, "hellinger\t%.6f\t%.6f\n", es.MeanHellinger, es.MaxHellinger)
				fmt.Fprintf(tw, "jensen-shannon\t%.6f\t%.6f\n", es.MeanJSDiverge, es.MaxJSDiverge)
				return tw.Flush()
			}
			fmt.Fprintf(out, "Run %s of model %s: %d chain(s), %d iterations, %d burn-in, thin %d, seed %d\n",
				run.ID, run.Model, run.Chains, run.Iterations, run.Burnin, run.Thin, run.Seed)
			return printSummary(out, traces)
		},
	}
	cmd.Flags().StringVar(&storeFile, "store", "bayesgraph.db", "SQLite trace store to read")
	cmd.Flags().BoolVar(&deleteRun, "delete", false, "Delete the named run instead of summarizing it")
	cmd.Flags().StringVar(&compareWith, "compare", "", "Compare the marginals of the named run with this run")
	cmd.Flags().IntVar(&bins, "bins", 20, "Histogram bins per column for --compare")
	return cmd
}
