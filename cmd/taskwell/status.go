package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-queue task counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			queueStore, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			stats, err := queueStore.Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to read queue stats: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tPENDING\tPROCESSING\tCOMPLETED\tFAILED")
			for _, st := range stats {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n",
					st.Queue, st.Pending, st.Processing, st.Completed, st.Failed)
			}
			return w.Flush()
		},
	}
}
