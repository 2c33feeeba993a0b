package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"civicreport-be/services"

	"github.com/spf13/cobra"
)

func newLeaderboardCmd(rf *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the top citizens by XP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, rf.configPath, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			entries, err := services.NewLeaderboardService(a.store.Ledger()).TopCitizens(ctx, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tNAME\tXP")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%d\n", e.Rank, e.Name, e.XPPoints)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of citizens to show (default 5, max 100)")
	return cmd
}
