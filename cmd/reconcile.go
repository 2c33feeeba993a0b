package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newReconcileCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Apply queued XP credits once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, rf.configPath, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if a.redis == nil {
				a.logger.Warn("no Redis configured; the credit queue only lives inside a running server")
			}
			applied, err := a.reconciler().Drain(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d credits\n", applied)
			return err
		},
	}
}
