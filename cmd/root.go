// Package cmd holds the civicreport command line: the HTTP server and the
// maintenance commands that share its configuration.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

type rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}

	root := &cobra.Command{
		Use:           "civicreport",
		Short:         "Community issue reporting backend",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "Path to a YAML config file (environment overrides it)")

	root.AddCommand(newServeCmd(f))
	root.AddCommand(newReconcileCmd(f))
	root.AddCommand(newLeaderboardCmd(f))
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
