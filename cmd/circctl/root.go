package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(open opener) *cobra.Command {
	ctx := newCommandContext(open)

	rootCmd := &cobra.Command{
		Use:           "circctl",
		Short:         "Operate the libraryhub circulation core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.shutdown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newSweepCommand(ctx))
	rootCmd.AddCommand(newSeedCommand(ctx))
	rootCmd.AddCommand(newQueueCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))

	return rootCmd
}
