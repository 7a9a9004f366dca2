package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() (*cobra.Command, *commandContext) {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "retriever",
		Short:         "Background retrieval across search, download and share backends",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")
	flags.StringVar(&ctx.apiFlag, "api", "", "Daemon API address (defaults to api.bind from config)")
	flags.BoolVar(&ctx.jsonOutput, "json", false, "Emit JSON output (errors go to stderr as JSON)")

	rootCmd.AddCommand(
		newDaemonCommand(ctx),
		newSubmitCommand(ctx),
		newSearchCommand(ctx),
		newSaveCommand(ctx),
		newStatusCommand(ctx),
		newCancelCommand(ctx),
		newRetryCommand(ctx),
		newPurgeCommand(ctx),
		newValidateCommand(ctx),
		newBackendsCommand(ctx),
		newWatchCommand(ctx),
		newConfigCommand(ctx),
	)
	return rootCmd, ctx
}
