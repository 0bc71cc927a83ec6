package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:           "attributa",
	Short:         "Attributa provisions and synchronizes marketing data connectors.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setCommandExecutionContext(commandExecutionContext{
			CommandPath:       cmd.CommandPath(),
			UsesStructuredLog: commandUsesStructuredLogging(cmd),
		})
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd, workerCmd, syncCmd, migrateCmd, provisionCmd)
}
