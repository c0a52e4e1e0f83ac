package cmd

import (
	"github.com/ds-test-framework/lobby/config"
	"github.com/spf13/cobra"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lobby",
		Short: "Replicated matchmaking server for peer to peer games",
	}
	cmd.PersistentFlags().StringVarP(&config.ConfigPath, "config", "c", ".", "Path to directory containing config file")
	cmd.AddCommand(ServerCommand())
	return cmd
}
