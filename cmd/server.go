package cmd

import (
	"context"
	"fmt"

	"github.com/ds-test-framework/lobby/config"
	"github.com/ds-test-framework/lobby/log"
	"github.com/ds-test-framework/lobby/node"
	"github.com/ds-test-framework/lobby/util"
	"github.com/spf13/cobra"
)

var verbose bool

// ServerCommand runs one lobby node until SIGINT or SIGTERM
func ServerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run a lobby node",
		Long:  "Runs a lobby node. The node discovers the current primary over UDP and joins it as backup, or becomes primary when none answers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := config.ParseConfig(config.ConfigPath)
			if err != nil {
				return err
			}
			logOptions := log.Options{
				Path:   c.LogConfig.Path,
				Format: c.LogConfig.Format,
				Level:  c.LogConfig.Level,
			}
			if verbose {
				logOptions.Level = "debug"
			}
			if err := log.Init(logOptions); err != nil {
				return err
			}
			defer log.Destroy()

			ctx, cancel := util.TermContext(context.Background())
			defer cancel()

			n, err := node.New(c, log.DefaultLogger)
			if err != nil {
				return err
			}
			if err := n.Start(ctx); err != nil {
				n.Stop()
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to start node: %s", err)
			}

			<-ctx.Done()
			log.Info("Received termination signal")
			return n.Stop()
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Display verbose output")
	return cmd
}
