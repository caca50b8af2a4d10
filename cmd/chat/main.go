package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/gadgetchat/internal/config"
	"github.com/suPer8Hu/gadgetchat/internal/logging"
)

func newRootCmd(cfg config.Config) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "chat",
		Short:         "Live chat for gadget-sourcing requests",
		Long:          "Terminal client for the request chat: follows the live stream, sends messages and reconnects on demand.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(logLevel, cmd.ErrOrStderr())
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", cfg.LogLevel, "zerolog level (debug, info, warn, error)")

	cmd.AddCommand(newOpenCmd(cfg))
	cmd.AddCommand(newTokenCmd(cfg))
	return cmd
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd(config.Load())))
}
