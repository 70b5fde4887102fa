package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Azure/ai-gateway/pkg/app/di"
	"github.com/Azure/ai-gateway/pkg/logger"
)

func newMCPCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the gateway as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			setupLogging(cfg, true)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, cleanup, err := di.InitializeContainer(ctx, cfg, di.Version(Version), logger.Get())
			if err != nil {
				return err
			}
			defer cleanup()

			return c.MCP.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	return cmd
}
