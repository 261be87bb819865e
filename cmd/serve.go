package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/nafauto/internal/observability"
	"github.com/xkilldash9x/nafauto/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the form submission API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg := opts.cfg
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
			}

			c, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer c.Shutdown()

			handlers := server.NewHandlers(logger, c.Runner, c.Store)
			return server.New(cfg.Server, handlers, logger).Start(ctx)
		},
	}
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	return serveCmd
}
