package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/nafauto/internal/observability"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the inquiries table if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			c, err := connectStore(ctx, opts.cfg, logger)
			if err != nil {
				return err
			}
			defer c.Shutdown()

			if err := c.Store.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("Schema is up to date.")
			return nil
		},
	}
}
