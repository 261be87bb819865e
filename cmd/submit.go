package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nafauto/internal/automation"
	"github.com/xkilldash9x/nafauto/internal/observability"
)

// ErrBatchFailed is returned when a batch finishes with a failure outcome.
var ErrBatchFailed = errors.New("batch did not complete")

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	var (
		formURL string
		ids     []string
	)
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Copy records into the form once and print the outcome",
		Long: `Copies the given records (or every record not yet processed) into the form
and prints the outcome as JSON. Exits non-zero when the batch fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			if formURL == "" {
				formURL = opts.cfg.Automation.DefaultFormURL
			}

			c, err := initializeComponents(ctx, opts.cfg, logger)
			if err != nil {
				return err
			}
			defer c.Shutdown()

			outcome, err := c.Runner.Run(ctx, automation.Request{FormURL: formURL, RecordIDs: ids})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(outcome); err != nil {
				return fmt.Errorf("failed to write outcome: %w", err)
			}

			ack := automation.Report(outcome)
			logger.Info("Submission finished.",
				zap.String("level", string(ack.Level)),
				zap.Int("submitted", outcome.TotalProcessed),
				zap.Int("requested", outcome.TotalRequested))
			if !outcome.Succeeded() {
				return fmt.Errorf("%w: %s", ErrBatchFailed, outcome.ErrorDetail)
			}
			return nil
		},
	}
	submitCmd.Flags().StringVar(&formURL, "form-url", "", "form to fill (defaults to automation.default_form_url)")
	submitCmd.Flags().StringSliceVar(&ids, "id", nil, "record id to submit; repeatable (default: all unprocessed)")
	return submitCmd
}
