package billing

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mylife/adapter/cli"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/security"
)

const maxEventFileSize = 1 << 20

var webhookEventPath string

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Apply a billing webhook payload",
	Long: `Reconcile a billing event read from a file and print the webhook
result. Replaying an event that was already applied reports idempotent.

Examples:
  mylife billing webhook --event ./event.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if webhookEventPath == "" {
			return errors.New("event path is required")
		}
		app := cli.GetApp()
		if app == nil || app.Reconciler == nil {
			return errors.New("billing commands require database connection")
		}

		payload, err := security.ReadFile(webhookEventPath, maxEventFileSize)
		if err != nil {
			return err
		}

		res, err := app.Reconciler.HandleWebhook(cmd.Context(), payload)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	webhookCmd.Flags().StringVar(&webhookEventPath, "event", "", "path to webhook event JSON")
}
