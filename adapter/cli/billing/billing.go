package billing

import "github.com/spf13/cobra"

// Cmd is the billing command group.
var Cmd = &cobra.Command{
	Use:   "billing",
	Short: "Replay billing events",
	Long:  `Apply billing provider events from files, the same way the webhook endpoint does.`,
}

func init() {
	Cmd.AddCommand(webhookCmd)
}
