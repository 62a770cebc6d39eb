package access

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mylife/adapter/cli"
)

var requeueCmd = &cobra.Command{
	Use:   "requeue <eventId>",
	Short: "Move an alert job back to pending",
	Long: `Reset an alert job: status pending, attempts zero, due now. The next
sweep picks it up.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Queue == nil {
			return errors.New("access commands require database connection")
		}

		job, err := app.Queue.Requeue(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s (%s @%s)\n", job.EventID, job.Payload.Action, job.Payload.GitHubUsername)
		return nil
	},
}
