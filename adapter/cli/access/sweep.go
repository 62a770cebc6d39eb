package access

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mylife/adapter/cli"
)

var sweepLimit int

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Process due access jobs now",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Sweeper == nil {
			return errors.New("access commands require database connection")
		}
		if !app.Sweeper.Enabled() {
			fmt.Fprintln(cmd.OutOrStdout(), "GitHub provisioning is not configured; nothing to sweep.")
			return nil
		}

		res, err := app.Sweeper.ProcessDue(cmd.Context(), app.Clock(), sweepLimit)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Processed %d job(s): %d completed, %d pending, %d alert\n",
			res.Processed, res.Completed, res.Pending, res.Alerts)
		return nil
	},
}

func init() {
	sweepCmd.Flags().IntVar(&sweepLimit, "limit", 0, "maximum jobs to process (default 10, max 100)")
}
