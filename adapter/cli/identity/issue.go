package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mylife/adapter/cli"
)

var issueCmd = &cobra.Command{
	Use:   "issue <userId>",
	Short: "Issue an actor identity token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Identity == nil {
			return errors.New("identity commands require an initialized app")
		}

		issued, err := app.Identity.Issue(args[0], origin)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "User:   %s\n", issued.UserID)
		fmt.Fprintf(cmd.OutOrStdout(), "Issued: %s\n", issued.IssuedAt.Format(time.RFC3339))
		fmt.Fprintln(cmd.OutOrStdout(), issued.Token)
		return nil
	},
}
