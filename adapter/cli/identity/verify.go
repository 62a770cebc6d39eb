package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mylife/adapter/cli"
)

// ErrRejected is returned when the token does not verify.
var ErrRejected = errors.New("actor token rejected")

var verifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Verify an actor identity token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Identity == nil {
			return errors.New("identity commands require an initialized app")
		}

		v := app.Identity.Verify(args[0], origin)
		if !v.OK {
			return fmt.Errorf("%w: %s", ErrRejected, v.Reason)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Valid token for %s issued %s\n", v.UserID, v.IssuedAt.Format(time.RFC3339))
		return nil
	},
}
