package entitlements

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mylife/adapter/cli"
	"github.com/felixgeelhaar/mylife/internal/billing/domain"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current entitlement",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Entitlements == nil {
			return errors.New("entitlement commands require database connection")
		}
		out := cmd.OutOrStdout()

		synced, err := app.Entitlements.Current(cmd.Context())
		if errors.Is(err, domain.ErrNoEntitlement) {
			fmt.Fprintln(out, "No entitlement issued.")
			return nil
		}
		if err != nil {
			return err
		}

		if showJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(synced)
		}

		e := synced.Entitlements
		fmt.Fprintf(out, "App:        %s\n", e.AppID)
		fmt.Fprintf(out, "Mode:       %s\n", e.Mode)
		fmt.Fprintf(out, "Hosted:     %t\n", e.HostedActive)
		fmt.Fprintf(out, "Self-host:  %t\n", e.SelfHostLicense)
		if e.UpdatePackYear != nil {
			fmt.Fprintf(out, "Update pack: %d\n", *e.UpdatePackYear)
		}
		fmt.Fprintf(out, "Features:   %s\n", strings.Join(e.Features, ", "))
		fmt.Fprintf(out, "Issued:     %s\n", e.IssuedAt.Format(time.RFC3339))
		if e.ExpiresAt != nil {
			fmt.Fprintf(out, "Expires:    %s\n", e.ExpiresAt.Format(time.RFC3339))
		}
		fmt.Fprintf(out, "Signature:  %s\n", e.Signature)
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "print the token and entitlement as JSON")
}
