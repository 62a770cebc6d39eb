package entitlements

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mylife/adapter/cli"
	billingApp "github.com/felixgeelhaar/mylife/internal/billing/application"
)

var (
	revokeReason     string
	revocationsLimit int
)

var revokeCmd = &cobra.Command{
	Use:   "revoke <signature>",
	Short: "Revoke an entitlement by signature",
	Long: `Record a revocation. The stored entitlement is cleared only when its
signature matches; a stale signature is still written to the ledger.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Entitlements == nil {
			return errors.New("entitlement commands require database connection")
		}

		res, err := app.Entitlements.Revoke(cmd.Context(), args[0], revokeReason)
		if err != nil {
			return err
		}
		if res.Cleared {
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s; current entitlement cleared.\n", res.Signature)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s; current entitlement has a different signature and was kept.\n", res.Signature)
		}
		return nil
	},
}

var revocationsCmd = &cobra.Command{
	Use:   "revocations",
	Short: "List recorded revocations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Entitlements == nil {
			return errors.New("entitlement commands require database connection")
		}
		out := cmd.OutOrStdout()

		records, err := app.Entitlements.Revocations(cmd.Context(), revocationsLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "No revocations recorded.")
			return nil
		}

		fmt.Fprintf(out, "Revocations (%d):\n", len(records))
		for _, r := range records {
			cleared := ""
			if r.ClearedActive {
				cleared = " (cleared)"
			}
			source := ""
			if r.SourceEventID != "" {
				source = " event=" + r.SourceEventID
			}
			fmt.Fprintf(out, "  %s  %s  %s%s%s\n", r.RevokedAt.Format(time.RFC3339), r.Signature, r.Reason, source, cleared)
		}
		return nil
	},
}

func init() {
	revokeCmd.Flags().StringVar(&revokeReason, "reason", billingApp.DefaultRevokeReason, "audit reason")
	revocationsCmd.Flags().IntVar(&revocationsLimit, "limit", 20, "maximum records to list")
}
