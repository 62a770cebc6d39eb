package entitlements

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mylife/adapter/cli"
	billingApp "github.com/felixgeelhaar/mylife/internal/billing/application"
	"github.com/felixgeelhaar/mylife/internal/billing/domain"
)

var (
	issueMode      string
	issueHosted    bool
	issueSelfHost  bool
	issuePackYear  int
	issueFeatures  []string
	issueExpiresAt string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign and store an explicit entitlement",
	Long: `Sign and store an entitlement outside the billing flow.

Examples:
  mylife entitlements issue --mode hosted --hosted --expires-at 2027-01-01T00:00:00Z
  mylife entitlements issue --mode self_host --self-host --update-pack-year 2026`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Entitlements == nil {
			return errors.New("entitlement commands require database connection")
		}

		req := billingApp.IssueRequest{
			Mode:            domain.Mode(issueMode),
			HostedActive:    issueHosted,
			SelfHostLicense: issueSelfHost,
			Features:        issueFeatures,
		}
		if issuePackYear != 0 {
			year := issuePackYear
			req.UpdatePackYear = &year
		}
		if issueExpiresAt != "" {
			t, err := time.Parse(time.RFC3339, issueExpiresAt)
			if err != nil {
				return fmt.Errorf("--expires-at must be RFC 3339: %w", err)
			}
			req.ExpiresAt = &t
		}

		issued, err := app.Entitlements.Issue(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Issued %s entitlement %s\n", issued.Entitlements.Mode, issued.Entitlements.Signature)
		fmt.Fprintln(cmd.OutOrStdout(), issued.Token)
		return nil
	},
}

func init() {
	issueCmd.Flags().StringVar(&issueMode, "mode", string(domain.ModeLocalOnly), "hosted, self_host or local_only")
	issueCmd.Flags().BoolVar(&issueHosted, "hosted", false, "grant hosted sync")
	issueCmd.Flags().BoolVar(&issueSelfHost, "self-host", false, "grant the self-host license")
	issueCmd.Flags().IntVar(&issuePackYear, "update-pack-year", 0, "grant the update pack for a year")
	issueCmd.Flags().StringSliceVar(&issueFeatures, "feature", nil, "extra feature names")
	issueCmd.Flags().StringVar(&issueExpiresAt, "expires-at", "", "expiry as RFC 3339")
}
