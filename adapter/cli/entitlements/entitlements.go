package entitlements

import "github.com/spf13/cobra"

// Cmd is the entitlements command group.
var Cmd = &cobra.Command{
	Use:   "entitlements",
	Short: "Inspect, issue and revoke the signed entitlement",
}

func init() {
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(issueCmd)
	Cmd.AddCommand(revokeCmd)
	Cmd.AddCommand(revocationsCmd)
}
