package identity

import "github.com/spf13/cobra"

// Cmd is the identity command group.
var Cmd = &cobra.Command{
	Use:   "identity",
	Short: "Issue and verify actor identity tokens",
}

var origin string

func init() {
	Cmd.PersistentFlags().StringVar(&origin, "origin", "", "origin host used to resolve the secret (development falls back on loopback)")
	Cmd.AddCommand(issueCmd)
	Cmd.AddCommand(verifyCmd)
}
