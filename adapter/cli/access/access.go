package access

import "github.com/spf13/cobra"

// Cmd is the access command group.
var Cmd = &cobra.Command{
	Use:   "access",
	Short: "Operate GitHub access provisioning jobs",
	Long:  `List, sweep and requeue the durable jobs that grant or revoke access to the self-host repository.`,
}

func init() {
	Cmd.AddCommand(sweepCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(requeueCmd)
}
