package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mylife/adapter/cli"
	"github.com/felixgeelhaar/mylife/internal/access/domain"
)

var (
	listStatus string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List access jobs by status",
	Long: `List access jobs in one status. Without --status the command prints
counts for every status.

Examples:
  mylife access list
  mylife access list --status alert`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Queue == nil {
			return errors.New("access commands require database connection")
		}
		out := cmd.OutOrStdout()

		if listStatus == "" {
			counts, err := app.Queue.Counts(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range []domain.JobStatus{domain.StatusPending, domain.StatusRetrying, domain.StatusCompleted, domain.StatusAlert} {
				fmt.Fprintf(out, "%-10s %d\n", s, counts[s])
			}
			return nil
		}

		jobs, err := app.Queue.List(cmd.Context(), domain.JobStatus(listStatus), listLimit)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Fprintf(out, "No %s jobs.\n", listStatus)
			return nil
		}

		fmt.Fprintf(out, "%s jobs (%d):\n", listStatus, len(jobs))
		for _, job := range jobs {
			fmt.Fprintf(out, "  %s  %s @%s  attempts=%d  next=%s\n",
				job.EventID,
				job.Payload.Action,
				job.Payload.GitHubUsername,
				job.Attempts,
				job.NextAttemptAt.Format(time.RFC3339),
			)
			if job.LastError != "" {
				fmt.Fprintf(out, "      last error: %s\n", job.LastError)
			}
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "pending, retrying, completed or alert")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum jobs to list")
}
