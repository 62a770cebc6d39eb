package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mylife/pkg/observability"
)

var (
	verbose bool
	logger  *slog.Logger
)

type commandContext struct {
	correlationID string
	startedAt     time.Time
}

type commandContextKey struct{}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mylife",
	Short: "MyLife entitlement and access control",
	Long: `mylife runs and operates the MyLife entitlement service: signed
entitlements, billing webhook reconciliation, GitHub access provisioning
and actor identity tokens.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logger == nil {
			logger = slog.Default()
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		info := commandContext{
			correlationID: uuid.NewString(),
			startedAt:     time.Now(),
		}
		ctx = observability.WithCorrelationID(ctx, info.correlationID)
		cmd.SetContext(context.WithValue(ctx, commandContextKey{}, info))
		if verbose {
			logger.Info("command start", "command", cmd.CommandPath())
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger == nil || !verbose {
			return
		}
		info, ok := cmd.Context().Value(commandContextKey{}).(commandContext)
		if !ok {
			return
		}
		logger.InfoContext(cmd.Context(), "command end",
			"command", cmd.CommandPath(),
			"duration_ms", time.Since(info.startedAt).Milliseconds(),
		)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// AddCommand adds a command to the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// SetLogger sets the CLI logger.
func SetLogger(l *slog.Logger) {
	logger = l
}

// Logger returns the CLI logger.
func Logger() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
