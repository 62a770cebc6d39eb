package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mylife/adapter/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the entitlement HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return errors.New("serve requires a database connection")
		}

		server := NewAPIServer(app, serveAddr)
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-cmd.Context().Done():
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	},
}

// NewAPIServer builds the HTTP server over app. An empty addr uses HTTP_ADDR.
func NewAPIServer(app *App, addr string) *api.Server {
	cfg := api.DefaultServerConfig()
	if addr == "" {
		addr = app.Config.HTTPAddr
	}
	if addr != "" {
		cfg.Addr = addr
	}
	cfg.Now = app.Clock
	cfg.Keys = api.Keys{
		Issuer:  app.Config.IssuerKey,
		Sync:    app.Config.SyncKey,
		Revoke:  app.Config.RevokeKey,
		Webhook: app.Config.WebhookKey,
		Job:     app.Config.JobKey,
	}
	return api.NewServer(cfg, api.Services{
		Entitlements: app.Entitlements,
		Webhooks:     app.Reconciler,
		Access:       app.Sweeper,
		Identity:     app.Identity,
	}, Logger())
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Bring the database schema up to date. Migrations also run whenever a
command opens the database, so this reports what startup applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return errors.New("migrate requires a database connection")
		}
		if app.MigrationsApplied == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migrations.\n", app.MigrationsApplied)
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default HTTP_ADDR)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
