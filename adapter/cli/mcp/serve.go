package mcp

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mylife/adapter/cli"
	mcpinternal "github.com/felixgeelhaar/mylife/internal/mcp"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Serve the operator tools over MCP. Set MCP_AUTH_TOKEN to require a
bearer token on every request.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			return errors.New("mcp serve requires database connection")
		}

		cfg := *app.Config
		if serveAddr != "" {
			cfg.MCPAddr = serveAddr
		}

		err := mcpinternal.Serve(cmd.Context(), &cfg, app, cli.Logger())
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default MCP_ADDR)")
}
