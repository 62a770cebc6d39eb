// Package mcp exposes the MyLife operator surface as MCP tools, resources
// and prompts. Every tool mirrors a CLI command.
package mcp

import (
	"errors"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/mylife/adapter/cli"
)

// ToolDependencies provides the application services behind the tools.
type ToolDependencies struct {
	App *cli.App
}

// RegisterCLITools registers MCP tools that mirror CLI functionality.
func RegisterCLITools(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	if deps.App == nil {
		return errors.New("app is required")
	}

	h := &handlers{app: deps.App}
	registerEntitlementTools(srv, h)
	registerAccessTools(srv, h)
	registerIdentityTools(srv, h)
	return nil
}

// handlers holds the tool bodies so they can be called without a transport.
type handlers struct {
	app *cli.App
}
