// Package mcp runs the operator MCP server over the CLI application.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/middleware"

	"github.com/felixgeelhaar/mylife/adapter/cli"
	mcplocal "github.com/felixgeelhaar/mylife/adapter/mcp"
	"github.com/felixgeelhaar/mylife/pkg/config"
	"github.com/felixgeelhaar/mylife/pkg/observability"
)

// NewServer builds an MCP server with every tool, resource and prompt
// registered against cliApp.
func NewServer(cliApp *cli.App, logger *slog.Logger) (*mcpgo.Server, error) {
	if cliApp == nil {
		return nil, errors.New("CLI app is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv := mcpgo.NewServer(mcpgo.ServerInfo{
		Name:    "mylife-mcp",
		Version: cli.Version,
		Capabilities: mcpgo.Capabilities{
			Tools:     true,
			Resources: true,
			Prompts:   true,
		},
	})

	deps := mcplocal.ToolDependencies{App: cliApp}
	if err := mcplocal.RegisterCLITools(srv, deps); err != nil {
		return nil, err
	}
	if err := mcplocal.RegisterResources(srv, deps); err != nil {
		logger.Warn("failed to register MCP resources", "error", err)
	}
	if err := mcplocal.RegisterPrompts(srv); err != nil {
		logger.Warn("failed to register MCP prompts", "error", err)
	}
	return srv, nil
}

// Serve starts the MCP server on cfg.MCPAddr and blocks until ctx is done.
func Serve(ctx context.Context, cfg *config.Config, cliApp *cli.App, logger *slog.Logger) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	srv, err := NewServer(cliApp, logger)
	if err != nil {
		return err
	}

	if cfg.MCPAuthToken == "" {
		logger.Warn("MCP auth token not set; requests will be unauthenticated")
	}
	stack := middlewareStack(cfg, mcpLogger{logger: logger})

	logger.Info("mcp server listening", "addr", cfg.MCPAddr)
	return mcpgo.ServeHTTPWithMiddleware(ctx, srv, cfg.MCPAddr, nil, mcpgo.WithMiddleware(stack...))
}

// middlewareStack returns the default stack, led by bearer authentication
// when an MCP auth token is configured.
func middlewareStack(cfg *config.Config, logger mcpLogger) []middleware.Middleware {
	stack := middleware.DefaultStack(logger)
	if cfg.MCPAuthToken == "" {
		return stack
	}
	authenticator := middleware.BearerTokenAuthenticator(middleware.StaticTokens(map[string]*middleware.Identity{
		cfg.MCPAuthToken: {ID: "operator", Name: "operator"},
	}))
	return append([]middleware.Middleware{middleware.Auth(authenticator, middleware.WithAuthLogger(logger))}, stack...)
}

// mcpLogger routes middleware log calls into slog.
type mcpLogger struct {
	logger *slog.Logger
}

func (l mcpLogger) Debug(msg string, fields ...middleware.Field) { l.log(slog.LevelDebug, msg, fields) }
func (l mcpLogger) Info(msg string, fields ...middleware.Field)  { l.log(slog.LevelInfo, msg, fields) }
func (l mcpLogger) Warn(msg string, fields ...middleware.Field)  { l.log(slog.LevelWarn, msg, fields) }
func (l mcpLogger) Error(msg string, fields ...middleware.Field) { l.log(slog.LevelError, msg, fields) }

func (l mcpLogger) log(level slog.Level, msg string, fields []middleware.Field) {
	l.logger.Log(context.Background(), level, msg, fieldsToArgs(fields)...)
}

// fieldsToArgs flattens middleware fields into slog key/value pairs. Values
// under token-like keys are redacted.
func fieldsToArgs(fields []middleware.Field) []any {
	args := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		var value any = field.Value
		if s, ok := value.(string); ok && isSecretKey(field.Key) {
			value = observability.Redact(s)
		}
		args = append(args, field.Key, value)
	}
	return args
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	return strings.Contains(key, "token") || strings.Contains(key, "authorization")
}
