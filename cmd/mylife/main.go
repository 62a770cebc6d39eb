package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/mylife/adapter/cli"
	cliAccess "github.com/felixgeelhaar/mylife/adapter/cli/access"
	cliBilling "github.com/felixgeelhaar/mylife/adapter/cli/billing"
	cliEntitlements "github.com/felixgeelhaar/mylife/adapter/cli/entitlements"
	cliIdentity "github.com/felixgeelhaar/mylife/adapter/cli/identity"
	"github.com/felixgeelhaar/mylife/adapter/cli/mcp"
	"github.com/felixgeelhaar/mylife/internal/app"
	"github.com/felixgeelhaar/mylife/pkg/config"
	"github.com/felixgeelhaar/mylife/pkg/observability"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = observability.NewLogger(observability.LogConfig{
		Level:       cfg.LogLevel,
		Format:      observability.LogFormatText,
		Output:      os.Stderr,
		ServiceName: "mylife",
	})
	cli.SetLogger(logger)

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	cli.SetApp(cli.NewApp(container))

	cli.AddCommand(cliEntitlements.Cmd)
	cli.AddCommand(cliAccess.Cmd)
	cli.AddCommand(cliIdentity.Cmd)
	cli.AddCommand(cliBilling.Cmd)
	cli.AddCommand(mcp.Cmd)

	cli.Execute(ctx)
}
