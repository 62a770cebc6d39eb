package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/mylife/adapter/cli"
	"github.com/felixgeelhaar/mylife/internal/app"
	mcpinternal "github.com/felixgeelhaar/mylife/internal/mcp"
	"github.com/felixgeelhaar/mylife/pkg/config"
	"github.com/felixgeelhaar/mylife/pkg/observability"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger(observability.LogConfig{}).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Stdout may carry the protocol; logs go to stderr.
	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.LogLevel,
		Format:      observability.LogFormat(cfg.LogFormat),
		Output:      os.Stderr,
		ServiceName: "mylife-mcp",
	})

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	if err := mcpinternal.Serve(ctx, cfg, cli.NewApp(container), logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
