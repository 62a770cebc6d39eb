package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/mylife/internal/app"
	"github.com/felixgeelhaar/mylife/pkg/config"
	"github.com/felixgeelhaar/mylife/pkg/observability"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger(observability.LogConfig{}).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.LogLevel,
		Format:      observability.LogFormat(cfg.LogFormat),
		Output:      os.Stdout,
		ServiceName: "mylife-worker",
	})
	logger.Info("starting mylife worker")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	if !container.Sweeper.Enabled() {
		logger.Warn("GitHub provisioning not configured; sweeps will be no-ops")
	}

	worker := newSweepLoop(container.Sweeper, sweepConfig{
		Interval: cfg.WorkerSweepInterval,
		Limit:    cfg.AccessSweepMaxSize,
		Now:      container.Clock,
	}, logger)
	worker.Start(ctx)
	container.OutboxProcessor.Start(ctx)

	cleanupTicker := time.NewTicker(cfg.OutboxCleanupInterval)
	defer cleanupTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-cleanupTicker.C:
				deleted, err := container.Outbox.DeleteOld(ctx, container.Clock().Add(-cfg.OutboxRetention))
				if err != nil {
					logger.Error("outbox cleanup failed", "error", err)
					continue
				}
				if deleted > 0 {
					logger.Info("outbox cleanup completed", "deleted", deleted, "retention", cfg.OutboxRetention)
				}
			}
		}
	}()

	if cfg.WorkerHealthAddr != "" {
		healthSrv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           newHealthMux(worker, container.OutboxProcessor, container.DBConn, container.Metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("health server starting", "addr", cfg.WorkerHealthAddr)
			if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health server error", "error", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := healthSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("health server shutdown error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down worker")

	worker.Stop()
	container.OutboxProcessor.Stop()
	stats := worker.Stats()
	logger.Info("worker stopped",
		"sweeps", stats.Sweeps,
		"processed", stats.Processed,
		"completed", stats.Completed,
		"alerts", stats.Alerts,
	)

	fmt.Println("Goodbye!")
}
