package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	accessApp "github.com/felixgeelhaar/mylife/internal/access/application"
)

// dueProcessor runs one sweep over due jobs. The access sweeper satisfies it.
type dueProcessor interface {
	ProcessDue(ctx context.Context, now time.Time, limit int) (accessApp.SweepResult, error)
}

// sweepConfig configures the background sweep loop.
type sweepConfig struct {
	Interval time.Duration
	Limit    int
	Now      func() time.Time
}

// sweepStats reports what the loop has done since Start.
type sweepStats struct {
	IsRunning   bool       `json:"running"`
	Sweeps      int64      `json:"sweeps"`
	Processed   int64      `json:"processed"`
	Completed   int64      `json:"completed"`
	Alerts      int64      `json:"alerts"`
	LastSweepAt *time.Time `json:"last_sweep_at,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// sweepLoop calls ProcessDue on a fixed interval.
type sweepLoop struct {
	sweeper dueProcessor
	config  sweepConfig
	logger  *slog.Logger

	wg       sync.WaitGroup
	stopChan chan struct{}
	running  bool
	mu       sync.Mutex

	statsMu sync.Mutex
	stats   sweepStats
}

// newSweepLoop creates a sweepLoop. A zero interval means one minute.
func newSweepLoop(sweeper dueProcessor, config sweepConfig, logger *slog.Logger) *sweepLoop {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &sweepLoop{
		sweeper:  sweeper,
		config:   config,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the sweep loop in a goroutine.
func (w *sweepLoop) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("access worker started", "interval", w.config.Interval, "limit", w.config.Limit)
}

// Stop waits for the in-flight sweep and ends the loop.
func (w *sweepLoop) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopChan)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("access worker stopped")
}

// IsRunning returns true while the loop is active.
func (w *sweepLoop) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stats returns a copy of the loop counters.
func (w *sweepLoop) Stats() sweepStats {
	w.statsMu.Lock()
	stats := w.stats
	w.statsMu.Unlock()
	stats.IsRunning = w.IsRunning()
	return stats
}

func (w *sweepLoop) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.markStopped()
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}

func (w *sweepLoop) markStopped() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// SweepOnce runs a single sweep and records the result.
func (w *sweepLoop) SweepOnce(ctx context.Context) {
	now := w.config.Now()
	res, err := w.sweeper.ProcessDue(ctx, now, w.config.Limit)

	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.Sweeps++
	w.stats.Processed += int64(res.Processed)
	w.stats.Completed += int64(res.Completed)
	w.stats.Alerts += int64(res.Alerts)
	w.stats.LastSweepAt = &now
	if err != nil {
		w.stats.LastErrorAt = &now
		w.stats.LastError = err.Error()
		w.logger.Error("access sweep failed", "error", err)
	}
}
