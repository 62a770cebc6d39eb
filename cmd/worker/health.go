package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/outbox"
)

type statsSource interface {
	Stats() sweepStats
}

type outboxStats interface {
	GetStats() outbox.Stats
}

type pinger interface {
	Ping(ctx context.Context) error
}

type metricsSource interface {
	Snapshot() map[string]int64
}

func newHealthMux(worker statsSource, relay outboxStats, db pinger, metrics metricsSource) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{
			"status":  "ok",
			"worker":  worker.Stats(),
			"outbox":  relay.GetStats(),
			"metrics": metrics.Snapshot(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(checkCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ready"})
	})
	return mux
}
