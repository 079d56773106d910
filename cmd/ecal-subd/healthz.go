package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ecal-sub/ecal/health"
	"github.com/ecal-sub/ecal/subscriber"
)

// startHealthz runs an HTTP server exposing the aggregate health of every
// subscriber at /healthz, refreshed on a fixed tick until ctx is done.
func startHealthz(ctx context.Context, addr string, subs []*subscriber.Subscriber) *http.Server {
	monitor := health.NewMonitor()

	refresh := func() {
		for _, sub := range subs {
			status := sub.Health()
			if status.Healthy {
				monitor.UpdateHealthy(sub.Meta().Name, "accepting samples")
			} else {
				monitor.UpdateUnhealthy(sub.Meta().Name, "not started")
			}
		}
	}
	refresh()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		systemHealth := monitor.AggregateHealth("ecal-subd")

		statusCode := http.StatusOK
		if systemHealth.IsUnhealthy() {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(systemHealth)
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refresh()
			}
		}
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("healthz server failed", "error", err)
		}
	}()

	return server
}
