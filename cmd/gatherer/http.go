package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/rofex-data/internal/connection"
	"github.com/rickgao/rofex-data/internal/instrument"
	"github.com/rickgao/rofex-data/internal/model"
	"github.com/rickgao/rofex-data/internal/quotes"
)

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

type handlerDeps struct {
	cache interface {
		Stats() instrument.Stats
	}
	feed interface {
		Stats() connection.FeedStats
	}
	tables   *quotes.Tables
	db       pinger
	reporter http.Handler
	logger   *slog.Logger
}

// newHandler serves /health, /stats and /debug/quotes.
func newHandler(deps handlerDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if deps.db != nil {
			if err := deps.db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["postgres"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["postgres"] = "connected"
			}
		}

		cs := deps.cache.Stats()
		health.Components["instrument_cache"] = map[string]any{
			"instruments": cs.Total,
			"tier":        cs.Tier,
			"degraded":    cs.Degraded,
		}
		if (cs.Degraded || cs.Permissive) && health.Status == "healthy" {
			health.Status = "degraded"
		}

		fs := deps.feed.Stats()
		health.Components["feed"] = map[string]any{
			"connected":  fs.Connected,
			"reconnects": fs.Reconnects,
		}
		if !fs.Connected && health.Status == "healthy" {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.Handle("/stats", deps.reporter)

	mux.HandleFunc("/debug/quotes", func(w http.ResponseWriter, r *http.Request) {
		body := make(map[model.Category][]model.Quote)

		if c := r.URL.Query().Get("category"); c != "" {
			t := deps.tables.Table(model.Category(c))
			if t == nil {
				http.Error(w, "unknown category "+c, http.StatusBadRequest)
				return
			}
			body[t.Category()] = t.Snapshot()
		} else {
			for _, c := range model.Categories {
				body[c] = deps.tables.Table(c).Snapshot()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			deps.logger.Warn("encode quotes", "error", err)
		}
	})

	return mux
}
