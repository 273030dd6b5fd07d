package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// StatsFunc returns a component's current counters.
type StatsFunc func() any

type source struct {
	name string
	fn   StatsFunc
}

// Reporter aggregates component stats.
type Reporter struct {
	interval time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	sources []source

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReporter creates a reporter logging every interval. A zero interval
// disables periodic logging; Snapshot and Handler still work.
func NewReporter(interval time.Duration, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{interval: interval, logger: logger}
}

// Register adds a named source. Registering a name twice replaces it.
func (r *Reporter) Register(name string, fn StatsFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.sources {
		if r.sources[i].name == name {
			r.sources[i].fn = fn
			return
		}
	}
	r.sources = append(r.sources, source{name: name, fn: fn})
}

// Snapshot calls every source. A panicking source reports its panic value
// instead of taking the caller down.
func (r *Reporter) Snapshot() map[string]any {
	r.mu.RLock()
	sources := append([]source(nil), r.sources...)
	r.mu.RUnlock()

	out := make(map[string]any, len(sources))
	for _, s := range sources {
		out[s.name] = collect(s)
	}
	return out
}

func collect(s source) (v any) {
	defer func() {
		if p := recover(); p != nil {
			v = map[string]any{"error": p}
		}
	}()
	return s.fn()
}

// Handler serves Snapshot as JSON.
func (r *Reporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r.Snapshot()); err != nil {
			r.logger.Warn("encode stats", "error", err)
		}
	})
}

// Start begins periodic logging.
func (r *Reporter) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	if r.interval <= 0 {
		return nil
	}

	r.wg.Add(1)
	go r.logLoop()
	return nil
}

// Stop ends periodic logging.
func (r *Reporter) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reporter) logLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.Log()
		}
	}
}

// Log writes one record with every source as an attribute.
func (r *Reporter) Log() {
	snap := r.Snapshot()

	r.mu.RLock()
	attrs := make([]any, 0, 2*len(r.sources))
	for _, s := range r.sources {
		attrs = append(attrs, slog.Any(s.name, snap[s.name]))
	}
	r.mu.RUnlock()

	r.logger.Info("stats", attrs...)
}
