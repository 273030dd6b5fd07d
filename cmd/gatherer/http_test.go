package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rickgao/rofex-data/internal/connection"
	"github.com/rickgao/rofex-data/internal/instrument"
	"github.com/rickgao/rofex-data/internal/model"
	"github.com/rickgao/rofex-data/internal/quotes"
)

type stubCache struct{ st instrument.Stats }

func (s stubCache) Stats() instrument.Stats { return s.st }

type stubFeed struct{ st connection.FeedStats }

func (s stubFeed) Stats() connection.FeedStats { return s.st }

type stubDB struct{ err error }

func (s stubDB) Ping(context.Context) error { return s.err }

func testDeps() handlerDeps {
	tables := quotes.NewTables()
	tables.Table(model.CategoryRepos).Seed([]string{"MERV - XMEV - PESOS - 1D"})
	tables.Table(model.CategorySecurities).Seed([]string{"GGAL"})
	return handlerDeps{
		cache:    stubCache{instrument.Stats{Total: 10, Tier: instrument.TierOrigin}},
		feed:     stubFeed{connection.FeedStats{Connected: true}},
		tables:   tables,
		reporter: http.NotFoundHandler(),
		logger:   slog.Default(),
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*handlerDeps)
		wantStatus string
		wantCode   int
	}{
		{"healthy", func(d *handlerDeps) {}, "healthy", http.StatusOK},
		{"feed down", func(d *handlerDeps) { d.feed = stubFeed{} }, "degraded", http.StatusOK},
		{"cache degraded", func(d *handlerDeps) {
			d.cache = stubCache{instrument.Stats{Degraded: true}}
		}, "degraded", http.StatusOK},
		{"database down", func(d *handlerDeps) { d.db = stubDB{errors.New("refused")} }, "unhealthy", http.StatusServiceUnavailable},
		{"database up", func(d *handlerDeps) { d.db = stubDB{} }, "healthy", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps()
			tt.mutate(&deps)

			rec := httptest.NewRecorder()
			newHandler(deps).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
		})
	}
}

func TestDebugQuotes(t *testing.T) {
	h := newHandler(testDeps())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/quotes?category=repos", nil))
	var body map[string][]model.Quote
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 1 || len(body["repos"]) != 1 {
		t.Errorf("body = %v, want one repos row", body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/quotes", nil))
	body = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 3 || len(body["securities"]) != 1 {
		t.Errorf("body = %v, want all three categories", body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/quotes?category=bonds", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown category code = %d, want 400", rec.Code)
	}
}
