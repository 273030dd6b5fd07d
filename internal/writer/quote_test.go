package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/rofex-data/internal/model"
	"github.com/rickgao/rofex-data/internal/quotes"
)

// fakeDB records queued batches and fails while err is set.
type fakeDB struct {
	mu      sync.Mutex
	batches []*pgx.Batch
	err     error
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)
	return &fakeResults{err: f.err}
}

func (f *fakeDB) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// symbols returns the first argument of every queued statement.
func (f *fakeDB) symbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, b := range f.batches {
		for _, q := range b.QueuedQueries {
			out = append(out, q.Arguments[0].(string))
		}
	}
	return out
}

type fakeResults struct{ err error }

func (r *fakeResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, r.err }
func (r *fakeResults) Query() (pgx.Rows, error)         { return nil, r.err }
func (r *fakeResults) QueryRow() pgx.Row                { return nil }
func (r *fakeResults) Close() error                     { return nil }

func seededTables(symbols ...string) *quotes.Tables {
	ts := quotes.NewTables()
	ts.Table(model.CategorySecurities).Seed(symbols)
	return ts
}

func last(v float64) quotes.Update {
	return quotes.Update{Last: &v}
}

func TestQuoteWriter_FlushUpsertsDirtyRows(t *testing.T) {
	tables := seededTables("GGAL", "YPFD", "PAMP")
	db := &fakeDB{}
	w := NewQuoteWriter(DefaultWriterConfig(), tables, db, nil)

	tables.Table(model.CategorySecurities).Apply("GGAL", last(10))
	tables.Table(model.CategorySecurities).Apply("YPFD", last(20))

	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	got := db.symbols()
	if len(got) != 2 || got[0] != "GGAL" || got[1] != "YPFD" {
		t.Errorf("upserted %v, want [GGAL YPFD]", got)
	}
	q := db.batches[0].QueuedQueries[0]
	if q.Arguments[1] != "securities" || q.Arguments[6] != 10.0 {
		t.Errorf("args = %v, want category securities and last 10", q.Arguments)
	}

	// Nothing changed since, so nothing is sent.
	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush failed: %v", err)
	}
	if len(db.batches) != 1 {
		t.Errorf("batches = %d, want 1", len(db.batches))
	}

	st := w.Stats()
	if st.Upserts != 2 || st.Flushes != 1 {
		t.Errorf("Stats = %+v, want 2 upserts in 1 flush", st)
	}
}

func TestQuoteWriter_RetriesFailedRows(t *testing.T) {
	tables := seededTables("GGAL", "YPFD")
	db := &fakeDB{err: errors.New("connection reset")}
	w := NewQuoteWriter(DefaultWriterConfig(), tables, db, nil)

	tables.Table(model.CategorySecurities).Apply("GGAL", last(10))
	tables.Table(model.CategorySecurities).Apply("YPFD", last(20))

	if err := w.Flush(context.Background()); err == nil {
		t.Fatal("Flush() error = nil, want upsert failure")
	}
	if w.pendingRetries() != 2 {
		t.Fatalf("pending retries = %d, want 2", w.pendingRetries())
	}

	db.setErr(nil)
	tables.Table(model.CategorySecurities).Apply("GGAL", last(11))

	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if w.pendingRetries() != 0 {
		t.Errorf("pending retries = %d, want 0", w.pendingRetries())
	}

	// The newer GGAL row replaces the failed copy.
	second := db.batches[1].QueuedQueries
	if len(second) != 2 {
		t.Fatalf("second batch has %d rows, want 2", len(second))
	}
	for _, q := range second {
		if q.Arguments[0] == "GGAL" && q.Arguments[6] != 11.0 {
			t.Errorf("GGAL last = %v, want 11", q.Arguments[6])
		}
	}
	if w.Stats().Errors != 1 {
		t.Errorf("Errors = %d, want 1", w.Stats().Errors)
	}
}

func TestQuoteWriter_SignalDrivesLoop(t *testing.T) {
	tables := seededTables("GGAL")
	db := &fakeDB{}
	w := NewQuoteWriter(WriterConfig{FlushInterval: 20 * time.Millisecond}, tables, db, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	tables.Table(model.CategorySecurities).Apply("GGAL", last(5))
	if err := w.QuoteUpdated(model.CategorySecurities, "GGAL"); err != nil {
		t.Fatalf("QuoteUpdated failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(db.symbols()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := db.symbols(); len(got) != 1 || got[0] != "GGAL" {
		t.Errorf("upserted %v, want [GGAL]", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if w.Stats().Signals != 1 {
		t.Errorf("Signals = %d, want 1", w.Stats().Signals)
	}
}

func TestQuoteWriter_StopFlushesRemaining(t *testing.T) {
	tables := seededTables("GGAL")
	db := &fakeDB{}
	w := NewQuoteWriter(WriterConfig{FlushInterval: time.Hour}, tables, db, nil)

	w.Start(context.Background())
	tables.Table(model.CategorySecurities).Apply("GGAL", last(7))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Stop(ctx)

	if got := db.symbols(); len(got) != 1 {
		t.Errorf("upserted %v after Stop, want [GGAL]", got)
	}
}
