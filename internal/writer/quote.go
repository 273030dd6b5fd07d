package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/rofex-data/internal/model"
	"github.com/rickgao/rofex-data/internal/quotes"
)

// BatchSender sends a pgx batch. *pgxpool.Pool implements it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// DirtySource hands out changed quote rows. *quotes.Tables implements it.
type DirtySource interface {
	DrainDirty() []quotes.Row
}

const upsertQuoteSQL = `
	INSERT INTO quotes (symbol, category, bid, bid_size, ask, ask_size, last, change,
		open, high, low, previous_close, turnover, volume, operation_count, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (symbol) DO UPDATE SET
		category = EXCLUDED.category,
		bid = EXCLUDED.bid,
		bid_size = EXCLUDED.bid_size,
		ask = EXCLUDED.ask,
		ask_size = EXCLUDED.ask_size,
		last = EXCLUDED.last,
		change = EXCLUDED.change,
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		previous_close = EXCLUDED.previous_close,
		turnover = EXCLUDED.turnover,
		volume = EXCLUDED.volume,
		operation_count = EXCLUDED.operation_count,
		updated_at = EXCLUDED.updated_at
`

// QuoteWriter flushes changed quote rows to the quotes table. The router
// signals it through QuoteUpdated; writes happen on the writer's own
// goroutine.
type QuoteWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	tables DirtySource
	db     BatchSender

	signalled atomic.Bool

	// Rows whose last flush failed, keyed by symbol
	retryMu sync.Mutex
	retry   map[string]quotes.Row

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metricsMu sync.Mutex
	metrics   WriterMetrics
}

// NewQuoteWriter creates a new QuoteWriter.
func NewQuoteWriter(cfg WriterConfig, tables DirtySource, db BatchSender, logger *slog.Logger) *QuoteWriter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWriterConfig()
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &QuoteWriter{
		cfg:    cfg,
		logger: logger,
		tables: tables,
		db:     db,
		retry:  make(map[string]quotes.Row),
	}
}

// QuoteUpdated marks the tables as changed. It never blocks.
func (w *QuoteWriter) QuoteUpdated(category model.Category, symbol string) error {
	w.signalled.Store(true)
	w.metricsMu.Lock()
	w.metrics.Signals++
	w.metricsMu.Unlock()
	return nil
}

// Start begins the flush loop.
func (w *QuoteWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("quote writer started", "flush_interval", w.cfg.FlushInterval)
	return nil
}

// Stop shuts the loop down and performs a final flush.
func (w *QuoteWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping quote writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("quote writer stop timed out")
		return ctx.Err()
	}

	if err := w.Flush(ctx); err != nil {
		w.logger.Error("final quote flush failed", "error", err)
	}
	w.logger.Info("quote writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *QuoteWriter) Stats() WriterMetrics {
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()
	return w.metrics
}

func (w *QuoteWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if !w.signalled.Load() && w.pendingRetries() == 0 {
				continue
			}
			if err := w.Flush(w.ctx); err != nil {
				w.logger.Warn("quote flush failed", "error", err)
			}
		}
	}
}

// Flush drains dirty rows and upserts them in one batch. Rows from a failed
// flush are retried on the next one unless a newer copy supersedes them.
func (w *QuoteWriter) Flush(ctx context.Context) error {
	w.signalled.Store(false)
	rows := w.collect(w.tables.DrainDirty())
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := w.upsert(ctx, rows); err != nil {
		w.requeue(rows)
		w.metricsMu.Lock()
		w.metrics.Errors++
		w.metricsMu.Unlock()
		return fmt.Errorf("upsert %d quotes: %w", len(rows), err)
	}

	w.metricsMu.Lock()
	w.metrics.Upserts += int64(len(rows))
	w.metrics.Flushes++
	w.metricsMu.Unlock()

	w.logger.Debug("flushed quotes",
		"count", len(rows),
		"duration", time.Since(start),
	)
	return nil
}

// collect merges pending retries with freshly drained rows.
func (w *QuoteWriter) collect(fresh []quotes.Row) []quotes.Row {
	w.retryMu.Lock()
	defer w.retryMu.Unlock()

	if len(w.retry) == 0 {
		return fresh
	}

	seen := make(map[string]bool, len(fresh))
	for _, r := range fresh {
		seen[r.Symbol] = true
	}
	rows := fresh
	for sym, r := range w.retry {
		if !seen[sym] {
			rows = append(rows, r)
		}
	}
	clear(w.retry)
	return rows
}

func (w *QuoteWriter) requeue(rows []quotes.Row) {
	w.retryMu.Lock()
	defer w.retryMu.Unlock()
	for _, r := range rows {
		w.retry[r.Symbol] = r
	}
}

func (w *QuoteWriter) pendingRetries() int {
	w.retryMu.Lock()
	defer w.retryMu.Unlock()
	return len(w.retry)
}

func (w *QuoteWriter) upsert(ctx context.Context, rows []quotes.Row) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(upsertQuoteSQL, quoteArgs(r)...)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func quoteArgs(r quotes.Row) []any {
	q := r.Quote
	return []any{
		q.Symbol, string(r.Category),
		q.Bid, q.BidSize, q.Ask, q.AskSize, q.Last, q.Change,
		q.Open, q.High, q.Low, q.PreviousClose,
		q.Turnover, q.Volume, q.OperationCount, q.UpdatedAt,
	}
}
