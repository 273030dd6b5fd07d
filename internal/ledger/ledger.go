package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/rofex-data/internal/model"
)

// Sink persists the whole ledger table. WriteAll must replace the table
// atomically: readers see either the old rows or the new rows.
type Sink interface {
	ReadAll(ctx context.Context) ([]model.Execution, error)
	WriteAll(ctx context.Context, rows []model.Execution) error
}

// Config holds ledger settings.
type Config struct {
	WriteTimeout time.Duration // Bound on the detached write. Default: 30s
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{WriteTimeout: 30 * time.Second}
}

// Totals are cumulative counts since the ledger was created.
type Totals struct {
	Cycles      int64       `json:"cycles"`
	Result      MergeResult `json:"result"`
	LastCycleAt time.Time   `json:"last_cycle_at"`
	LastError   string      `json:"last_error,omitempty"`
}

// Ledger serializes reconcile cycles against one Sink.
type Ledger struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger

	mu sync.Mutex // one cycle at a time

	totalsMu sync.Mutex
	totals   Totals
}

// New creates a ledger backed by sink.
func New(cfg Config, sink Sink, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &Ledger{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
	}
}

// Reconcile merges batch into the persisted table and writes it back.
//
// Invalid records are rejected one by one. A sink failure returns a result
// with only Errors set and leaves the table as it was. Once the read
// succeeds, the write runs to completion even if ctx is cancelled.
func (l *Ledger) Reconcile(ctx context.Context, batch []model.Execution) (MergeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var res MergeResult
	valid := make([]model.Execution, 0, len(batch))
	for _, e := range batch {
		n, err := Normalize(e, l.logger)
		if err != nil {
			res.Rejected++
			l.logger.Warn("execution rejected",
				"order_id", e.OrderID,
				"execution_id", e.ExecutionID,
				"error", err,
			)
			continue
		}
		valid = append(valid, n)
	}
	if len(valid) == 0 {
		l.record(res, nil)
		return res, nil
	}

	existing, err := l.sink.ReadAll(ctx)
	if err != nil {
		err = fmt.Errorf("read ledger: %w: %w", model.ErrSink, err)
		l.record(MergeResult{Errors: 1}, err)
		return MergeResult{Errors: 1}, err
	}

	existing, dropped := DedupExisting(existing)
	if dropped > 0 {
		l.logger.Warn("duplicate ledger keys collapsed to first occurrence",
			"dropped", dropped,
			"error", model.ErrMergeConflict,
		)
	}
	incoming := DedupIncoming(valid)

	rows, merged := Merge(existing, incoming)
	merged.Rejected = res.Rejected

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.WriteTimeout)
	defer cancel()
	if err := l.sink.WriteAll(writeCtx, rows); err != nil {
		err = fmt.Errorf("write ledger: %w: %w", model.ErrSink, err)
		l.record(MergeResult{Errors: 1}, err)
		return MergeResult{Errors: 1}, err
	}

	l.record(merged, nil)
	l.logger.Info("ledger reconciled",
		"inserted", merged.Inserted,
		"updated", merged.Updated,
		"unchanged", merged.Unchanged,
		"audit_changed", merged.AuditChanged,
		"rejected", merged.Rejected,
		"rows", len(rows),
	)
	return merged, nil
}

// Compact rewrites the table with duplicate keys collapsed to their first
// occurrence. It returns the number of rows removed.
func (l *Ledger) Compact(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.sink.ReadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("read ledger: %w: %w", model.ErrSink, err)
	}
	rows, dropped := DedupExisting(rows)
	if dropped == 0 {
		return 0, nil
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.WriteTimeout)
	defer cancel()
	if err := l.sink.WriteAll(writeCtx, rows); err != nil {
		return 0, fmt.Errorf("write ledger: %w: %w", model.ErrSink, err)
	}

	l.logger.Info("ledger compacted", "removed", dropped, "rows", len(rows))
	return dropped, nil
}

// Totals returns cumulative counts.
func (l *Ledger) Totals() Totals {
	l.totalsMu.Lock()
	defer l.totalsMu.Unlock()
	return l.totals
}

func (l *Ledger) record(res MergeResult, err error) {
	l.totalsMu.Lock()
	defer l.totalsMu.Unlock()

	l.totals.Cycles++
	l.totals.Result.Add(res)
	l.totals.LastCycleAt = time.Now()
	if err != nil {
		l.totals.LastError = err.Error()
	} else {
		l.totals.LastError = ""
	}
}
