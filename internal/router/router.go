package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/rofex-data/internal/connection"
	"github.com/rickgao/rofex-data/internal/model"
	"github.com/rickgao/rofex-data/internal/quotes"
)

// Observer is told about every quote row that changed. It runs on the
// routing goroutine and must not block.
type Observer interface {
	QuoteUpdated(category model.Category, symbol string) error
}

// ObserverFunc is an adapter to allow ordinary functions as observers.
type ObserverFunc func(category model.Category, symbol string) error

// QuoteUpdated calls f(category, symbol).
func (f ObserverFunc) QuoteUpdated(category model.Category, symbol string) error {
	return f(category, symbol)
}

// Router classifies feed frames and applies them to the quote tables.
type Router struct {
	cfg    RouterConfig
	cache  InstrumentClassifier
	tables *quotes.Tables
	logger *slog.Logger

	// Input from the Feed
	input <-chan connection.RawMessage

	// Pushed executions, drained by the ledger scheduler
	executions *GrowableBuffer[model.Execution]

	observerMu sync.RWMutex
	observer   Observer

	// Table each seeded symbol was placed in
	seededMu sync.RWMutex
	seeded   map[string]model.Category

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	received           atomic.Int64
	processed          atomic.Int64
	errors             atomic.Int64
	validationErrors   atomic.Int64
	stateErrors        atomic.Int64
	observerErrors     atomic.Int64
	controlMessages    atomic.Int64
	futures            atomic.Int64
	executionsQueued   atomic.Int64
	executionsFiltered atomic.Int64
	lastMessageAt      atomic.Int64 // UnixNano

	updatesMu sync.Mutex
	updates   map[model.Category]int64
}

// NewRouter creates a router. input may be nil when frames are fed through
// Route directly.
func NewRouter(cfg RouterConfig, cache InstrumentClassifier, tables *quotes.Tables, input <-chan connection.RawMessage, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ExecutionBufferSize <= 0 {
		cfg.ExecutionBufferSize = DefaultRouterConfig().ExecutionBufferSize
	}

	return &Router{
		cfg:        cfg,
		cache:      cache,
		tables:     tables,
		logger:     logger,
		input:      input,
		executions: NewGrowableBuffer[model.Execution](cfg.ExecutionBufferSize),
		seeded:     make(map[string]model.Category),
		updates:    make(map[model.Category]int64, len(model.Categories)),
	}
}

// SetObserver registers the observer invoked after each applied quote.
func (r *Router) SetObserver(o Observer) {
	r.observerMu.Lock()
	r.observer = o
	r.observerMu.Unlock()
}

// Seed creates quote rows for the validated subscription symbols in the
// table each one classifies to. It returns the rows added per category.
// Quotes for a seeded symbol keep going to that table even if the
// instrument universe later classifies it differently.
func (r *Router) Seed(symbols []string) map[model.Category]int {
	byCategory := make(map[model.Category][]string)
	r.seededMu.Lock()
	for _, s := range symbols {
		c, ok := r.seeded[s]
		if !ok {
			c, _ = Classify(r.cache, s)
			r.seeded[s] = c
		}
		byCategory[c] = append(byCategory[c], s)
	}
	r.seededMu.Unlock()

	added := make(map[model.Category]int, len(byCategory))
	for c, syms := range byCategory {
		added[c] = r.tables.Table(c).Seed(syms)
	}

	r.logger.Info("quote tables seeded",
		"options", added[model.CategoryOptions],
		"repos", added[model.CategoryRepos],
		"securities", added[model.CategorySecurities],
	)
	return added
}

// Executions returns the queue of pushed executions.
func (r *Router) Executions() *GrowableBuffer[model.Execution] {
	return r.executions
}

// Start begins routing messages from the input channel.
func (r *Router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("router started", "execution_buffer", r.cfg.ExecutionBufferSize)
	return nil
}

// Stop gracefully shuts down the router and closes the execution queue.
func (r *Router) Stop(ctx context.Context) error {
	r.logger.Info("stopping router")

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
		r.logger.Info("router stopped")
	case <-ctx.Done():
		r.logger.Warn("router stop timed out")
	}

	r.executions.Close()
	return nil
}

// Stats returns current statistics.
func (r *Router) Stats() RouterStats {
	st := RouterStats{
		MessagesReceived:   r.received.Load(),
		MessagesProcessed:  r.processed.Load(),
		Errors:             r.errors.Load(),
		ValidationErrors:   r.validationErrors.Load(),
		StateErrors:        r.stateErrors.Load(),
		ObserverErrors:     r.observerErrors.Load(),
		ControlMessages:    r.controlMessages.Load(),
		Futures:            r.futures.Load(),
		ExecutionsQueued:   r.executionsQueued.Load(),
		ExecutionsFiltered: r.executionsFiltered.Load(),
		Updates:            make(map[model.Category]int64, len(model.Categories)),
		ExecutionBuffer:    r.executions.Stats(),
	}
	if ns := r.lastMessageAt.Load(); ns > 0 {
		st.LastMessageAt = time.Unix(0, ns)
	}

	r.updatesMu.Lock()
	for _, c := range model.Categories {
		st.Updates[c] = r.updates[c]
	}
	r.updatesMu.Unlock()
	return st
}

// routeLoop is the main routing goroutine.
func (r *Router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case raw, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				return
			}
			r.Route(raw)
		}
	}
}

// Route handles one frame. It never panics; failures are reported in the
// Outcome and counted.
func (r *Router) Route(raw connection.RawMessage) (out Outcome) {
	r.received.Add(1)
	r.lastMessageAt.Store(time.Now().UnixNano())

	defer func() {
		if p := recover(); p != nil {
			r.errors.Add(1)
			r.logger.Error("recovered panic while routing", "panic", p)
			out = Outcome{
				Kind:   OutcomeInternalError,
				Symbol: out.Symbol,
				Err:    fmt.Errorf("route: panic: %v", p),
			}
		}
	}()

	ev, err := Decode(raw.Data)
	if err != nil {
		r.errors.Add(1)
		r.validationErrors.Add(1)
		r.logger.Warn("invalid message", "error", err, "conn_id", raw.ConnID)
		return Outcome{Kind: OutcomeValidationError, Err: err}
	}

	switch e := ev.(type) {
	case QuoteEvent:
		out = r.applyQuote(e)
	case ExecutionEvent:
		out = r.queueExecution(e)
	case ControlEvent:
		r.controlMessages.Add(1)
		r.logger.Debug("skipping message type", "type", e.Type)
		return Outcome{Kind: OutcomeIgnored}
	}

	if out.Err == nil {
		r.processed.Add(1)
	}
	return out
}

// applyQuote merges a quote into its table and notifies the observer.
func (r *Router) applyQuote(e QuoteEvent) Outcome {
	category, future := Classify(r.cache, e.Symbol)
	r.seededMu.RLock()
	if c, ok := r.seeded[e.Symbol]; ok {
		category = c
	}
	r.seededMu.RUnlock()
	out := Outcome{Symbol: e.Symbol, Category: category, Future: future}

	if !r.tables.Table(category).Apply(e.Symbol, e.Update) {
		r.errors.Add(1)
		r.stateErrors.Add(1)
		r.logger.Warn("quote for symbol without row, dropping",
			"symbol", e.Symbol,
			"category", category,
		)
		out.Kind = OutcomeStateError
		out.Err = fmt.Errorf("%w: no %s row for %s", model.ErrState, category, e.Symbol)
		return out
	}

	if future {
		r.futures.Add(1)
	}
	r.updatesMu.Lock()
	r.updates[category]++
	r.updatesMu.Unlock()

	r.notify(category, e.Symbol)

	out.Kind = OutcomeApplied
	return out
}

// notify runs the observer, containing its errors and panics.
func (r *Router) notify(category model.Category, symbol string) {
	r.observerMu.RLock()
	obs := r.observer
	r.observerMu.RUnlock()
	if obs == nil {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			r.observerErrors.Add(1)
			r.logger.Error("observer panicked", "symbol", symbol, "panic", p)
		}
	}()

	if err := obs.QuoteUpdated(category, symbol); err != nil {
		r.observerErrors.Add(1)
		r.logger.Warn("observer failed", "symbol", symbol, "error", err)
	}
}

// queueExecution hands a pushed execution to the ledger scheduler.
func (r *Router) queueExecution(e ExecutionEvent) Outcome {
	exec := e.Execution
	out := Outcome{Symbol: exec.Symbol}

	if !acceptPushed(exec) {
		r.executionsFiltered.Add(1)
		r.logger.Debug("order report not recorded",
			"order_id", exec.OrderID,
			"status", exec.Status,
		)
		out.Kind = OutcomeFiltered
		return out
	}

	if !r.executions.Send(exec) {
		r.errors.Add(1)
		out.Kind = OutcomeInternalError
		out.Err = fmt.Errorf("execution queue closed")
		return out
	}

	r.executionsQueued.Add(1)
	out.Kind = OutcomeQueued
	return out
}

// acceptPushed keeps order reports that carry fills: filled and partially
// filled orders, and cancellations of partially filled orders.
func acceptPushed(e model.Execution) bool {
	switch strings.ToUpper(strings.TrimSpace(e.Status)) {
	case model.StatusFilled, model.StatusPartiallyFilled:
		return true
	case model.StatusCanceled:
		return e.FilledQty.IsPositive()
	default:
		return false
	}
}
