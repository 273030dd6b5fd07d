package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/rofex-data/internal/ledger"
	"github.com/rickgao/rofex-data/internal/model"
)

// ExecutionSource fetches filled executions for an account.
// *api.Client implements it.
type ExecutionSource interface {
	FetchFilledExecutions(ctx context.Context, account string) ([]model.Execution, error)
}

// PushSource is the queue of executions pushed over the stream.
// *router.GrowableBuffer[model.Execution] implements it.
type PushSource interface {
	Ready() <-chan struct{}
	DrainTo(max int) []model.Execution
}

// Reconciler merges a batch into the ledger. *ledger.Ledger implements it.
type Reconciler interface {
	Reconcile(ctx context.Context, batch []model.Execution) (ledger.MergeResult, error)
}

// Config holds scheduler configuration.
type Config struct {
	Interval     time.Duration // Cycle interval (default: 20s)
	BatchSize    int           // Records per Reconcile call (default: 500)
	Account      string        // Account for the REST fetch
	FetchTimeout time.Duration // REST fetch timeout (default: 30s)
	DisableREST  bool          // Only reconcile pushed executions
	MaxPending   int           // Records kept for retry after a failed cycle (default: 10 * BatchSize)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     20 * time.Second,
		BatchSize:    500,
		FetchTimeout: 30 * time.Second,
	}
}

// CycleResult summarizes one sync cycle.
type CycleResult struct {
	ID       string             `json:"id"`
	Pushed   int                `json:"pushed"`
	Fetched  int                `json:"fetched"`
	Chunks   int                `json:"chunks"`
	Result   ledger.MergeResult `json:"result"`
	Duration time.Duration      `json:"duration"`
}

// Stats are cumulative scheduler counts.
type Stats struct {
	Cycles       int64              `json:"cycles"`
	Failures     int64              `json:"failures"`
	FetchErrors  int64              `json:"fetch_errors"`
	Pushed       int64              `json:"pushed"`
	Fetched      int64              `json:"fetched"`
	Pending      int64              `json:"pending"`
	DroppedRetry int64              `json:"dropped_retry"`
	Result       ledger.MergeResult `json:"result"`
	LastCycle    CycleResult        `json:"last_cycle"`
	LastCycleAt  time.Time          `json:"last_cycle_at"`
}

// Scheduler periodically reconciles executions into the ledger.
type Scheduler struct {
	cfg    Config
	source ExecutionSource
	pushed PushSource
	ledger Reconciler
	logger *slog.Logger

	trigger chan struct{}
	cycleMu sync.Mutex // one cycle at a time

	// Records from a failed cycle, retried first next time
	pending []model.Execution

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cycles       atomic.Int64
	failures     atomic.Int64
	fetchErrors  atomic.Int64
	pushedTotal  atomic.Int64
	fetchedTotal atomic.Int64
	droppedRetry atomic.Int64
	pendingCount atomic.Int64

	statsMu     sync.Mutex
	result      ledger.MergeResult
	lastCycle   CycleResult
	lastCycleAt time.Time
}

// New creates a scheduler. source may be nil when REST sync is disabled and
// pushed may be nil when the stream carries no order reports.
func New(cfg Config, source ExecutionSource, pushed PushSource, rec Reconciler, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 10 * cfg.BatchSize
	}
	if source == nil {
		cfg.DisableREST = true
	}

	return &Scheduler{
		cfg:     cfg,
		source:  source,
		pushed:  pushed,
		ledger:  rec,
		logger:  logger,
		trigger: make(chan struct{}, 1),
	}
}

// Start runs a cycle immediately and then on every interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("execution sync started",
		"interval", s.cfg.Interval,
		"batch_size", s.cfg.BatchSize,
		"rest", !s.cfg.DisableREST,
	)
	return nil
}

// Stop waits for the running cycle to finish, then reconciles whatever was
// pushed or left pending since. The final pass skips the REST fetch.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	res, err := s.cycle(ctx, false, true)
	if err != nil {
		s.logger.Warn("final execution sync failed", "error", err)
	}
	s.logger.Info("execution sync stopped", "final_pushed", res.Pushed, "final_chunks", res.Chunks)
	return err
}

// Trigger requests an early cycle. Requests made while a cycle is running
// coalesce into one follow-up cycle.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stats returns cumulative counts.
func (s *Scheduler) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	return Stats{
		Cycles:       s.cycles.Load(),
		Failures:     s.failures.Load(),
		FetchErrors:  s.fetchErrors.Load(),
		Pushed:       s.pushedTotal.Load(),
		Fetched:      s.fetchedTotal.Load(),
		Pending:      s.pendingCount.Load(),
		DroppedRetry: s.droppedRetry.Load(),
		Result:       s.result,
		LastCycle:    s.lastCycle,
		LastCycleAt:  s.lastCycleAt,
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var ready <-chan struct{}
	if s.pushed != nil {
		ready = s.pushed.Ready()
	}

	s.runCycle()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runCycle()
		case <-s.trigger:
			s.runCycle()
		case <-ready:
			s.runCycle()
		}
	}
}

func (s *Scheduler) runCycle() {
	if _, err := s.RunCycle(s.ctx); err != nil {
		s.logger.Warn("execution sync cycle failed", "error", err)
	}
}

// RunCycle performs one sync cycle. A ledger failure keeps the unsaved
// records for the next cycle; a REST failure still reconciles what was
// pushed.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleResult, error) {
	return s.cycle(ctx, !s.cfg.DisableREST, false)
}

func (s *Scheduler) cycle(ctx context.Context, fetch, skipEmpty bool) (CycleResult, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := time.Now()
	res := CycleResult{ID: uuid.NewString()}
	logger := s.logger.With("cycle_id", res.ID)

	batch := s.pending
	s.pending = nil
	s.pendingCount.Store(0)

	if s.pushed != nil {
		pushed := s.pushed.DrainTo(0)
		res.Pushed = len(pushed)
		batch = append(batch, pushed...)
	}

	if skipEmpty && len(batch) == 0 {
		return res, nil
	}

	var fetchErr error
	if fetch {
		fetched, err := s.fetch(ctx)
		if err != nil {
			s.fetchErrors.Add(1)
			fetchErr = fmt.Errorf("fetch filled orders: %w", err)
			logger.Warn("filled orders fetch failed", "error", err)
		}
		res.Fetched = len(fetched)
		batch = append(batch, fetched...)
	}

	s.pushedTotal.Add(int64(res.Pushed))
	s.fetchedTotal.Add(int64(res.Fetched))

	batch = ledger.CollapseBatch(batch)

	var cycleErr error
	for i := 0; i < len(batch); i += s.cfg.BatchSize {
		end := min(i+s.cfg.BatchSize, len(batch))
		chunk := batch[i:end]

		r, err := s.ledger.Reconcile(ctx, chunk)
		res.Chunks++
		res.Result.Add(r)
		if err != nil {
			cycleErr = fmt.Errorf("reconcile chunk %d: %w", res.Chunks, err)
			s.keepPending(batch[i:], logger)
			break
		}
	}

	res.Duration = time.Since(start)
	s.cycles.Add(1)
	if cycleErr != nil || fetchErr != nil {
		s.failures.Add(1)
	}

	s.statsMu.Lock()
	s.result.Add(res.Result)
	s.lastCycle = res
	s.lastCycleAt = time.Now()
	s.statsMu.Unlock()

	logger.Info("execution sync cycle complete",
		"pushed", res.Pushed,
		"fetched", res.Fetched,
		"chunks", res.Chunks,
		"inserted", res.Result.Inserted,
		"updated", res.Result.Updated,
		"unchanged", res.Result.Unchanged,
		"rejected", res.Result.Rejected,
		"duration", res.Duration,
	)

	if cycleErr != nil {
		return res, cycleErr
	}
	return res, fetchErr
}

func (s *Scheduler) fetch(ctx context.Context) ([]model.Execution, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	return s.source.FetchFilledExecutions(ctx, s.cfg.Account)
}

// keepPending stores records for retry, dropping the oldest past MaxPending.
func (s *Scheduler) keepPending(rows []model.Execution, logger *slog.Logger) {
	if over := len(rows) - s.cfg.MaxPending; over > 0 {
		s.droppedRetry.Add(int64(over))
		logger.Warn("retry queue full, dropping oldest executions", "dropped", over)
		rows = rows[over:]
	}
	s.pending = append([]model.Execution(nil), rows...)
	s.pendingCount.Store(int64(len(s.pending)))
}
