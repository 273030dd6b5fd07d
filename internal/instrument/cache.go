package instrument

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/rofex-data/internal/model"
)

// Tier names the layer that served the most recent refresh.
type Tier string

const (
	TierMemory   Tier = "memory"
	TierSnapshot Tier = "snapshot"
	TierOrigin   Tier = "origin"
	TierEmpty    Tier = "empty"
)

// Class is the cache's view of a symbol.
type Class int

const (
	ClassOther Class = iota
	ClassOption
)

func (c Class) String() string {
	if c == ClassOption {
		return "option"
	}
	return "other"
}

// Origin fetches the full instrument universe.
type Origin interface {
	FetchInstruments(ctx context.Context) ([]model.Instrument, error)
}

// Config holds instrument cache configuration.
type Config struct {
	TTL          time.Duration
	FetchTimeout time.Duration
	InstanceID   string // Recorded in snapshot metadata
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TTL:          30 * time.Minute,
		FetchTimeout: 30 * time.Second,
	}
}

// Stats describes the cache for health endpoints and logs.
type Stats struct {
	Total       int           `json:"total"`
	Options     int           `json:"options"`
	Tier        Tier          `json:"tier"`
	LoadedAt    time.Time     `json:"loaded_at"`
	SnapshotAge time.Duration `json:"snapshot_age"`
	TTL         time.Duration `json:"ttl"`
	Valid       bool          `json:"valid"`
	Degraded    bool          `json:"degraded"`
	Permissive  bool          `json:"permissive"`
	LastError   string        `json:"last_error,omitempty"`

	OriginFetches     int64 `json:"origin_fetches"`
	OriginFailures    int64 `json:"origin_failures"`
	PermissiveLookups int64 `json:"permissive_lookups"`
}

// Cache is a tiered cache of the instrument universe.
type Cache struct {
	cfg    Config
	origin Origin
	store  SnapshotStore // nil disables the snapshot tier
	logger *slog.Logger
	now    func() time.Time

	state *cacheState
	group singleflight.Group

	originFetches     atomic.Int64
	originFailures    atomic.Int64
	permissiveLookups atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCache creates an instrument cache. store may be nil.
func NewCache(cfg Config, origin Origin, store SnapshotStore, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}

	return &Cache{
		cfg:    cfg,
		origin: origin,
		store:  store,
		logger: logger,
		now:    time.Now,
		state:  newState(),
	}
}

// Start loads the universe and refreshes it in the background every TTL.
func (c *Cache) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	// Initial load (blocking).
	if err := c.Refresh(c.ctx, false); err != nil {
		c.cancel()
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.refreshLoop(c.ctx)
	}()

	st := c.Stats()
	c.logger.Info("instrument cache started",
		"total", st.Total,
		"options", st.Options,
		"tier", st.Tier,
	)
	return nil
}

// Stop gracefully shuts down.
func (c *Cache) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("instrument cache stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Classify returns ClassOption for symbols the universe marks as options.
func (c *Cache) Classify(symbol string) Class {
	if c.state.current().isOption(symbol) {
		return ClassOption
	}
	return ClassOther
}

// IsKnown reports whether symbol is in the universe. With an empty universe
// every symbol is accepted and the lookup is counted as permissive.
func (c *Cache) IsKnown(symbol string) bool {
	gen := c.state.current()
	if gen.empty() {
		c.permissiveLookups.Add(1)
		return true
	}
	return gen.contains(symbol)
}

// ValidateSymbols splits symbols into known and unknown. With an empty
// universe all symbols are returned as valid.
func (c *Cache) ValidateSymbols(symbols []string) (valid, invalid []string) {
	gen := c.state.current()
	if gen.empty() {
		c.permissiveLookups.Add(int64(len(symbols)))
		c.logger.Warn("instrument universe empty, accepting all symbols",
			"symbols", len(symbols),
		)
		return append([]string(nil), symbols...), nil
	}

	for _, s := range symbols {
		if gen.contains(s) {
			valid = append(valid, s)
		} else {
			invalid = append(invalid, s)
		}
	}
	if len(invalid) > 0 {
		c.logger.Warn("unknown symbols dropped from subscription",
			"invalid", invalid,
			"valid", len(valid),
		)
	}
	return valid, invalid
}

// Get returns the instrument record for symbol.
func (c *Cache) Get(symbol string) (model.Instrument, bool) {
	gen := c.state.current()
	if gen == nil || !gen.built() {
		return model.Instrument{}, false
	}
	inst, ok := gen.bySymbol[symbol]
	return inst, ok
}

// Symbols returns every known symbol, sorted.
func (c *Cache) Symbols() []string {
	gen := c.state.current()
	if gen == nil || !gen.built() {
		return nil
	}
	return sortedKeys(gen.all)
}

// OptionSymbols returns every option symbol, sorted.
func (c *Cache) OptionSymbols() []string {
	gen := c.state.current()
	if gen == nil || !gen.built() {
		return nil
	}
	return sortedKeys(gen.options)
}

// Stats returns a point-in-time view of the cache.
func (c *Cache) Stats() Stats {
	now := c.now()

	c.state.mu.RLock()
	defer c.state.mu.RUnlock()

	st := Stats{
		Tier:              c.state.tier,
		LoadedAt:          c.state.loadedAt,
		TTL:               c.cfg.TTL,
		Degraded:          c.state.degraded,
		Permissive:        c.state.gen.empty(),
		LastError:         c.state.lastError,
		OriginFetches:     c.originFetches.Load(),
		OriginFailures:    c.originFailures.Load(),
		PermissiveLookups: c.permissiveLookups.Load(),
	}
	if gen := c.state.gen; gen != nil {
		st.Total = len(gen.raw)
		for _, inst := range gen.raw {
			if inst.IsOption() {
				st.Options++
			}
		}
	}
	if !c.state.loadedAt.IsZero() {
		st.SnapshotAge = now.Sub(c.state.loadedAt)
		st.Valid = st.SnapshotAge <= c.cfg.TTL
	}
	return st
}

// Clear drops the in-memory generation and deletes the snapshot.
func (c *Cache) Clear(ctx context.Context) error {
	c.state.mu.Lock()
	c.state.swapLocked(nil, time.Time{}, TierEmpty)
	c.state.degraded = false
	c.state.lastError = ""
	c.state.mu.Unlock()

	if c.store != nil {
		if err := c.store.Delete(ctx); err != nil {
			return err
		}
	}
	c.logger.Info("instrument cache cleared")
	return nil
}
