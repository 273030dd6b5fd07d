package instrument

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rickgao/rofex-data/internal/model"
)

// Refresh brings the universe up to date. Unless force is set, a generation
// or snapshot still within the TTL is kept. Concurrent callers share one
// refresh. Origin failures degrade to the last snapshot and are not returned;
// the error is non-nil only when ctx is done.
func (c *Cache) Refresh(ctx context.Context, force bool) error {
	key := "refresh"
	if force {
		key = "force"
	}

	_, err, shared := c.group.Do(key, func() (any, error) {
		return nil, c.refresh(ctx, force)
	})
	if shared {
		c.logger.Debug("joined in-flight instrument refresh", "force", force)
	}
	return err
}

func (c *Cache) refresh(ctx context.Context, force bool) error {
	now := c.now()

	var snap *Snapshot
	if !force {
		if c.memoryValid(now) {
			c.state.mu.Lock()
			c.state.tier = TierMemory
			c.state.mu.Unlock()
			return nil
		}

		snap = c.loadSnapshot(ctx)
		if snap.Valid(now, c.cfg.TTL) {
			c.adoptSnapshot(snap, false)
			c.logger.Info("instrument snapshot loaded",
				"count", len(snap.Instruments),
				"age", now.Sub(snap.Timestamp),
			)
			return nil
		}
	}

	start := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	c.originFetches.Add(1)
	instruments, err := c.origin.FetchInstruments(fetchCtx)
	if err != nil {
		c.originFailures.Add(1)
		c.degrade(ctx, snap, fmt.Errorf("fetch instruments: %w: %w", model.ErrTransport, err))
		return ctx.Err()
	}

	gen := newGeneration(instruments)
	fetchedAt := c.now()

	c.state.mu.Lock()
	c.state.swapLocked(gen, fetchedAt, TierOrigin)
	c.state.degraded = false
	c.state.lastError = ""
	c.state.mu.Unlock()

	c.logger.Info("instrument universe refreshed",
		"total", len(gen.raw),
		"options", len(gen.options),
		"forced", force,
		"duration", time.Since(start),
	)
	if gen.empty() {
		c.logger.Warn("origin returned no instruments, symbol checks are permissive")
	}

	c.saveSnapshot(ctx, instruments, fetchedAt)
	return nil
}

// memoryValid reports whether the current generation is within the TTL.
func (c *Cache) memoryValid(now time.Time) bool {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()

	if c.state.gen == nil || c.state.loadedAt.IsZero() {
		return false
	}
	return now.Sub(c.state.loadedAt) <= c.cfg.TTL
}

// degrade keeps serving the newest data available after an origin failure.
// snap is the snapshot already read by the caller, if any.
func (c *Cache) degrade(ctx context.Context, snap *Snapshot, cause error) {
	if c.state.current().empty() {
		if snap == nil {
			snap = c.loadSnapshot(ctx)
		}
		if snap != nil && len(snap.Instruments) > 0 {
			c.adoptSnapshot(snap, true)
		}
	}

	c.state.mu.Lock()
	c.state.degraded = true
	c.state.lastError = cause.Error()
	empty := c.state.gen.empty()
	if empty {
		c.state.tier = TierEmpty
	}
	loadedAt := c.state.loadedAt
	c.state.mu.Unlock()

	if empty {
		c.logger.Warn("no instrument data available, symbol checks are permissive",
			"error", cause,
		)
		return
	}
	c.logger.Warn("origin fetch failed, serving stale instruments",
		"error", cause,
		"age", c.now().Sub(loadedAt),
	)
}

func (c *Cache) adoptSnapshot(snap *Snapshot, degraded bool) {
	gen := newGeneration(snap.Instruments)

	c.state.mu.Lock()
	c.state.swapLocked(gen, snap.Timestamp, TierSnapshot)
	c.state.degraded = degraded
	c.state.mu.Unlock()
}

// loadSnapshot reads the snapshot tier. Read errors are logged and treated
// as a missing snapshot.
func (c *Cache) loadSnapshot(ctx context.Context) *Snapshot {
	if c.store == nil {
		return nil
	}
	snap, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("failed to load instrument snapshot", "error", err)
		return nil
	}
	return snap
}

func (c *Cache) saveSnapshot(ctx context.Context, instruments []model.Instrument, at time.Time) {
	if c.store == nil {
		return
	}

	var options int
	for _, inst := range instruments {
		if inst.IsOption() {
			options++
		}
	}
	snap := &Snapshot{
		Timestamp:   at,
		TTLMinutes:  int(c.cfg.TTL / time.Minute),
		Instruments: instruments,
		Count:       len(instruments),
		Metadata: map[string]string{
			"source":  string(TierOrigin),
			"options": strconv.Itoa(options),
		},
	}
	if c.cfg.InstanceID != "" {
		snap.Metadata["instance"] = c.cfg.InstanceID
	}

	if err := c.store.Save(ctx, snap); err != nil {
		c.logger.Warn("failed to save instrument snapshot", "error", err)
	}
}

// refreshLoop re-checks the universe every TTL.
func (c *Cache) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.TTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx, false); err != nil {
				return
			}
		}
	}
}
