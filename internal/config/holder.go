package config

import (
	"fmt"
	"sync"
)

// Holder owns the live configuration and reloads it on demand.
// Components receive the Holder (or a *GathererConfig taken from it) instead of
// reading package-level state.
type Holder struct {
	path string

	mu  sync.RWMutex
	cfg *GathererConfig
}

// NewHolder loads and validates the config at path.
func NewHolder(path string) (*Holder, error) {
	cfg, err := LoadAndValidate(path)
	if err != nil {
		return nil, err
	}
	return &Holder{path: path, cfg: cfg}, nil
}

// Get returns the current configuration. Callers must not mutate it.
func (h *Holder) Get() *GathererConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Path returns the file the holder loads from.
func (h *Holder) Path() string {
	return h.path
}

// Refresh re-reads the file. On any error the previous configuration is kept.
func (h *Holder) Refresh() error {
	cfg, err := LoadAndValidate(h.path)
	if err != nil {
		return fmt.Errorf("refresh config: %w", err)
	}

	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
	return nil
}
