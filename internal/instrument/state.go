package instrument

import (
	"sort"
	"sync"
	"time"

	"github.com/rickgao/rofex-data/internal/model"
)

// generation is one immutable view of the universe. Lookups are built in one
// pass and the whole generation is swapped at once.
type generation struct {
	raw []model.Instrument

	bySymbol map[string]model.Instrument
	all      map[string]struct{}
	options  map[string]struct{}
}

func newGeneration(instruments []model.Instrument) *generation {
	g := &generation{
		raw:      instruments,
		bySymbol: make(map[string]model.Instrument, len(instruments)),
		all:      make(map[string]struct{}, len(instruments)),
		options:  make(map[string]struct{}),
	}
	for _, inst := range instruments {
		g.bySymbol[inst.Symbol] = inst
		g.all[inst.Symbol] = struct{}{}
		if inst.IsOption() {
			g.options[inst.Symbol] = struct{}{}
		}
	}
	return g
}

// built reports whether lookups exist for this generation.
func (g *generation) built() bool {
	return g.bySymbol != nil
}

func (g *generation) empty() bool {
	return g == nil || len(g.raw) == 0
}

// isOption answers from the option set, scanning raw only when lookups were
// never built.
func (g *generation) isOption(symbol string) bool {
	if g == nil {
		return false
	}
	if g.built() {
		_, ok := g.options[symbol]
		return ok
	}
	for _, inst := range g.raw {
		if inst.Symbol == symbol {
			return inst.IsOption()
		}
	}
	return false
}

func (g *generation) contains(symbol string) bool {
	if g == nil {
		return false
	}
	if g.built() {
		_, ok := g.all[symbol]
		return ok
	}
	for _, inst := range g.raw {
		if inst.Symbol == symbol {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// cacheState holds the current generation and refresh bookkeeping.
type cacheState struct {
	mu sync.RWMutex

	gen *generation

	// Timestamp of the data in gen (origin fetch or snapshot time).
	loadedAt time.Time

	tier      Tier
	degraded  bool
	lastError string
}

func newState() *cacheState {
	return &cacheState{tier: TierEmpty}
}

// swapLocked installs a new generation (caller must hold write lock).
func (s *cacheState) swapLocked(gen *generation, loadedAt time.Time, tier Tier) {
	s.gen = gen
	s.loadedAt = loadedAt
	s.tier = tier
}

func (s *cacheState) current() *generation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}
