package quotes

import (
	"sort"
	"sync"
	"time"

	"github.com/rickgao/rofex-data/internal/model"
)

// Update is a partial quote. Nil fields leave the row untouched.
type Update struct {
	Bid            *float64
	BidSize        *float64
	Ask            *float64
	AskSize        *float64
	Last           *float64
	Open           *float64
	High           *float64
	Low            *float64
	PreviousClose  *float64
	Turnover       *float64
	Volume         *float64
	OperationCount *float64
}

// Empty reports whether the update carries no fields.
func (u Update) Empty() bool {
	return u.Bid == nil && u.BidSize == nil && u.Ask == nil && u.AskSize == nil &&
		u.Last == nil && u.Open == nil && u.High == nil && u.Low == nil &&
		u.PreviousClose == nil && u.Turnover == nil && u.Volume == nil &&
		u.OperationCount == nil
}

// applyTo merges the update into q.
func (u Update) applyTo(q *model.Quote) {
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&q.Bid, u.Bid)
	set(&q.BidSize, u.BidSize)
	set(&q.Ask, u.Ask)
	set(&q.AskSize, u.AskSize)
	set(&q.Last, u.Last)
	set(&q.Open, u.Open)
	set(&q.High, u.High)
	set(&q.Low, u.Low)
	set(&q.PreviousClose, u.PreviousClose)
	set(&q.Turnover, u.Turnover)
	set(&q.Volume, u.Volume)
	set(&q.OperationCount, u.OperationCount)
}

// Change returns last/previousClose - 1, or 0 when either is zero.
func Change(last, previousClose float64) float64 {
	if last == 0 || previousClose == 0 {
		return 0
	}
	return last/previousClose - 1
}

// Table is the quote table of one category.
type Table struct {
	category model.Category
	now      func() time.Time

	mu    sync.RWMutex
	rows  map[string]*model.Quote
	dirty map[string]struct{}
}

// NewTable creates an empty table.
func NewTable(category model.Category) *Table {
	return &Table{
		category: category,
		now:      time.Now,
		rows:     make(map[string]*model.Quote),
		dirty:    make(map[string]struct{}),
	}
}

// Category returns the table's category.
func (t *Table) Category() model.Category {
	return t.category
}

// Seed creates empty rows for symbols not yet present and returns how many
// were added.
func (t *Table) Seed(symbols []string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var added int
	for _, s := range symbols {
		if _, ok := t.rows[s]; ok {
			continue
		}
		t.rows[s] = &model.Quote{Symbol: s}
		added++
	}
	return added
}

// Apply merges u into the row for symbol. It returns false when no row
// exists; rows are never created here.
func (t *Table) Apply(symbol string, u Update) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, ok := t.rows[symbol]
	if !ok {
		return false
	}
	u.applyTo(q)
	q.Change = Change(q.Last, q.PreviousClose)
	q.UpdatedAt = t.now()
	t.dirty[symbol] = struct{}{}
	return true
}

// Has reports whether symbol has a row.
func (t *Table) Has(symbol string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.rows[symbol]
	return ok
}

// Get returns a copy of the row for symbol.
func (t *Table) Get(symbol string) (model.Quote, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	q, ok := t.rows[symbol]
	if !ok {
		return model.Quote{}, false
	}
	return *q, true
}

// Len returns the number of rows.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Snapshot returns copies of all rows sorted by symbol.
func (t *Table) Snapshot() []model.Quote {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.Quote, 0, len(t.rows))
	for _, q := range t.rows {
		out = append(out, *q)
	}
	sortQuotes(out)
	return out
}

// Dirty returns copies of rows changed since the last call and clears the
// dirty set.
func (t *Table) Dirty() []model.Quote {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.dirty) == 0 {
		return nil
	}
	out := make([]model.Quote, 0, len(t.dirty))
	for s := range t.dirty {
		out = append(out, *t.rows[s])
	}
	t.dirty = make(map[string]struct{})
	sortQuotes(out)
	return out
}

func sortQuotes(qs []model.Quote) {
	sort.Slice(qs, func(i, j int) bool { return qs[i].Symbol < qs[j].Symbol })
}
