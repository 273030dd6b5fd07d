package quotes

import (
	"math"
	"testing"
	"time"

	"github.com/rickgao/rofex-data/internal/model"
)

func f(v float64) *float64 { return &v }

func fixedTable(c model.Category) *Table {
	t := NewTable(c)
	t.now = func() time.Time { return time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC) }
	return t
}

func TestTable_SeedAndApply(t *testing.T) {
	tbl := fixedTable(model.CategorySecurities)

	if added := tbl.Seed([]string{"GGAL", "YPFD", "GGAL"}); added != 2 {
		t.Errorf("Seed added = %d, want 2", added)
	}
	if tbl.Seed([]string{"GGAL"}) != 0 {
		t.Error("re-seeding an existing symbol should add nothing")
	}

	ok := tbl.Apply("GGAL", Update{Bid: f(100), BidSize: f(5), Last: f(110), PreviousClose: f(100)})
	if !ok {
		t.Fatal("Apply on seeded symbol returned false")
	}

	q, _ := tbl.Get("GGAL")
	if q.Bid != 100 || q.BidSize != 5 || q.Last != 110 {
		t.Errorf("row = %+v", q)
	}
	if math.Abs(q.Change-0.1) > 1e-9 {
		t.Errorf("Change = %v, want 0.1", q.Change)
	}
	if q.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestTable_ApplyUnknownSymbol(t *testing.T) {
	tbl := fixedTable(model.CategoryOptions)

	if tbl.Apply("NOPE", Update{Bid: f(1)}) {
		t.Error("Apply on unknown symbol should return false")
	}
	if tbl.Len() != 0 {
		t.Errorf("Len = %d, want 0 (no dynamic rows)", tbl.Len())
	}
}

func TestTable_PartialMerge(t *testing.T) {
	tbl := fixedTable(model.CategorySecurities)
	tbl.Seed([]string{"GGAL"})

	tbl.Apply("GGAL", Update{Bid: f(100), Ask: f(101), Volume: f(5000), PreviousClose: f(90)})
	tbl.Apply("GGAL", Update{Ask: f(102), Last: f(99)})

	q, _ := tbl.Get("GGAL")
	if q.Bid != 100 {
		t.Errorf("Bid = %v, want 100 (untouched)", q.Bid)
	}
	if q.Ask != 102 {
		t.Errorf("Ask = %v, want 102", q.Ask)
	}
	if q.Volume != 5000 {
		t.Errorf("Volume = %v, want 5000 (untouched)", q.Volume)
	}
	if math.Abs(q.Change-0.1) > 1e-9 {
		t.Errorf("Change = %v, want 0.1 from merged last/previous_close", q.Change)
	}
}

func TestChange(t *testing.T) {
	tests := []struct {
		last, prev, want float64
	}{
		{110, 100, 0.1},
		{90, 100, -0.1},
		{0, 100, 0},
		{100, 0, 0},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := Change(tt.last, tt.prev); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Change(%v, %v) = %v, want %v", tt.last, tt.prev, got, tt.want)
		}
	}
}

func TestTable_DirtyDrain(t *testing.T) {
	tbl := fixedTable(model.CategoryRepos)
	tbl.Seed([]string{"B", "A", "C"})

	tbl.Apply("B", Update{Last: f(1)})
	tbl.Apply("A", Update{Last: f(2)})
	tbl.Apply("B", Update{Last: f(3)})

	dirty := tbl.Dirty()
	if len(dirty) != 2 {
		t.Fatalf("len(Dirty) = %d, want 2", len(dirty))
	}
	if dirty[0].Symbol != "A" || dirty[1].Symbol != "B" || dirty[1].Last != 3 {
		t.Errorf("Dirty = %+v", dirty)
	}
	if got := tbl.Dirty(); got != nil {
		t.Errorf("second Dirty = %v, want nil", got)
	}

	// Returned rows are copies.
	dirty[0].Last = 999
	if q, _ := tbl.Get("A"); q.Last != 2 {
		t.Errorf("table row mutated through drained copy: Last = %v", q.Last)
	}
}

func TestTable_Snapshot(t *testing.T) {
	tbl := fixedTable(model.CategorySecurities)
	tbl.Seed([]string{"YPFD", "GGAL"})

	snap := tbl.Snapshot()
	if len(snap) != 2 || snap[0].Symbol != "GGAL" {
		t.Errorf("Snapshot = %+v", snap)
	}
}

func TestUpdate_Empty(t *testing.T) {
	if !(Update{}).Empty() {
		t.Error("zero Update should be empty")
	}
	if (Update{Turnover: f(0)}).Empty() {
		t.Error("Update with Turnover should not be empty")
	}
}

func TestTables_DrainDirty(t *testing.T) {
	ts := NewTables()
	ts.Table(model.CategoryOptions).Seed([]string{"GFGC3000FE"})
	ts.Table(model.CategorySecurities).Seed([]string{"GGAL", "YPFD"})

	ts.Table(model.CategorySecurities).Apply("GGAL", Update{Bid: f(1)})
	ts.Table(model.CategoryOptions).Apply("GFGC3000FE", Update{Bid: f(2)})

	rows := ts.DrainDirty()
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].Category != model.CategoryOptions || rows[1].Category != model.CategorySecurities {
		t.Errorf("rows not in category order: %+v", rows)
	}

	lens := ts.Lens()
	if lens[model.CategorySecurities] != 2 || lens[model.CategoryRepos] != 0 {
		t.Errorf("Lens = %v", lens)
	}
	if ts.Table("unknown") != nil {
		t.Error("Table(unknown) should be nil")
	}
}
