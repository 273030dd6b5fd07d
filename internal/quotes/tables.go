package quotes

import "github.com/rickgao/rofex-data/internal/model"

// Row is a quote tagged with the table it belongs to.
type Row struct {
	Category model.Category
	model.Quote
}

// Tables groups one Table per category.
type Tables struct {
	tables map[model.Category]*Table
}

// NewTables creates a table for every category.
func NewTables() *Tables {
	ts := &Tables{tables: make(map[model.Category]*Table, len(model.Categories))}
	for _, c := range model.Categories {
		ts.tables[c] = NewTable(c)
	}
	return ts
}

// Table returns the table for category, or nil for an unknown category.
func (ts *Tables) Table(category model.Category) *Table {
	return ts.tables[category]
}

// Lens returns the row count per category.
func (ts *Tables) Lens() map[model.Category]int {
	out := make(map[model.Category]int, len(ts.tables))
	for c, t := range ts.tables {
		out[c] = t.Len()
	}
	return out
}

// DrainDirty collects dirty rows from every table in category order.
func (ts *Tables) DrainDirty() []Row {
	var out []Row
	for _, c := range model.Categories {
		for _, q := range ts.tables[c].Dirty() {
			out = append(out, Row{Category: c, Quote: q})
		}
	}
	return out
}
