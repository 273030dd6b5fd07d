package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/rickgao/rofex-data/internal/model"
)

// genExecution draws valid records over a small key space so batches
// collide with the table and with themselves.
func genExecution() *rapid.Generator[model.Execution] {
	return rapid.Custom(func(t *rapid.T) model.Execution {
		qty := rapid.Int64Range(1, 50).Draw(t, "qty")
		return model.Execution{
			ExecutionID: rapid.SampledFrom([]string{"E1", "E2", "E3", "E4"}).Draw(t, "exec_id"),
			OrderID:     rapid.SampledFrom([]string{"O1", "O2"}).Draw(t, "order_id"),
			Account:     "A1",
			Symbol:      "MERV - XMEV - GGAL - 48hs",
			Side:        rapid.SampledFrom([]string{model.SideBuy, model.SideSell}).Draw(t, "side"),
			Quantity:    decimal.NewFromInt(qty),
			Price:       decimal.NewFromInt(rapid.Int64Range(1, 1000).Draw(t, "price")),
			FilledQty:   decimal.NewFromInt(rapid.Int64Range(0, qty).Draw(t, "filled")),
			Status: rapid.SampledFrom([]string{
				model.StatusPartiallyFilled, model.StatusFilled, model.StatusCanceled,
			}).Draw(t, "status"),
			Source:    model.SourceREST,
			EventTime: t0.Add(time.Duration(rapid.IntRange(0, 10).Draw(t, "minute")) * time.Minute),
		}
	})
}

func sameRow(a, b model.Execution) bool {
	return a.Key() == b.Key() &&
		a.FilledQty.Equal(b.FilledQty) &&
		a.Price.Equal(b.Price) &&
		a.Status == b.Status &&
		a.EventTime.Equal(b.EventTime) &&
		sameAudit(a, b)
}

func sameTable(t *rapid.T, got, want []model.Execution) {
	if len(got) != len(want) {
		t.Fatalf("table has %d rows, want %d", len(got), len(want))
	}
	for i := range want {
		if !sameRow(got[i], want[i]) {
			t.Fatalf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestProperty_Idempotence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sink := &memSink{}
		l := New(DefaultConfig(), sink, nil)
		ctx := context.Background()

		seed := rapid.SliceOfN(genExecution(), 0, 8).Draw(t, "seed")
		batch := rapid.SliceOfN(genExecution(), 1, 8).Draw(t, "batch")

		if _, err := l.Reconcile(ctx, seed); err != nil {
			t.Fatalf("seed Reconcile failed: %v", err)
		}
		if _, err := l.Reconcile(ctx, batch); err != nil {
			t.Fatalf("first Reconcile failed: %v", err)
		}
		after, _ := sink.ReadAll(ctx)

		res, err := l.Reconcile(ctx, batch)
		if err != nil {
			t.Fatalf("second Reconcile failed: %v", err)
		}
		again, _ := sink.ReadAll(ctx)

		sameTable(t, again, after)
		if res.Inserted != 0 || res.AuditChanged != 0 {
			t.Fatalf("second application = %+v, want no inserts or audit changes", res)
		}
	})
}

func TestProperty_Passthrough(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		existing, _ := DedupExisting(rapid.SliceOfN(genExecution(), 0, 10).Draw(t, "existing"))
		incoming := DedupIncoming(rapid.SliceOfN(genExecution(), 0, 10).Draw(t, "incoming"))

		inBatch := make(map[model.ExecutionKey]bool, len(incoming))
		for _, e := range incoming {
			inBatch[e.Key()] = true
		}

		rows, res := Merge(existing, incoming)

		after := make(map[model.ExecutionKey]model.Execution, len(rows))
		for _, r := range rows {
			after[r.Key()] = r
		}
		passed := 0
		for _, old := range existing {
			if inBatch[old.Key()] {
				continue
			}
			passed++
			if !sameRow(after[old.Key()], old) {
				t.Fatalf("row %v changed: %+v -> %+v", old.Key(), old, after[old.Key()])
			}
		}
		if res.Unchanged != passed {
			t.Fatalf("Unchanged = %d, want %d", res.Unchanged, passed)
		}
		if res.Inserted+res.Updated != len(incoming) {
			t.Fatalf("Inserted+Updated = %d, want %d", res.Inserted+res.Updated, len(incoming))
		}
	})
}

func TestProperty_Supersession(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		old := genExecution().Draw(t, "old")
		old.Status = model.StatusPartiallyFilled
		old.UpdateCount = rapid.IntRange(0, 5).Draw(t, "update_count")

		in := old
		in.FilledQty = old.FilledQty.Add(decimal.NewFromInt(rapid.Int64Range(1, 10).Draw(t, "delta")))
		in.EventTime = old.EventTime.Add(time.Second)

		rows, _ := Merge([]model.Execution{old}, []model.Execution{in})
		got := rows[0]

		if got.PreviousFilledQty == nil || !got.PreviousFilledQty.Equal(old.FilledQty) {
			t.Fatalf("PreviousFilledQty = %v, want %s", got.PreviousFilledQty, old.FilledQty)
		}
		if !got.Superseded || got.UpdateCount != old.UpdateCount+1 {
			t.Fatalf("Superseded/UpdateCount = %v/%d, want true/%d", got.Superseded, got.UpdateCount, old.UpdateCount+1)
		}
	})
}
