package ledger

import (
	"strings"

	"github.com/rickgao/rofex-data/internal/model"
)

// MergeResult is the typed diff of one reconcile cycle.
//
// Updated counts every key present in both the table and the batch, whether
// or not anything changed; AuditChanged counts the subset whose audit fields
// moved.
type MergeResult struct {
	Inserted     int `json:"inserted"`
	Updated      int `json:"updated"`
	Unchanged    int `json:"unchanged"`
	Rejected     int `json:"rejected"`
	AuditChanged int `json:"audit_changed"`
	Errors       int `json:"errors"`
}

// Add accumulates r into m.
func (m *MergeResult) Add(r MergeResult) {
	m.Inserted += r.Inserted
	m.Updated += r.Updated
	m.Unchanged += r.Unchanged
	m.Rejected += r.Rejected
	m.AuditChanged += r.AuditChanged
	m.Errors += r.Errors
}

// DedupIncoming keeps, per key, the record with the latest EventTime. On a
// tie the later position wins. Output keeps first-appearance order of keys.
func DedupIncoming(rows []model.Execution) []model.Execution {
	index := make(map[model.ExecutionKey]int, len(rows))
	out := make([]model.Execution, 0, len(rows))

	for _, r := range rows {
		k := r.Key()
		i, seen := index[k]
		if !seen {
			index[k] = len(out)
			out = append(out, r)
			continue
		}
		if !r.EventTime.Before(out[i].EventTime) {
			out[i] = r
		}
	}
	return out
}

// CollapseBatch applies the DedupIncoming rule to a batch that will be
// reconciled in several chunks, so a stale copy in a later chunk cannot
// overwrite a newer one written by an earlier chunk. Rows are compared by
// the identity Normalize would give them and are returned unmodified.
func CollapseBatch(rows []model.Execution) []model.Execution {
	index := make(map[model.ExecutionKey]int, len(rows))
	out := make([]model.Execution, 0, len(rows))

	for _, r := range rows {
		k := identity(r)
		i, seen := index[k]
		if !seen {
			index[k] = len(out)
			out = append(out, r)
			continue
		}
		if !r.EventTime.Before(out[i].EventTime) {
			out[i] = r
		}
	}
	return out
}

// identity is the key Normalize assigns to e, fallback id included.
func identity(e model.Execution) model.ExecutionKey {
	k := model.ExecutionKey{
		ExecutionID: strings.TrimSpace(e.ExecutionID),
		OrderID:     strings.TrimSpace(e.OrderID),
		Account:     strings.TrimSpace(e.Account),
	}
	if k.ExecutionID == "" && !e.EventTime.IsZero() {
		k.ExecutionID = FallbackID(model.Execution{OrderID: k.OrderID, Account: k.Account, EventTime: e.EventTime})
	}
	return k
}

// DedupExisting keeps the first occurrence of each key and returns the
// number of rows dropped.
func DedupExisting(rows []model.Execution) ([]model.Execution, int) {
	seen := make(map[model.ExecutionKey]struct{}, len(rows))
	out := make([]model.Execution, 0, len(rows))

	for _, r := range rows {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out, len(rows) - len(out)
}

// Merge applies incoming to existing. Both must be free of duplicate keys.
// Existing rows keep their order; inserts are appended in batch order.
func Merge(existing, incoming []model.Execution) ([]model.Execution, MergeResult) {
	var res MergeResult

	byKey := make(map[model.ExecutionKey]model.Execution, len(incoming))
	for _, in := range incoming {
		byKey[in.Key()] = in
	}

	out := make([]model.Execution, 0, len(existing)+len(incoming))
	matched := make(map[model.ExecutionKey]bool, len(incoming))

	for _, old := range existing {
		in, ok := byKey[old.Key()]
		if !ok {
			res.Unchanged++
			out = append(out, old)
			continue
		}
		matched[old.Key()] = true

		merged := update(old, in)
		res.Updated++
		if !sameAudit(old, merged) {
			res.AuditChanged++
		}
		out = append(out, merged)
	}

	for _, in := range incoming {
		if matched[in.Key()] {
			continue
		}
		res.Inserted++
		out = append(out, insert(in))
	}

	return out, res
}

// insert initializes the audit trail of a first sighting.
func insert(in model.Execution) model.Execution {
	in.PreviousFilledQty = nil
	in.PreviousEventTime = nil
	in.Superseded = false
	in.UpdateCount = 0
	in.CancelReason = ""
	return in
}

// update adopts the incoming fields and carries the audit trail forward.
func update(old, in model.Execution) model.Execution {
	merged := in

	if !in.FilledQty.Equal(old.FilledQty) {
		prevQty := old.FilledQty
		prevTime := old.EventTime
		merged.PreviousFilledQty = &prevQty
		merged.PreviousEventTime = &prevTime
		merged.Superseded = true
		merged.UpdateCount = old.UpdateCount + 1
	} else {
		merged.PreviousFilledQty = old.PreviousFilledQty
		merged.PreviousEventTime = old.PreviousEventTime
		merged.Superseded = old.Superseded
		merged.UpdateCount = old.UpdateCount
	}

	if in.Status == model.StatusCanceled {
		merged.Superseded = true
		merged.CancelReason = in.CancelReason
		if merged.CancelReason == "" {
			merged.CancelReason = model.DefaultCancelReason
		}
	} else {
		merged.CancelReason = old.CancelReason
	}
	return merged
}

func sameAudit(a, b model.Execution) bool {
	if a.Superseded != b.Superseded || a.UpdateCount != b.UpdateCount || a.CancelReason != b.CancelReason {
		return false
	}
	switch {
	case a.PreviousFilledQty == nil && b.PreviousFilledQty == nil:
	case a.PreviousFilledQty == nil || b.PreviousFilledQty == nil:
		return false
	case !a.PreviousFilledQty.Equal(*b.PreviousFilledQty):
		return false
	}
	switch {
	case a.PreviousEventTime == nil && b.PreviousEventTime == nil:
	case a.PreviousEventTime == nil || b.PreviousEventTime == nil:
		return false
	case !a.PreviousEventTime.Equal(*b.PreviousEventTime):
		return false
	}
	return true
}
