package router

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rickgao/rofex-data/internal/quotes"
)

// extractUpdate maps market data entries to a partial quote. Entries absent
// from md stay nil; entries present but unusable become 0.
//
//	BI/OF  bid/offer levels [{price,size}], top of book is element 0
//	LA     last trade {price,size}
//	OP/CL/HI/LO  number or {price}
//	EV turnover, NV volume, TC operation count
func extractUpdate(md map[string]json.RawMessage) quotes.Update {
	var u quotes.Update

	if raw, ok := md["BI"]; ok {
		price, size := topOfBook(raw)
		u.Bid, u.BidSize = &price, &size
	}
	if raw, ok := md["OF"]; ok {
		price, size := topOfBook(raw)
		u.Ask, u.AskSize = &price, &size
	}
	if raw, ok := md["LA"]; ok {
		u.Last = ptr(priceOf(decodeAny(raw)))
	}
	if raw, ok := md["OP"]; ok {
		u.Open = ptr(priceOf(decodeAny(raw)))
	}
	if raw, ok := md["CL"]; ok {
		u.PreviousClose = ptr(priceOf(decodeAny(raw)))
	}
	if raw, ok := md["HI"]; ok {
		u.High = ptr(priceOf(decodeAny(raw)))
	}
	if raw, ok := md["LO"]; ok {
		u.Low = ptr(priceOf(decodeAny(raw)))
	}
	if raw, ok := md["EV"]; ok {
		u.Turnover = ptr(toFloat(decodeAny(raw)))
	}
	if raw, ok := md["NV"]; ok {
		u.Volume = ptr(math.Trunc(toFloat(decodeAny(raw))))
	}
	if raw, ok := md["TC"]; ok {
		u.OperationCount = ptr(math.Trunc(toFloat(decodeAny(raw))))
	}
	return u
}

func ptr(v float64) *float64 { return &v }

func decodeAny(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// topOfBook returns the first level of a book side, or 0/0.
func topOfBook(raw json.RawMessage) (price, size float64) {
	levels, ok := decodeAny(raw).([]any)
	if !ok || len(levels) == 0 {
		return 0, 0
	}
	level, ok := levels[0].(map[string]any)
	if !ok {
		return 0, 0
	}
	return toFloat(level["price"]), toFloat(level["size"])
}

// priceOf reads a bare number or the price of a {price,...} object.
func priceOf(v any) float64 {
	if m, ok := v.(map[string]any); ok {
		return toFloat(m["price"])
	}
	return toFloat(v)
}

// toFloat converts numbers and numeric strings; anything else is 0.
func toFloat(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
