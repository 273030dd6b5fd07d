package router

import (
	"encoding/json"
	"fmt"

	"github.com/rickgao/rofex-data/internal/model"
)

// Decode parses one frame into an Event. Malformed market data and order
// report frames return an error wrapping model.ErrValidation.
func Decode(data []byte) (Event, error) {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", model.ErrValidation, err)
	}

	switch env.Type {
	case "Md":
		return decodeMarketData(data)
	case "or", "orderReport":
		return decodeOrderReport(data)
	default:
		return ControlEvent{Type: env.Type}, nil
	}
}

func decodeMarketData(data []byte) (Event, error) {
	var wire marketDataWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: decode market data: %v", model.ErrValidation, err)
	}
	if wire.InstrumentID.Symbol == "" {
		return nil, fmt.Errorf("%w: market data without symbol", model.ErrValidation)
	}
	if wire.MarketData == nil {
		return nil, fmt.Errorf("%w: market data payload missing for %s", model.ErrValidation, wire.InstrumentID.Symbol)
	}

	return QuoteEvent{
		Symbol:   wire.InstrumentID.Symbol,
		MarketID: wire.InstrumentID.MarketID,
		Update:   extractUpdate(wire.MarketData),
	}, nil
}

func decodeOrderReport(data []byte) (Event, error) {
	var wire orderReportWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: decode order report: %v", model.ErrValidation, err)
	}
	if wire.OrderReport == nil {
		return nil, fmt.Errorf("%w: order report payload missing", model.ErrValidation)
	}
	if wire.OrderReport.OrderID == "" {
		return nil, fmt.Errorf("%w: order report without orderId", model.ErrValidation)
	}

	return ExecutionEvent{
		Execution: wire.OrderReport.ToExecution(model.SourceStream),
	}, nil
}
