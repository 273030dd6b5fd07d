package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/rickgao/rofex-data/internal/model"
)

// transactTime layouts seen on the wire. Layouts without a zone are UTC.
var transactLayouts = []string{
	"20060102-15:04:05.000-0700",
	"20060102-15:04:05-0700",
	"20060102-15:04:05.000",
	"20060102-15:04:05",
	time.RFC3339Nano,
}

// ParseTransactTime parses a broker transaction timestamp into UTC.
func ParseTransactTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty transact time")
	}
	for _, layout := range transactLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized transact time %q", s)
}

// ParseMaturity parses a YYYYMMDD maturity date. Returns nil for empty or
// invalid input.
func ParseMaturity(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return nil
	}
	return &t
}

// IsFilledStatus reports whether an order status carries fills worth
// recording. The comparison ignores case and surrounding space.
func IsFilledStatus(status string) bool {
	status = strings.ToUpper(strings.TrimSpace(status))
	return status == model.StatusFilled || status == model.StatusPartiallyFilled
}

// ToModel converts an APIInstrument to model.Instrument.
func (i *APIInstrument) ToModel() model.Instrument {
	symbol := i.InstrumentID.Symbol
	if symbol == "" {
		symbol = i.Symbol
	}
	marketID := i.InstrumentID.MarketID
	if marketID == "" {
		marketID = i.Segment.MarketID
	}
	return model.Instrument{
		Symbol:   symbol,
		CFICode:  i.CFICode,
		Maturity: ParseMaturity(i.MaturityDate),
		MarketID: marketID,
		Segment:  i.Segment.MarketSegmentID,
	}
}

// OrderStatus returns ordStatus when present, else status.
func (o *APIOrder) OrderStatus() string {
	if o.OrdStatus != "" {
		return o.OrdStatus
	}
	return o.Status
}

// ToExecution converts an order report into an unvalidated ledger row.
// Field checks and the execution id fallback happen in the ledger.
func (o *APIOrder) ToExecution(source string) model.Execution {
	account := o.AccountID.ID
	if account == "" {
		account = o.Account
	}
	execType := o.ExecType
	if execType == "" {
		execType = o.OrdType
	}
	eventTime, _ := ParseTransactTime(o.TransactTime)

	return model.Execution{
		ExecutionID:   o.ExecID,
		OrderID:       o.OrderID,
		Account:       account,
		Symbol:        o.InstrumentID.Symbol,
		Side:          o.Side,
		Quantity:      o.OrderQty,
		Price:         o.Price,
		FilledQty:     o.CumQty,
		LastQty:       o.LastQty,
		LastPx:        o.LastPx,
		Status:        o.OrderStatus(),
		ExecutionType: execType,
		Source:        source,
		EventTime:     eventTime,
		CancelReason:  cancelReason(o),
	}
}

// cancelReason carries the broker text on cancellations only.
func cancelReason(o *APIOrder) string {
	if o.OrderStatus() != model.StatusCanceled {
		return ""
	}
	return strings.TrimSpace(o.Text)
}
