package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Instruments
// -----------------------------------------------------------------------------

// CFI codes that mark an instrument as an option.
const (
	CFICallOption = "OCASPS"
	CFIPutOption  = "OPASPS"
)

// Instrument is one entry of the tradable universe.
type Instrument struct {
	Symbol   string     `json:"symbol"`
	CFICode  string     `json:"cfi_code"`
	Maturity *time.Time `json:"maturity,omitempty"`
	MarketID string     `json:"market_id,omitempty"`
	Segment  string     `json:"segment,omitempty"`
}

// IsOption reports whether the CFI code denotes a call or put option.
func (i Instrument) IsOption() bool {
	return i.CFICode == CFICallOption || i.CFICode == CFIPutOption
}

// -----------------------------------------------------------------------------
// Quotes
// -----------------------------------------------------------------------------

// Category names the quote table a symbol is routed to.
type Category string

const (
	CategoryOptions    Category = "options"
	CategoryRepos      Category = "repos"
	CategorySecurities Category = "securities"
)

// Categories lists every quote table in a stable order.
var Categories = []Category{CategoryOptions, CategoryRepos, CategorySecurities}

// Quote is the latest market data for one symbol.
type Quote struct {
	Symbol         string    `json:"symbol"`
	Bid            float64   `json:"bid"`
	BidSize        float64   `json:"bid_size"`
	Ask            float64   `json:"ask"`
	AskSize        float64   `json:"ask_size"`
	Last           float64   `json:"last"`
	Change         float64   `json:"change"`
	Open           float64   `json:"open"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	PreviousClose  float64   `json:"previous_close"`
	Turnover       float64   `json:"turnover"`
	Volume         float64   `json:"volume"`
	OperationCount float64   `json:"operation_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// -----------------------------------------------------------------------------
// Executions
// -----------------------------------------------------------------------------

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order statuses.
const (
	StatusNew             = "NEW"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusFilled          = "FILLED"
	StatusCanceled        = "CANCELED"
	StatusRejected        = "REJECTED"
	StatusExpired         = "EXPIRED"
)

// Execution sources.
const (
	SourceREST   = "rest"
	SourceStream = "stream"
)

// DefaultCancelReason is recorded when a cancellation arrives without a reason.
const DefaultCancelReason = "BROKER_CANCELED"

// ExecutionKey is the composite identity of a ledger row.
type ExecutionKey struct {
	ExecutionID string
	OrderID     string
	Account     string
}

// Execution is one row of the execution ledger.
type Execution struct {
	ExecutionID   string          `json:"execution_id"`
	OrderID       string          `json:"order_id"`
	Account       string          `json:"account"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	FilledQty     decimal.Decimal `json:"filled_qty"`
	LastQty       decimal.Decimal `json:"last_qty"`
	LastPx        decimal.Decimal `json:"last_px"`
	Status        string          `json:"status"`
	ExecutionType string          `json:"execution_type"`
	Source        string          `json:"source"`
	EventTime     time.Time       `json:"event_time"`

	// Audit trail
	PreviousFilledQty *decimal.Decimal `json:"previous_filled_qty,omitempty"`
	PreviousEventTime *time.Time       `json:"previous_event_time,omitempty"`
	Superseded        bool             `json:"superseded"`
	UpdateCount       int              `json:"update_count"`
	CancelReason      string           `json:"cancel_reason,omitempty"`
}

// Key returns the composite identity of the execution.
func (e Execution) Key() ExecutionKey {
	return ExecutionKey{
		ExecutionID: e.ExecutionID,
		OrderID:     e.OrderID,
		Account:     e.Account,
	}
}
