package api

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// InstrumentID identifies an instrument on a market.
type InstrumentID struct {
	MarketID string `json:"marketId"`
	Symbol   string `json:"symbol"`
}

// InstrumentsResponse from GET /rest/instruments/details
type InstrumentsResponse struct {
	Instruments []APIInstrument `json:"instruments"`
}

// APIInstrument represents an instrument from the detailed instruments list.
type APIInstrument struct {
	InstrumentID InstrumentID `json:"instrumentId"`
	Symbol       string       `json:"symbol"` // Present on some API versions instead of instrumentId.symbol
	CFICode      string       `json:"cficode"`
	MaturityDate string       `json:"maturityDate"` // YYYYMMDD, empty for spot instruments
	Currency     string       `json:"currency"`
	Segment      struct {
		MarketSegmentID string `json:"marketSegmentId"`
		MarketID        string `json:"marketId"`
	} `json:"segment"`
}

// FilledOrdersResponse from GET /rest/order/filleds
type FilledOrdersResponse struct {
	Orders []APIOrder `json:"orders"`
}

// APIOrder is an order status report. The same shape arrives from the REST
// filled-orders endpoint and inside WebSocket order reports.
type APIOrder struct {
	OrderID      string          `json:"orderId"`
	ClOrdID      string          `json:"clOrdId"`
	ExecID       string          `json:"execId"`
	AccountID    AccountRef      `json:"accountId"`
	Account      string          `json:"account"`
	InstrumentID InstrumentID    `json:"instrumentId"`
	Price        decimal.Decimal `json:"price"`
	OrderQty     decimal.Decimal `json:"orderQty"`
	OrdType      string          `json:"ordType"`
	Side         string          `json:"side"`
	TransactTime string          `json:"transactTime"` // YYYYMMDD-HH:MM:SS[.mmm][-0300]
	LastPx       decimal.Decimal `json:"lastPx"`
	LastQty      decimal.Decimal `json:"lastQty"`
	CumQty       decimal.Decimal `json:"cumQty"`
	Status       string          `json:"status"`
	OrdStatus    string          `json:"ordStatus"`
	ExecType     string          `json:"execType"`
	Text         string          `json:"text"`
}

// AccountRef accepts either "REM123" or {"id": "REM123"}.
type AccountRef struct {
	ID string
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *AccountRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &a.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	a.ID = obj.ID
	return nil
}
