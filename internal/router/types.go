package router

import (
	"encoding/json"
	"time"

	"github.com/rickgao/rofex-data/internal/api"
	"github.com/rickgao/rofex-data/internal/model"
	"github.com/rickgao/rofex-data/internal/quotes"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	ExecutionBufferSize int // Initial capacity of the execution queue. Default: 1000
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		ExecutionBufferSize: 1000,
	}
}

// Event is one decoded feed frame.
type Event interface {
	eventType() string
}

// QuoteEvent is a market data frame ("Md").
type QuoteEvent struct {
	Symbol   string
	MarketID string
	Update   quotes.Update
}

// ExecutionEvent is an order report frame ("or").
type ExecutionEvent struct {
	Execution model.Execution
}

// ControlEvent is any other frame (subscription acks, errors, heartbeats).
type ControlEvent struct {
	Type string
}

func (QuoteEvent) eventType() string     { return "Md" }
func (ExecutionEvent) eventType() string { return "or" }
func (e ControlEvent) eventType() string { return e.Type }

// OutcomeKind classifies what Route did with a frame.
type OutcomeKind string

const (
	OutcomeApplied         OutcomeKind = "applied"          // Quote merged into a table
	OutcomeQueued          OutcomeKind = "queued"           // Execution queued for the ledger
	OutcomeFiltered        OutcomeKind = "filtered"         // Execution status not recorded
	OutcomeIgnored         OutcomeKind = "ignored"          // Control frame
	OutcomeValidationError OutcomeKind = "validation_error" // Malformed frame
	OutcomeStateError      OutcomeKind = "state_error"      // No quote row for the symbol
	OutcomeInternalError   OutcomeKind = "internal_error"   // Recovered panic
)

// Outcome is the per-frame result of Route.
type Outcome struct {
	Kind     OutcomeKind
	Symbol   string
	Category model.Category
	Future   bool
	Err      error
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived   int64                    `json:"messages_received"`
	MessagesProcessed  int64                    `json:"messages_processed"`
	Errors             int64                    `json:"errors"`
	ValidationErrors   int64                    `json:"validation_errors"`
	StateErrors        int64                    `json:"state_errors"`
	ObserverErrors     int64                    `json:"observer_errors"`
	ControlMessages    int64                    `json:"control_messages"`
	Futures            int64                    `json:"futures"`
	ExecutionsQueued   int64                    `json:"executions_queued"`
	ExecutionsFiltered int64                    `json:"executions_filtered"`
	Updates            map[model.Category]int64 `json:"updates"`
	LastMessageAt      time.Time                `json:"last_message_at"`
	ExecutionBuffer    BufferStats              `json:"execution_buffer"`
}

// Wire types for JSON parsing

// messageEnvelope is used for fast type extraction.
type messageEnvelope struct {
	Type string `json:"type"`
}

// marketDataWire is the wire format for "Md" frames. Entries stay raw so
// absent keys can be told apart from zero values.
type marketDataWire struct {
	InstrumentID api.InstrumentID           `json:"instrumentId"`
	MarketData   map[string]json.RawMessage `json:"marketData"`
}

// orderReportWire is the wire format for "or" frames.
type orderReportWire struct {
	OrderReport *api.APIOrder `json:"orderReport"`
}
