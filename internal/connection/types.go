package connection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale")
	ErrClosed          = errors.New("connection closed")
	ErrUnauthorized    = errors.New("websocket handshake unauthorized")
)

// Frame is one WebSocket data frame as read by a Client.
type Frame struct {
	Data       []byte
	ReceivedAt time.Time
}

// RawMessage is a message from the Feed to the router.
type RawMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ConnID     int       // Connection generation, incremented on every reconnect
	ReceivedAt time.Time // Local timestamp when the client received the message
}

// HeaderSource supplies handshake headers.
type HeaderSource interface {
	Header(ctx context.Context) (http.Header, error)
}

// Authenticator is a HeaderSource whose credentials can be dropped after a
// rejected handshake. auth.TokenSource implements it.
type Authenticator interface {
	HeaderSource
	Invalidate()
}

// Market data entries requested on every subscription.
var MarketDataEntries = []string{"BI", "OF", "LA", "OP", "CL", "HI", "LO", "EV", "NV", "TC"}

// Product identifies an instrument in a subscription.
type Product struct {
	Symbol   string `json:"symbol"`
	MarketID string `json:"marketId"`
}

// MarketDataRequest subscribes to market data ("smd").
type MarketDataRequest struct {
	Type     string    `json:"type"`
	Level    int       `json:"level"`
	Entries  []string  `json:"entries"`
	Products []Product `json:"products"`
	Depth    int       `json:"depth"`
}

// AccountID identifies an account in an order report subscription.
type AccountID struct {
	ID string `json:"id"`
}

// OrderReportRequest subscribes to order reports ("os").
type OrderReportRequest struct {
	Type     string      `json:"type"`
	Accounts []AccountID `json:"accounts"`
}

// MarketDataSubscription encodes a top-of-book subscription for symbols.
func MarketDataSubscription(symbols []string, marketID string) ([]byte, error) {
	req := MarketDataRequest{
		Type:     "smd",
		Level:    1,
		Entries:  MarketDataEntries,
		Products: make([]Product, 0, len(symbols)),
		Depth:    1,
	}
	for _, s := range symbols {
		req.Products = append(req.Products, Product{Symbol: s, MarketID: marketID})
	}
	return json.Marshal(req)
}

// OrderReportSubscription encodes an order report subscription for account.
func OrderReportSubscription(account string) ([]byte, error) {
	return json.Marshal(OrderReportRequest{
		Type:     "os",
		Accounts: []AccountID{{ID: account}},
	})
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., wss://api.remarkets.primary.com.ar/)
	Headers      HeaderSource  // Handshake headers (nil = none)
	PingTimeout  time.Duration // Max silence, including pongs, before the session is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   10000,
	}
}

// FeedConfig configures the Feed.
type FeedConfig struct {
	WSURL             string
	Symbols           []string // Market data subscription, already validated
	MarketID          string
	Account           string // Order report subscription (empty = none)
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
	PingTimeout       time.Duration
	WriteTimeout      time.Duration
	MessageBufferSize int
}

// DefaultFeedConfig returns sensible defaults.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		MarketID:          "ROFX",
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
		PingTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Second,
		MessageBufferSize: 10000,
	}
}
