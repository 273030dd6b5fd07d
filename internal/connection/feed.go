package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// FeedStats provides statistics about the feed.
type FeedStats struct {
	Connected    bool      `json:"connected"`
	ConnID       int       `json:"conn_id"`
	Reconnects   int64     `json:"reconnects"`
	Received     int64     `json:"received"`
	Dropped      int64     `json:"dropped"`
	LastReceived time.Time `json:"last_received"`
}

// Feed owns the WebSocket connection and forwards frames to the router.
type Feed struct {
	cfg    FeedConfig
	auth   Authenticator
	logger *slog.Logger

	// Output to the router
	out chan RawMessage

	mu     sync.Mutex
	client Client
	connID int

	reconnects    atomic.Int64
	received      atomic.Int64
	dropped       atomic.Int64
	clientDropped atomic.Int64 // frames dropped by clients already replaced
	lastReceived  atomic.Int64 // UnixNano

	// newClient is swapped in tests.
	newClient func(ClientConfig, *slog.Logger) Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFeed creates a feed. auth may be nil for unauthenticated endpoints.
func NewFeed(cfg FeedConfig, auth Authenticator, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultFeedConfig()
	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = def.MessageBufferSize
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = def.ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait <= 0 {
		cfg.ReconnectMaxWait = def.ReconnectMaxWait
	}
	if cfg.MarketID == "" {
		cfg.MarketID = def.MarketID
	}

	return &Feed{
		cfg:       cfg,
		auth:      auth,
		logger:    logger,
		out:       make(chan RawMessage, cfg.MessageBufferSize),
		newClient: NewClient,
	}
}

// Start connects, subscribes and begins forwarding messages.
func (f *Feed) Start(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)

	c, err := f.connect(f.ctx)
	if err != nil {
		f.cancel()
		return fmt.Errorf("connect feed: %w", err)
	}

	f.wg.Add(1)
	go f.readLoop(c)

	f.logger.Info("feed started",
		"symbols", len(f.cfg.Symbols),
		"order_reports", f.cfg.Account != "",
	)
	return nil
}

// Stop gracefully shuts down.
func (f *Feed) Stop(ctx context.Context) error {
	f.logger.Info("stopping feed")

	if f.cancel != nil {
		f.cancel()
	}

	f.mu.Lock()
	if f.client != nil {
		f.client.Close()
	}
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(f.out)
		f.logger.Info("feed stopped")
		return nil
	case <-ctx.Done():
		f.logger.Warn("feed stop timed out")
		return ctx.Err()
	}
}

// Messages returns the output channel for the router.
func (f *Feed) Messages() <-chan RawMessage {
	return f.out
}

// Stats returns current statistics.
func (f *Feed) Stats() FeedStats {
	f.mu.Lock()
	connected := f.client != nil && f.client.Connected()
	connID := f.connID
	var clientDropped int64
	if f.client != nil {
		clientDropped = f.client.Dropped()
	}
	f.mu.Unlock()

	st := FeedStats{
		Connected:  connected,
		ConnID:     connID,
		Reconnects: f.reconnects.Load(),
		Received:   f.received.Load(),
		Dropped:    f.dropped.Load() + f.clientDropped.Load() + clientDropped,
	}
	if ns := f.lastReceived.Load(); ns > 0 {
		st.LastReceived = time.Unix(0, ns)
	}
	return st
}

// connect dials a new client and sends the subscriptions.
func (f *Feed) connect(ctx context.Context) (Client, error) {
	f.mu.Lock()
	f.connID++
	id := f.connID
	f.mu.Unlock()

	cfg := ClientConfig{
		URL:          f.cfg.WSURL,
		Headers:      f.auth,
		PingTimeout:  f.cfg.PingTimeout,
		WriteTimeout: f.cfg.WriteTimeout,
		BufferSize:   f.cfg.MessageBufferSize,
	}
	c := f.newClient(cfg, f.logger.With("conn_id", id))

	if err := c.Connect(ctx); err != nil {
		if errors.Is(err, ErrUnauthorized) && f.auth != nil {
			f.auth.Invalidate()
		}
		return nil, err
	}

	if err := f.subscribe(c); err != nil {
		c.Close()
		return nil, err
	}

	f.mu.Lock()
	if f.client != nil {
		f.clientDropped.Add(f.client.Dropped())
	}
	f.client = c
	f.mu.Unlock()
	return c, nil
}

// subscribe sends the market data and order report subscriptions.
func (f *Feed) subscribe(c Client) error {
	if len(f.cfg.Symbols) > 0 {
		msg, err := MarketDataSubscription(f.cfg.Symbols, f.cfg.MarketID)
		if err != nil {
			return fmt.Errorf("encode market data subscription: %w", err)
		}
		if err := c.Send(msg); err != nil {
			return fmt.Errorf("subscribe market data: %w", err)
		}
	}

	if f.cfg.Account != "" {
		msg, err := OrderReportSubscription(f.cfg.Account)
		if err != nil {
			return fmt.Errorf("encode order report subscription: %w", err)
		}
		if err := c.Send(msg); err != nil {
			return fmt.Errorf("subscribe order reports: %w", err)
		}
	}

	f.logger.Debug("subscriptions sent",
		"symbols", len(f.cfg.Symbols),
		"account", f.cfg.Account,
	)
	return nil
}

// readLoop forwards messages from c until it fails, then reconnects.
func (f *Feed) readLoop(c Client) {
	defer f.wg.Done()

	f.mu.Lock()
	connID := f.connID
	f.mu.Unlock()

	for {
		select {
		case <-f.ctx.Done():
			return

		case <-c.Done():
			if f.ctx.Err() != nil {
				return
			}
			f.logger.Warn("feed connection lost", "conn_id", connID, "error", c.Err())
			f.wg.Add(1)
			go f.reconnect(c)
			return

		case msg := <-c.Frames():
			f.received.Add(1)
			f.lastReceived.Store(msg.ReceivedAt.UnixNano())

			raw := RawMessage{
				Data:       msg.Data,
				ConnID:     connID,
				ReceivedAt: msg.ReceivedAt,
			}

			// Non-blocking so a stalled router cannot back up the socket.
			select {
			case f.out <- raw:
			case <-f.ctx.Done():
				return
			default:
				f.dropped.Add(1)
				f.logger.Warn("message buffer full, dropping", "conn_id", connID)
			}
		}
	}
}

// reconnect replaces a failed client with exponential backoff.
func (f *Feed) reconnect(old Client) {
	defer f.wg.Done()

	old.Close()

	wait := f.cfg.ReconnectBaseWait
	maxWait := f.cfg.ReconnectMaxWait

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-time.After(wait):
		}

		f.logger.Info("attempting reconnection", "wait", wait)

		c, err := f.connect(f.ctx)
		if err != nil {
			f.logger.Warn("reconnection failed", "error", err)

			wait *= 2
			if wait > maxWait {
				wait = maxWait
			}
			continue
		}

		f.reconnects.Add(1)
		f.logger.Info("reconnected", "conn_id", f.Stats().ConnID)

		f.wg.Add(1)
		go f.readLoop(c)
		return
	}
}
