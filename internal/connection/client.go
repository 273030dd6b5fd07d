package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one WebSocket session with the broker. A Client is single use:
// once Done is closed, Err reports the cause and a new Client must be dialed.
type Client interface {
	Connect(ctx context.Context) error
	Close() error

	// Send writes one text frame. Safe for concurrent use.
	Send(data []byte) error

	// Frames delivers every data frame with its local receive time. It is
	// never closed; watch Done instead.
	Frames() <-chan Frame

	Done() <-chan struct{}
	Err() error
	Connected() bool

	// Dropped counts frames discarded because Frames was full.
	Dropped() int64
}

type session struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	frames chan Frame
	done   chan struct{}

	endOnce sync.Once
	errMu   sync.Mutex
	err     error

	connected atomic.Bool
	closed    atomic.Bool
	dropped   atomic.Int64
}

// NewClient creates an unconnected session.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultClientConfig()
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	return &session{
		cfg:    cfg,
		logger: logger,
		frames: make(chan Frame, cfg.BufferSize),
		done:   make(chan struct{}),
	}
}

// Connect dials the broker. A 401/403 handshake maps to ErrUnauthorized so
// the caller can drop its token.
func (s *session) Connect(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	header := http.Header{}
	if s.cfg.Headers != nil {
		h, err := s.cfg.Headers.Header(ctx)
		if err != nil {
			return fmt.Errorf("handshake headers: %w", err)
		}
		for k, v := range h {
			header[k] = v
		}
	}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil &&
			(resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	s.conn = conn

	// Any inbound traffic, including control frames, extends the deadline.
	s.extendDeadline()
	conn.SetPongHandler(func(string) error {
		s.extendDeadline()
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		s.extendDeadline()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	s.connected.Store(true)
	go s.readLoop()
	go s.pingLoop()

	s.logger.Debug("websocket connected", "url", s.cfg.URL)
	return nil
}

// Close sends a close frame and tears the session down. Safe to call twice.
func (s *session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.end(ErrClosed)

	if s.conn == nil {
		return nil
	}
	s.writeMu.Lock()
	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	s.writeMu.Unlock()
	return s.conn.Close()
}

func (s *session) Send(data []byte) error {
	if !s.connected.Load() {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *session) Frames() <-chan Frame { return s.frames }

func (s *session) Done() <-chan struct{} { return s.done }

func (s *session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *session) Connected() bool { return s.connected.Load() }

func (s *session) Dropped() int64 { return s.dropped.Load() }

// end records the first terminal error and releases Done.
func (s *session) end(err error) {
	s.endOnce.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		s.connected.Store(false)
		close(s.done)
	})
}

func (s *session) extendDeadline() {
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.PingTimeout))
}

func (s *session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				s.end(ErrClosed)
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.logger.Warn("no traffic within ping timeout, connection stale",
					"timeout", s.cfg.PingTimeout,
				)
				err = ErrStaleConnection
			}
			s.end(err)
			return
		}
		s.extendDeadline()

		select {
		case s.frames <- Frame{Data: data, ReceivedAt: time.Now()}:
		default:
			if n := s.dropped.Add(1); n == 1 || n%1000 == 0 {
				s.logger.Warn("frame buffer full, dropping", "dropped", n)
			}
		}
	}
}

// pingLoop keeps the broker sending pongs. Pings go out twice per ping
// timeout.
func (s *session) pingLoop() {
	ticker := time.NewTicker(s.cfg.PingTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout))
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("ping failed", "error", err)
			}
		}
	}
}
