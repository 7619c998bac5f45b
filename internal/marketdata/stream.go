package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"TradeFuse/internal/domain/models"
	drepo "TradeFuse/internal/domain/repository"
	"TradeFuse/pkg/logger"

	"github.com/gorilla/websocket"
)

// Stream implements a MarketStream backed by the exchange WebSocket feed.
type Stream struct {
	apiKey         string
	websocketURL   string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	symbols   []string
}

// StreamOption configures Stream.
type StreamOption func(*Stream)

// WithReconnectDelay sets the pause before a reconnect attempt.
func WithReconnectDelay(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.reconnectDelay = d
		}
	}
}

// WithPingInterval sets the keepalive ping interval.
func WithPingInterval(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// NewStream creates a new exchange MarketStream.
func NewStream(lgr *logger.Logger, websocketURL, apiKey string, opts ...StreamOption) drepo.MarketStream {
	s := &Stream{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		reconnectDelay: 5 * time.Second,
		pingInterval:   20 * time.Second,
		logger:         lgr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect establishes the WebSocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	u := s.websocketURL
	if s.apiKey != "" {
		u = fmt.Sprintf("%s?token=%s", s.websocketURL, s.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("exchange connect: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	s.logger.Info("market stream connected", logger.String("url", s.websocketURL))
	return nil
}

// Subscribe subscribes to ticker channels for the given symbols.
func (s *Stream) Subscribe(ctx context.Context, symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || !s.connected {
		return fmt.Errorf("market stream not connected")
	}

	for _, sym := range symbols {
		msg := map[string]string{"type": "subscribe", "channel": "ticker", "symbol": sym}
		if err := s.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	s.symbols = symbols
	s.logger.Info("subscribed", logger.Strings("symbols", symbols))
	return nil
}

type wsTicker struct {
	S string  `json:"s"`
	B float64 `json:"b"`
	A float64 `json:"a"`
	C float64 `json:"c"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type wsMessage struct {
	Type string     `json:"type"`
	Data []wsTicker `json:"data"`
}

// Read streams Tick events and errors. The tick channel applies
// backpressure by dropping when the consumer lags.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)
	done := make(chan struct{})

	// The pinger lives exactly as long as the reader below: reconnects
	// call Read again and must not stack pingers on the new connection.
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				conn := s.conn
				s.mu.Unlock()
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	go func() {
		defer close(done)
		defer close(ticks)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				s.mu.Lock()
				conn := s.conn
				s.mu.Unlock()
				if conn == nil {
					errs <- fmt.Errorf("market stream conn nil")
					return
				}
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("market stream read: %w", err)
					return
				}
				var m wsMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-ticker frames
					continue
				}
				if m.Type != "ticker" {
					continue
				}
				for _, d := range m.Data {
					tick := &models.Tick{
						Symbol:    d.S,
						Timestamp: d.T,
						Bid:       d.B,
						Ask:       d.A,
						Last:      d.C,
						Volume:    d.V,
					}
					select {
					case ticks <- tick:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return ticks, errs
}

// Reconnect closes and reconnects, resubscribing to the last symbol set.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	time.Sleep(s.reconnectDelay)
	if err := s.Connect(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	symbols := s.symbols
	s.mu.Unlock()
	return s.Subscribe(ctx, symbols)
}

// Close closes the connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// IsConnected reports connection state.
func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
