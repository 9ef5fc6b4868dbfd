// Package feed connects to an upstream market-data WebSocket stream and
// forwards tick and order-book messages into the ingest queue.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"market-state-engine/internal/ingest"
	"market-state-engine/internal/observability"
	"market-state-engine/internal/schema"
)

// Config configures feed client behavior.
type Config struct {
	// Endpoint is the upstream WebSocket URL.
	Endpoint string
	// Tokens is the set of instruments to subscribe to.
	Tokens []string
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultConfig returns default feed configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Client consumes the upstream stream and enqueues rows. A saturated
// ingest queue sheds the message; the upstream stream is the recovery
// source, not this client.
type Client struct {
	config  Config
	queue   *ingest.Queue
	metrics *observability.Metrics
	log     zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewClient creates a feed client. It does not connect until Run.
func NewClient(config Config, queue *ingest.Queue, metrics *observability.Metrics, log zerolog.Logger) *Client {
	def := DefaultConfig()
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = def.ReconnectDelay
	}
	if config.MaxReconnectDelay <= 0 {
		config.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}

	return &Client{
		config:  config,
		queue:   queue,
		metrics: metrics,
		log:     log.With().Str("component", "feed").Logger(),
		done:    make(chan struct{}),
	}
}

// Run connects and consumes messages until ctx is cancelled or Close is
// called. Connection loss triggers reconnect with exponential backoff and
// a fresh subscription.
func (c *Client) Run(ctx context.Context) error {
	delay := c.config.ReconnectDelay

	for {
		if c.closed.Load() || ctx.Err() != nil {
			return ctx.Err()
		}

		if err := c.connect(ctx); err != nil {
			c.log.Warn().Err(err).Dur("retry_in", delay).Msg("feed connect failed")
			if c.metrics != nil {
				c.metrics.FeedReconnects.Inc()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.done:
				return nil
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.config.MaxReconnectDelay {
				delay = c.config.MaxReconnectDelay
			}
			continue
		}

		delay = c.config.ReconnectDelay
		c.log.Info().Str("endpoint", c.config.Endpoint).Msg("feed connected")

		c.wg.Add(1)
		go c.pingLoop()

		err := c.readLoop(ctx)
		c.closeConn()
		c.wg.Wait()

		if c.closed.Load() || ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Msg("feed disconnected")
		if c.metrics != nil {
			c.metrics.FeedReconnects.Inc()
		}
	}
}

// Close stops the client.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)
	c.closeConn()
	return nil
}

// connect dials the endpoint and sends the subscription request.
func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.config.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	sub := subscribeRequest{
		Op:       "subscribe",
		Channels: []string{"ticks", "book"},
		Tokens:   c.config.Tokens,
	}
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("write subscribe: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

// readLoop reads messages until the connection fails.
func (c *Client) readLoop(ctx context.Context) error {
	for {
		if c.closed.Load() || ctx.Err() != nil {
			return ctx.Err()
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return fmt.Errorf("not connected")
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		c.handleMessage(message)
	}
}

// handleMessage parses one upstream message and enqueues the row.
func (c *Client) handleMessage(message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.log.Warn().Err(err).Msg("malformed feed message")
		return
	}

	switch env.Type {
	case "tick":
		var t tickMessage
		if err := json.Unmarshal(message, &t); err != nil {
			c.log.Warn().Err(err).Msg("malformed tick")
			return
		}
		if c.metrics != nil {
			c.metrics.FeedMessages.WithLabelValues("ticks").Inc()
		}
		row := map[string]any{
			"token":        t.Token,
			"timestamp_ms": t.TimestampMs,
			"price":        t.Price,
		}
		if err := c.queue.Enqueue(schema.TablePrices, row); err != nil {
			c.log.Warn().Err(err).Str("token", t.Token).Msg("tick shed")
		}

	case "book":
		var b bookMessage
		if err := json.Unmarshal(message, &b); err != nil {
			c.log.Warn().Err(err).Msg("malformed book message")
			return
		}
		if c.metrics != nil {
			c.metrics.FeedMessages.WithLabelValues("book").Inc()
		}
		row := map[string]any{
			"timestamp_ms":         b.TimestampMs,
			"mid_price":            b.MidPrice,
			"spread":               b.Spread,
			"bid_depth_1pct":       b.BidDepth1Pct,
			"ask_depth_1pct":       b.AskDepth1Pct,
			"bid_depth_5pct":       b.BidDepth5Pct,
			"ask_depth_5pct":       b.AskDepth5Pct,
			"imbalance_ratio":      b.ImbalanceRatio,
			"microprice_deviation": b.MicropriceDeviation,
			"source":               b.Source,
		}
		if err := c.queue.Enqueue(schema.TableOrderBook, row); err != nil {
			c.log.Warn().Err(err).Str("source", b.Source).Msg("book row shed")
		}

	default:
		// Subscription acks and heartbeats are ignored.
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			if conn == nil {
				c.connMu.Unlock()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				// Connection is likely dead, reader exits and reconnects.
				c.connMu.Unlock()
				return
			}
			c.connMu.Unlock()
		}
	}
}

// Wire types.

type subscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
	Tokens   []string `json:"tokens,omitempty"`
}

type envelope struct {
	Type string `json:"type"`
}

type tickMessage struct {
	Type        string  `json:"type"`
	Token       string  `json:"token"`
	TimestampMs int64   `json:"timestamp_ms"`
	Price       float64 `json:"price"`
}

type bookMessage struct {
	Type                string  `json:"type"`
	TimestampMs         int64   `json:"timestamp_ms"`
	MidPrice            float64 `json:"mid_price"`
	Spread              float64 `json:"spread"`
	BidDepth1Pct        float64 `json:"bid_depth_1pct"`
	AskDepth1Pct        float64 `json:"ask_depth_1pct"`
	BidDepth5Pct        float64 `json:"bid_depth_5pct"`
	AskDepth5Pct        float64 `json:"ask_depth_5pct"`
	ImbalanceRatio      float64 `json:"imbalance_ratio"`
	MicropriceDeviation float64 `json:"microprice_deviation"`
	Source              string  `json:"source"`
}
