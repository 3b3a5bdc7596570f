package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"greenroom/log"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	}
	return "unknown"
}

const (
	defaultReconnectInterval = 3 * time.Second
	defaultHandshakeTimeout  = 10 * time.Second
	maxInboundMessage        = 1 << 20
)

type Options struct {
	// ReconnectInterval is the fixed delay before re-dialing after a
	// non-intentional close. No backoff; the interval is constant.
	ReconnectInterval time.Duration
	AutoReconnect     bool
	HandshakeTimeout  time.Duration
	Header            http.Header
}

// EndpointForInterview derives the telemetry websocket URL for an
// interview session. The bearer token, when present, travels as a query
// parameter because websocket dials cannot always set headers.
func EndpointForInterview(base, interviewID, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint base: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u = u.JoinPath("interviews", interviewID, "telemetry")
	if token != "" {
		q := u.Query()
		q.Set("access_token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Channel owns one logical connection to the analysis backend. It
// reconnects forever at a fixed interval after network drops, but never
// after an explicit Disconnect. Sends while not Connected are silently
// dropped; delivery is not guaranteed.
type Channel struct {
	endpoint string
	opts     Options

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	gen    int  // connection generation; stale async work bails out
	closed bool // intentional close, suppresses auto-reconnect
	timer  *time.Timer

	writeMu sync.Mutex
	events  chan Event
	errs    chan error
}

func NewChannel(endpoint string, opts Options) *Channel {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = defaultReconnectInterval
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Channel{
		endpoint: endpoint,
		opts:     opts,
		events:   make(chan Event, 256),
		errs:     make(chan error, 8),
	}
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events is the typed inbound stream. The channel is never closed;
// consumers stop reading on their own teardown.
func (c *Channel) Events() <-chan Event { return c.events }

// Errs surfaces transport errors as a non-fatal signal. Recovery is the
// reconnect loop, not the caller.
func (c *Channel) Errs() <-chan error { return c.errs }

// Connect establishes the socket. Idempotent: a no-op while Connected or
// Connecting. Clears the intentional-close flag and any pending
// reconnect timer.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return
	}
	c.closed = false
	c.stopTimerLocked()
	c.state = Connecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.dial(ctx, gen)
}

// Disconnect is the user-intended closure: it cancels any pending
// reconnect, abandons an in-flight dial and suppresses auto-reconnect
// until the next Connect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.stopTimerLocked()
	c.gen++
	conn := c.conn
	c.conn = nil
	if conn != nil {
		c.state = Closing
	} else {
		c.state = Disconnected
	}
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()

		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
	}
	log.Connection("disconnected")
}

// Send serializes a structured value as a text frame. Dropped silently
// when not Connected.
func (c *Channel) Send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Errorf("transport: marshal outbound: %v", err)
		return
	}
	c.sendFrame(websocket.TextMessage, data)
}

// SendBinary relays one audio chunk as-is. Dropped silently when not
// Connected.
func (c *Channel) SendBinary(data []byte) {
	c.sendFrame(websocket.BinaryMessage, data)
}

func (c *Channel) sendFrame(messageType int, data []byte) {
	c.mu.Lock()
	if c.state != Connected || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(messageType, data); err != nil {
		c.signalErr(fmt.Errorf("write: %w", err))
	}
}

func (c *Channel) dial(ctx context.Context, gen int) {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, c.opts.Header)

	c.mu.Lock()
	if gen != c.gen || c.state != Connecting {
		// Superseded by Disconnect or a newer Connect.
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.state = Disconnected
		c.mu.Unlock()
		c.signalErr(fmt.Errorf("dial %s: %w", c.endpoint, err))
		c.scheduleReconnect(ctx)
		return
	}
	conn.SetReadLimit(maxInboundMessage)
	c.conn = conn
	c.state = Connected
	c.mu.Unlock()

	log.Connection("connected")
	go c.readLoop(ctx, conn, gen)
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn, gen int) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if gen != c.gen {
				c.mu.Unlock()
				return
			}
			intentional := c.closed
			c.conn = nil
			c.state = Disconnected
			c.mu.Unlock()

			if intentional {
				return
			}
			log.Connection("dropped")
			c.signalErr(fmt.Errorf("read: %w", err))
			c.scheduleReconnect(ctx)
			return
		}

		if messageType != websocket.TextMessage {
			c.deliver(Raw{Payload: data})
			continue
		}
		c.deliver(classify(data))
	}
}

func (c *Channel) scheduleReconnect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opts.AutoReconnect || c.closed || c.state != Disconnected {
		return
	}
	gen := c.gen
	c.timer = time.AfterFunc(c.opts.ReconnectInterval, func() {
		c.mu.Lock()
		if c.closed || gen != c.gen || c.state != Disconnected {
			c.mu.Unlock()
			return
		}
		c.state = Connecting
		c.gen++
		next := c.gen
		c.mu.Unlock()
		go c.dial(ctx, next)
	})
}

func (c *Channel) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Channel) deliver(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Warn("transport: inbound event dropped, consumer too slow")
	}
}

func (c *Channel) signalErr(err error) {
	select {
	case c.errs <- err:
	default:
	}
}
