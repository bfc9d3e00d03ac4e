// Package bridge carries Heaviside envelopes between a hub and remote
// windows over WebSocket.
//
// A Server upgrades HTTP requests and treats each connected peer as a
// window: every text frame it sends is delivered to the server's message
// listeners, and posting to the server writes the message to every peer
// whose origin matches the target origin. Dial opens the client side.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dshills/heaviside/internal/logging"
	"github.com/dshills/heaviside/internal/window"
)

var (
	// ErrConnClosed is returned when posting to a closed connection.
	ErrConnClosed = errors.New("connection is closed")

	// ErrServerClosed is returned by posts and upgrades after Close.
	ErrServerClosed = errors.New("bridge server is closed")
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultReadLimit    = 1 << 20
)

// Conn is one WebSocket peer seen as a window.
type Conn struct {
	id     uuid.UUID
	ws     *websocket.Conn
	origin string
	events *listenerSet
	logger *logrus.Entry

	writeTimeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	closed  bool
	onClose func(*Conn)
	done    chan struct{}
}

func newConn(ws *websocket.Conn, origin string, events *listenerSet, logger *logrus.Entry, writeTimeout time.Duration) *Conn {
	id := uuid.New()
	return &Conn{
		id:           id,
		ws:           ws,
		origin:       origin,
		events:       events,
		logger:       logger.WithField("conn", id.String()),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Origin returns the peer's serialized origin, or "" when it sent none.
func (c *Conn) Origin() string {
	return c.origin
}

// PostMessage writes data to the peer as one JSON text frame. A target
// origin that does not match the peer's origin drops the message.
func (c *Conn) PostMessage(data any, targetOrigin string) error {
	if targetOrigin == "" {
		return fmt.Errorf("%w: empty target origin", window.ErrInvalidOrigin)
	}
	if c.isClosed() {
		return ErrConnClosed
	}
	if !window.OriginMatches(targetOrigin, c.origin) {
		c.logger.WithField("target_origin", targetOrigin).Debug("dropping message: target origin mismatch")
		return nil
	}

	b, err := encode(data)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("write to %s: %w", c.id, err)
	}
	return nil
}

// AddMessageListener registers l for messages from this connection. On a
// server-side connection the listener set is shared by all peers.
func (c *Conn) AddMessageListener(l window.Listener) func() {
	return c.events.add(l)
}

// Done is closed when the connection's read loop has ended.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close closes the underlying connection. It is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	onClose := c.onClose
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	err := c.ws.Close()
	if onClose != nil {
		onClose(c)
	}
	return err
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readLoop delivers text frames until the peer goes away.
func (c *Conn) readLoop() {
	defer close(c.done)
	defer c.Close()

	for {
		typ, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.WithError(err).Warn("connection read failed")
			}
			return
		}
		if typ != websocket.TextMessage {
			c.logger.Debug("ignoring non-text frame")
			continue
		}
		c.events.emit(window.MessageEvent{
			Data:   msg,
			Origin: c.origin,
			Source: c,
		})
	}
}

func encode(data any) ([]byte, error) {
	switch v := data.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return json.Marshal(data)
}

// DialOption configures Dial.
type DialOption func(*dialConfig)

type dialConfig struct {
	origin       string
	logger       *logrus.Entry
	writeTimeout time.Duration
	dialer       *websocket.Dialer
}

// WithOrigin sets the Origin header sent with the handshake.
func WithOrigin(origin string) DialOption {
	return func(c *dialConfig) {
		c.origin = origin
	}
}

// WithDialLogger sets the logger for the dialed connection.
func WithDialLogger(l *logrus.Entry) DialOption {
	return func(c *dialConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) DialOption {
	return func(c *dialConfig) {
		if d != nil {
			c.dialer = d
		}
	}
}

// Dial connects to a bridge server at rawURL (ws:// or wss://). The returned
// connection reads in the background; attach listeners to receive.
func Dial(ctx context.Context, rawURL string, opts ...DialOption) (*Conn, error) {
	cfg := dialConfig{
		logger:       logging.Null(),
		writeTimeout: defaultWriteTimeout,
		dialer:       websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	peer, err := serverOrigin(rawURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if cfg.origin != "" {
		header.Set("Origin", cfg.origin)
	}

	ws, _, err := cfg.dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	ws.SetReadLimit(defaultReadLimit)

	logger := logging.WithComponent(cfg.logger, "bridge")
	c := newConn(ws, peer, &listenerSet{logger: logger}, logger, cfg.writeTimeout)
	go c.readLoop()
	return c, nil
}

// serverOrigin maps a WebSocket URL to the origin of the page that serves it.
func serverOrigin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", window.ErrInvalidOrigin, rawURL, err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	return window.NormalizeOrigin(u.Scheme + "://" + u.Host)
}
