package bridge

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dshills/heaviside/internal/logging"
	"github.com/dshills/heaviside/internal/window"
)

// Server accepts WebSocket peers. It is an http.Handler, a
// window.EventTarget for messages from any peer, and a window.Window that
// posts to every matching peer.
type Server struct {
	upgrader     websocket.Upgrader
	allowed      map[string]struct{}
	events       *listenerSet
	logger       *logrus.Entry
	readLimit    int64
	writeTimeout time.Duration

	mu     sync.Mutex
	conns  map[uuid.UUID]*Conn
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l *logrus.Entry) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAllowedOrigins restricts which page origins may connect. An empty
// list accepts any origin, including requests without an Origin header.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		for _, o := range origins {
			if norm, err := window.NormalizeOrigin(o); err == nil {
				s.allowed[norm] = struct{}{}
			}
		}
	}
}

// WithReadLimit caps the size of a single inbound message.
func WithReadLimit(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.readLimit = n
		}
	}
}

// WithWriteTimeout bounds each outbound write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.writeTimeout = d
	}
}

// NewServer creates a bridge server.
func NewServer(opts ...Option) *Server {
	s := &Server{
		allowed:      make(map[string]struct{}),
		logger:       logging.Null(),
		readLimit:    defaultReadLimit,
		writeTimeout: defaultWriteTimeout,
		conns:        make(map[uuid.UUID]*Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithComponent(s.logger, "bridge")
	s.events = &listenerSet{logger: s.logger}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowed) == 0 {
		return true
	}
	norm, err := window.NormalizeOrigin(r.Header.Get("Origin"))
	if err != nil {
		return false
	}
	_, ok := s.allowed[norm]
	return ok
}

// ServeHTTP upgrades the request and reads from the peer until it
// disconnects or the server closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).WithField("origin", r.Header.Get("Origin")).Debug("upgrade failed")
		return
	}
	ws.SetReadLimit(s.readLimit)

	origin := ""
	if h := r.Header.Get("Origin"); h != "" {
		if norm, err := window.NormalizeOrigin(h); err == nil {
			origin = norm
		}
	}

	c := newConn(ws, origin, s.events, s.logger, s.writeTimeout)
	c.onClose = s.forget

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ws.Close()
		return
	}
	s.conns[c.id] = c
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"conn":   c.id.String(),
		"origin": origin,
		"remote": r.RemoteAddr,
	}).Info("peer connected")

	defer s.wg.Done()
	c.readLoop()

	s.logger.WithField("conn", c.id.String()).Info("peer disconnected")
}

func (s *Server) forget(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

// AddMessageListener registers l for messages from every peer. Listeners
// run one message at a time.
func (s *Server) AddMessageListener(l window.Listener) func() {
	return s.events.add(l)
}

// PostMessage writes data to every connected peer whose origin matches
// targetOrigin. Per-peer write failures close that peer and are logged.
func (s *Server) PostMessage(data any, targetOrigin string) error {
	if _, err := window.NormalizeOrigin(targetOrigin); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.PostMessage(data, targetOrigin); err != nil {
			c.logger.WithError(err).Warn("post to peer failed")
			_ = c.Close()
		}
	}
	return nil
}

// Conn returns the connected peer with the given id.
func (s *Server) Conn(id uuid.UUID) (*Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	return c, ok
}

// Conns returns the connected peers.
func (s *Server) Conns() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

// Close disconnects every peer and waits for their read loops to end.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
	return nil
}
