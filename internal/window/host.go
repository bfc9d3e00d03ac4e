package window

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dshills/heaviside/internal/logging"
)

// Host owns a set of in-process frames.
type Host struct {
	logger *logrus.Entry

	mu     sync.Mutex
	frames map[uuid.UUID]*Frame
	closed bool
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithLogger sets the logger used by the host and its frames.
func WithLogger(l *logrus.Entry) HostOption {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHost creates an empty host.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		logger: logging.Null(),
		frames: make(map[uuid.UUID]*Frame),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.WithComponent(h.logger, "window")
	return h
}

// Open opens a top-level frame with the given origin.
func (h *Host) Open(origin string, opts ...FrameOption) (*Frame, error) {
	return h.open(nil, origin, opts...)
}

func (h *Host) open(parent *Frame, origin string, opts ...FrameOption) (*Frame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHostClosed
	}

	f, err := newFrame(h, parent, origin, opts...)
	if err != nil {
		return nil, err
	}
	h.frames[f.id] = f
	h.logger.WithFields(logrus.Fields{
		"frame":  f.name,
		"origin": f.origin,
	}).Debug("frame opened")
	return f, nil
}

// Frame returns the open frame with the given id.
func (h *Host) Frame(id uuid.UUID) (*Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.frames[id]
	return f, ok
}

// Frames returns all open frames in no particular order.
func (h *Host) Frames() []*Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Frame, 0, len(h.frames))
	for _, f := range h.frames {
		out = append(out, f)
	}
	return out
}

// Close closes every frame and rejects further opens.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	frames := make([]*Frame, 0, len(h.frames))
	for _, f := range h.frames {
		frames = append(frames, f)
	}
	h.mu.Unlock()

	for _, f := range frames {
		_ = f.Close()
	}
	return nil
}

func (h *Host) forget(f *Frame) {
	h.mu.Lock()
	delete(h.frames, f.id)
	h.mu.Unlock()
}
