package pubsub

import (
	"reflect"
	"sync"

	"github.com/dshills/heaviside/internal/envelope"
	"github.com/dshills/heaviside/internal/window"
)

// Receiver feeds envelopes arriving on an event target into a hub.
// Create one with Hub.Listen and stop it with Close.
type Receiver struct {
	hub     *Hub
	target  window.EventTarget
	allowed map[string]struct{}

	mu     sync.Mutex
	remove func()
}

// Listen attaches a receiver to target. Every inbound message carrying
// the sentinel is dispatched to the hub's subscribers exactly as a local
// Publish would be; everything else is ignored.
//
// Sender origins are not checked unless allowed origins are configured on
// the hub or passed here.
func (h *Hub) Listen(target window.EventTarget, opts ...ReceiverOption) (*Receiver, error) {
	if target == nil {
		return nil, ErrNilTarget
	}

	cfg := receiverConfig{allowedOrigins: h.config.allowedOrigins}
	for _, opt := range opts {
		opt(&cfg)
	}

	allowed := make(map[string]struct{}, len(cfg.allowedOrigins))
	for _, o := range cfg.allowedOrigins {
		norm, err := window.NormalizeOrigin(o)
		if err != nil {
			return nil, err
		}
		allowed[norm] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if reflect.TypeOf(target).Comparable() {
		for _, r := range h.receivers {
			if reflect.TypeOf(r.target).Comparable() && r.target == target {
				return nil, ErrAlreadyListening
			}
		}
	}

	r := &Receiver{
		hub:     h,
		target:  target,
		allowed: allowed,
	}
	r.remove = target.AddMessageListener(r.handle)
	h.receivers = append(h.receivers, r)
	return r, nil
}

// Close detaches the receiver from its target. It is safe to call more
// than once.
func (r *Receiver) Close() error {
	r.detach()

	h := r.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, other := range h.receivers {
		if other == r {
			h.receivers = append(h.receivers[:i], h.receivers[i+1:]...)
			break
		}
	}
	return nil
}

func (r *Receiver) detach() {
	r.mu.Lock()
	remove := r.remove
	r.remove = nil
	r.mu.Unlock()

	if remove != nil {
		remove()
	}
}

// Attached reports whether the receiver is still listening.
func (r *Receiver) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove != nil
}

func (r *Receiver) handle(ev window.MessageEvent) {
	if !r.Attached() {
		return
	}
	h := r.hub

	env, ok := envelope.Decode(ev.Data)
	if !ok {
		h.rejected.Add(1)
		h.logger.WithField("origin", ev.Origin).Debug("ignoring message without sentinel")
		return
	}

	if len(r.allowed) > 0 {
		norm, err := window.NormalizeOrigin(ev.Origin)
		if _, allowed := r.allowed[norm]; err != nil || !allowed {
			h.rejected.Add(1)
			h.logger.WithField("origin", ev.Origin).Debug("ignoring envelope from disallowed origin")
			return
		}
	}

	key, _ := env.Key()
	h.received.Add(1)
	h.dispatch(Key(key), env.Payload())
}
