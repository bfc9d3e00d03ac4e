package pubsub

import (
	"fmt"

	"github.com/dshills/heaviside/internal/envelope"
	"github.com/dshills/heaviside/internal/window"
)

// PublishToWindow sends key and payload to another window. The envelope is
// [key] followed by payload when payload is non-nil, tagged with the
// sentinel, and posted to the target origin (WithTargetOrigin, else the
// hub default, else "*").
//
// Nothing is dispatched locally. Subscribers run only in windows whose
// receiver picks the message up, later, on their own event loop.
func (h *Hub) PublishToWindow(target window.Window, key string, p any, opts ...PostOption) error {
	if target == nil {
		return ErrNilWindow
	}
	env, err := envelope.New(key, p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return h.post(target, env, opts)
}

// PostParts sends a pre-built sequence: the channel key followed by payload
// fragments. The receiving hub treats a single fragment as the payload and
// several fragments as a sequence payload.
func (h *Hub) PostParts(target window.Window, parts []any, opts ...PostOption) error {
	if target == nil {
		return ErrNilWindow
	}
	env, err := envelope.FromParts(parts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return h.post(target, env, opts)
}

func (h *Hub) post(target window.Window, env envelope.Envelope, opts []PostOption) error {
	cfg := postConfig{targetOrigin: h.config.defaultTargetOrigin}
	for _, opt := range opts {
		opt(&cfg)
	}

	key, _ := env.Key()
	if err := target.PostMessage(env, cfg.targetOrigin); err != nil {
		return fmt.Errorf("post %q to %s: %w", key, cfg.targetOrigin, err)
	}

	h.posted.Add(1)
	h.logger.WithField("key", key).WithField("target_origin", cfg.targetOrigin).Debug("envelope posted")
	return nil
}
