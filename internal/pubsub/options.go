package pubsub

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dshills/heaviside/internal/payload"
	"github.com/dshills/heaviside/internal/window"
)

// PanicPolicy decides what a subscriber panic does to the rest of a dispatch.
type PanicPolicy int

const (
	// PanicIsolate recovers each callback's panic, reports it, and keeps
	// delivering to the remaining subscribers.
	PanicIsolate PanicPolicy = iota

	// PanicPropagate lets the panic escape Publish, aborting delivery to
	// subscribers that have not run yet.
	PanicPropagate
)

// String returns the policy name.
func (p PanicPolicy) String() string {
	switch p {
	case PanicIsolate:
		return "isolate"
	case PanicPropagate:
		return "propagate"
	default:
		return "unknown"
	}
}

// ParsePanicPolicy parses "isolate" or "propagate".
func ParsePanicPolicy(s string) (PanicPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "isolate":
		return PanicIsolate, nil
	case "propagate":
		return PanicPropagate, nil
	default:
		return PanicIsolate, fmt.Errorf("unknown panic policy %q", s)
	}
}

// PanicHandler is called for every subscriber panic recovered under
// PanicIsolate.
type PanicHandler func(err *PanicError)

// HubOption configures a Hub.
type HubOption func(*hubConfig)

// hubConfig contains configuration for a hub.
type hubConfig struct {
	routeField          string
	panicPolicy         PanicPolicy
	panicHandler        PanicHandler
	defaultTargetOrigin string
	allowedOrigins      []string
	logger              *logrus.Entry
}

// defaultHubConfig returns the default configuration.
func defaultHubConfig() hubConfig {
	return hubConfig{
		routeField:          payload.DefaultRouteField,
		panicPolicy:         PanicIsolate,
		defaultTargetOrigin: window.WildcardOrigin,
	}
}

// WithRouteField sets the map key used for envelope-style payloads.
func WithRouteField(field string) HubOption {
	return func(c *hubConfig) {
		if field != "" {
			c.routeField = field
		}
	}
}

// WithPanicPolicy sets how subscriber panics are handled.
func WithPanicPolicy(p PanicPolicy) HubOption {
	return func(c *hubConfig) {
		c.panicPolicy = p
	}
}

// WithPanicHandler sets the callback for recovered subscriber panics.
func WithPanicHandler(h PanicHandler) HubOption {
	return func(c *hubConfig) {
		c.panicHandler = h
	}
}

// WithDefaultTargetOrigin sets the origin used by cross-window publishes
// that do not name one. The built-in default is the wildcard, which lets
// any document loaded in the target window read the message.
func WithDefaultTargetOrigin(origin string) HubOption {
	return func(c *hubConfig) {
		if origin != "" {
			c.defaultTargetOrigin = origin
		}
	}
}

// WithAllowedOrigins restricts every receiver created by the hub to
// messages from the given sender origins. No origins means any sender.
func WithAllowedOrigins(origins ...string) HubOption {
	return func(c *hubConfig) {
		c.allowedOrigins = append([]string(nil), origins...)
	}
}

// WithLogger sets the hub's logger. Hubs log nothing without one.
func WithLogger(l *logrus.Entry) HubOption {
	return func(c *hubConfig) {
		c.logger = l
	}
}

// PostOption configures a single cross-window publish.
type PostOption func(*postConfig)

type postConfig struct {
	targetOrigin string
}

// WithTargetOrigin addresses a cross-window publish to a specific origin.
func WithTargetOrigin(origin string) PostOption {
	return func(c *postConfig) {
		if origin != "" {
			c.targetOrigin = origin
		}
	}
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*receiverConfig)

type receiverConfig struct {
	allowedOrigins []string
}

// WithReceiverAllowedOrigins overrides the hub's allowed sender origins
// for one receiver.
func WithReceiverAllowedOrigins(origins ...string) ReceiverOption {
	return func(c *receiverConfig) {
		c.allowedOrigins = append([]string(nil), origins...)
	}
}
