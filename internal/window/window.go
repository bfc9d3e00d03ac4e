// Package window abstracts the cross-window messaging primitive.
//
// A Window accepts messages addressed to a target origin, the way a browser
// window accepts postMessage. An EventTarget delivers inbound message events
// to listeners. The in-process Host and Frame types implement both with
// browser semantics: every frame has an origin and a single event-loop
// goroutine, delivery is asynchronous, a message is dropped when the target
// origin does not match, and message data is cloned when it supports it.
package window

import "errors"

var (
	// ErrFrameClosed is returned when posting to or scheduling on a closed frame.
	ErrFrameClosed = errors.New("frame is closed")

	// ErrHostClosed is returned when opening a frame on a closed host.
	ErrHostClosed = errors.New("host is closed")

	// ErrInvalidOrigin is returned for origins that cannot be serialized.
	ErrInvalidOrigin = errors.New("invalid origin")
)

// Window accepts posted messages.
type Window interface {
	// PostMessage queues data for delivery to the window if its origin
	// matches targetOrigin. A mismatch drops the message without error.
	PostMessage(data any, targetOrigin string) error
}

// MessageEvent is an inbound message.
type MessageEvent struct {
	// Data is the posted value.
	Data any

	// Origin is the serialized origin of the sender.
	Origin string

	// Source is a handle for replying to the sender. It may be nil.
	Source Window
}

// Listener handles inbound message events.
type Listener func(MessageEvent)

// EventTarget delivers inbound message events to listeners.
type EventTarget interface {
	// AddMessageListener registers l and returns a function that removes it.
	AddMessageListener(l Listener) (remove func())
}

// Cloner is implemented by message data that can produce a detached copy
// of itself. Frames deliver the clone instead of the original.
type Cloner interface {
	Clone() any
}

func cloneData(data any) any {
	if c, ok := data.(Cloner); ok {
		return c.Clone()
	}
	return data
}
