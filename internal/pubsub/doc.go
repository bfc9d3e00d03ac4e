// Package pubsub provides the Heaviside hub: a channel-keyed publish/subscribe
// dispatcher that also carries messages across window boundaries.
//
// Independent pieces of code subscribe to a channel key and receive whatever
// is published to it, without holding references to each other. Publishers
// in another window reach them through the window's cross-origin messaging
// primitive.
//
// # Architecture
//
//	            Publish(key, payload)                PublishToWindow(win, key, payload)
//	                     │                                        │
//	                     ▼                                        ▼
//	┌────────────────────────────────┐          ┌─────────────────────────────┐
//	│           Hub.dispatch         │          │  envelope ["key", payload]  │
//	│  - registry snapshot           │          │  tagged _isHeaviside=true   │
//	│  - payload normalization       │          └─────────────────────────────┘
//	│  - reverse subscribe order     │                        │ window.PostMessage
//	└────────────────────────────────┘                        ▼
//	                     ▲                        ── other window's event loop ──
//	                     │                                        │
//	                     └──────────────── Receiver ◄─────────────┘
//
// # Dispatch order
//
// Subscribers fire in reverse subscription order: the most recently
// subscribed callback runs first. Dispatch walks a snapshot of the channel,
// so callbacks may subscribe and unsubscribe freely while it runs.
//
// # Payloads
//
// Payloads are normalized into positional callback arguments by the payload
// package: nil gives no arguments, a string gives one, a sequence is spread,
// and a map carrying the route field ("messageKey" by default) gives the
// route value followed by the whole map. A map without the route field gives
// no arguments, and so does one arriving from another window: the receiver
// rebuilds the payload from the envelope and normalizes it like a local
// publish.
//
// # Cross-window messaging
//
//	hub := pubsub.NewHub()
//	rcv, err := hub.Listen(frame)          // receive from other windows
//	defer rcv.Close()
//
//	hub.PublishToWindow(parent, "cart.updated", map[string]any{"items": 3},
//	    pubsub.WithTargetOrigin("https://shop.example"))
//
// The default target origin is "*", which hands the message to whatever
// document occupies the target window. Name an explicit origin for anything
// that should not leak. Receivers accept any sender origin unless allowed
// origins are configured; the sentinel flag only separates Heaviside traffic
// from other messages and is not authentication.
//
// # Failure behavior
//
// Subscribe with a nil callback returns ok=false. Unsubscribe of an unknown
// ID returns false. Publishing to an empty channel and receiving a
// non-Heaviside message do nothing. Subscriber panics are recovered per
// callback under PanicIsolate (the default); PanicPropagate restores the
// behavior where a panic aborts the rest of the dispatch.
package pubsub
