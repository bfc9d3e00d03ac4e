package pubsub

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/dshills/heaviside/internal/logging"
	"github.com/dshills/heaviside/internal/payload"
	"github.com/dshills/heaviside/internal/pubsub/dispatch"
)

// Hub is a channel-keyed publish/subscribe dispatcher that can also send
// to and receive from other windows.
//
// Each Hub owns its registry; nothing is shared between instances except
// the subscription ID counter.
type Hub struct {
	registry   *Registry
	normalizer payload.Normalizer
	dispatcher *dispatch.SyncDispatcher
	config     hubConfig
	logger     *logrus.Entry

	mu        sync.Mutex
	receivers []*Receiver
	closed    bool

	// Stats
	published atomic.Uint64
	delivered atomic.Uint64
	panics    atomic.Uint64
	posted    atomic.Uint64
	received  atomic.Uint64
	rejected  atomic.Uint64
}

// NewHub creates a hub with the given options.
func NewHub(opts ...HubOption) *Hub {
	config := defaultHubConfig()
	for _, opt := range opts {
		opt(&config)
	}

	logger := config.logger
	if logger == nil {
		logger = logging.Null()
	}

	h := &Hub{
		registry:   NewRegistry(),
		normalizer: payload.New(config.routeField),
		config:     config,
		logger:     logging.WithComponent(logger, "pubsub"),
	}

	h.dispatcher = dispatch.NewSyncDispatcher(
		dispatch.WithIsolation(config.panicPolicy == PanicIsolate),
		dispatch.WithPanicHandler(func(key string, v any, stack []byte) {
			h.logger.WithFields(logrus.Fields{
				"key":   key,
				"panic": v,
				"stack": string(stack),
			}).Error("subscriber panicked")
		}),
	)

	return h
}

// Subscribe registers cb on the channel and returns its ID.
// A nil callback or an empty key fails softly: ok is false and nothing
// is registered.
func (h *Hub) Subscribe(key string, cb Callback) (id ID, ok bool) {
	k := Key(key)
	if cb == nil || !k.IsValid() {
		return 0, false
	}

	sub := newSubscription(k, cb)
	h.registry.Add(sub)
	return sub.ID(), true
}

// Unsubscribe removes the subscription with the given ID from whichever
// channel holds it. Returns false if there is none.
func (h *Hub) Unsubscribe(id ID) bool {
	return h.registry.Remove(id)
}

// Publish delivers payload to the channel's subscribers in this process.
// It returns after every subscriber has run. Publishing to a channel
// without subscribers does nothing.
func (h *Hub) Publish(key string, p any) {
	h.published.Add(1)
	h.dispatch(Key(key), p)
}

// dispatch invokes every subscriber of key, most recent first, with the
// normalized payload. It walks a snapshot of the channel: callbacks added
// during the walk wait for the next publish, and callbacks removed during
// the walk still run this time.
func (h *Hub) dispatch(key Key, p any) {
	if !key.IsValid() {
		return
	}

	subs := h.registry.Snapshot(key)
	if len(subs) == 0 {
		return
	}

	args := h.normalizer.Args(p)
	fns := make([]dispatch.Func, len(subs))
	for i, sub := range subs {
		fns[i] = dispatch.Func(sub.callback)
	}

	results := h.dispatcher.Dispatch(string(key), fns, args)
	for i, result := range results {
		if !result.IsPanic() {
			h.delivered.Add(1)
			continue
		}
		h.panics.Add(1)
		if h.config.panicHandler != nil {
			h.config.panicHandler(&PanicError{
				Key:            key,
				SubscriptionID: subs[i].ID(),
				Value:          result.PanicValue,
			})
		}
	}
}

// Count returns the total number of subscriptions.
func (h *Hub) Count() int {
	return h.registry.Count()
}

// CountByKey returns the number of subscriptions on a channel.
func (h *Hub) CountByKey(key string) int {
	return h.registry.CountByKey(Key(key))
}

// Keys returns the channels that have subscribers.
func (h *Hub) Keys() []Key {
	return h.registry.Keys()
}

// PanicPolicy returns the hub's panic policy.
func (h *Hub) PanicPolicy() PanicPolicy {
	return h.config.panicPolicy
}

// Close detaches every receiver and clears all subscriptions.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	receivers := h.receivers
	h.receivers = nil
	h.mu.Unlock()

	for _, r := range receivers {
		r.detach()
	}
	h.registry.Clear()
	return nil
}

// Stats returns current hub statistics.
func (h *Hub) Stats() Stats {
	ds := h.dispatcher.Stats()
	return Stats{
		Published:         h.published.Load(),
		Delivered:         h.delivered.Load(),
		Panics:            h.panics.Load(),
		Posted:            h.posted.Load(),
		Received:          h.received.Load(),
		Rejected:          h.rejected.Load(),
		Subscriptions:     h.registry.Count(),
		AvgCallbackTimeNs: ds.AvgDuration.Nanoseconds(),
	}
}

// ResetStats zeroes the hub counters and the dispatcher timings.
// Subscriptions are not affected.
func (h *Hub) ResetStats() {
	h.published.Store(0)
	h.delivered.Store(0)
	h.panics.Store(0)
	h.posted.Store(0)
	h.received.Store(0)
	h.rejected.Store(0)
	h.dispatcher.ResetStats()
}

// Stats contains hub statistics.
type Stats struct {
	// Published is the number of local Publish calls.
	Published uint64

	// Delivered is the number of callbacks that returned normally.
	Delivered uint64

	// Panics is the number of subscriber panics recovered.
	Panics uint64

	// Posted is the number of envelopes handed to a window.
	Posted uint64

	// Received is the number of inbound envelopes accepted.
	Received uint64

	// Rejected is the number of inbound messages ignored.
	Rejected uint64

	// Subscriptions is the current number of subscriptions.
	Subscriptions int

	// AvgCallbackTimeNs is the average callback duration.
	AvgCallbackTimeNs int64
}
