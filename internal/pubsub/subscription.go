package pubsub

import "sync/atomic"

// Key names a channel. Keys match by exact string equality.
type Key string

// String returns the key as a string.
func (k Key) String() string {
	return string(k)
}

// IsValid returns true if the key is non-empty.
func (k Key) IsValid() bool {
	return k != ""
}

// ID identifies a subscription. IDs are allocated from a process-wide
// counter and are never reused, so an ID alone is enough to unsubscribe.
type ID uint64

// Callback receives the normalized payload as positional arguments.
type Callback func(args ...any)

// lastID is shared by every Hub so IDs stay unique across instances.
var lastID atomic.Uint64

// nextID returns the next subscription ID. The first ID is 0.
func nextID() ID {
	return ID(lastID.Add(1) - 1)
}

// subscription is a single callback registration on a channel.
type subscription struct {
	id       ID
	key      Key
	callback Callback
}

// newSubscription creates a new subscription with a fresh ID.
func newSubscription(key Key, cb Callback) *subscription {
	return &subscription{
		id:       nextID(),
		key:      key,
		callback: cb,
	}
}

// ID returns the subscription ID.
func (s *subscription) ID() ID {
	return s.id
}

// Key returns the subscribed channel key.
func (s *subscription) Key() Key {
	return s.key
}
