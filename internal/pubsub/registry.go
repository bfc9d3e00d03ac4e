package pubsub

import (
	"sort"
	"sync"
)

// Registry holds subscriptions per channel key in subscribe order.
// It is safe for concurrent access; callers never hold its lock while
// callbacks run.
type Registry struct {
	mu   sync.RWMutex
	subs map[Key][]*subscription
	byID map[ID]Key
}

// NewRegistry creates an empty subscription registry.
func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[Key][]*subscription),
		byID: make(map[ID]Key),
	}
}

// Add appends a subscription to its channel.
func (r *Registry) Add(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs[sub.Key()] = append(r.subs[sub.Key()], sub)
	r.byID[sub.ID()] = sub.Key()
}

// Remove removes the subscription with the given ID.
// Returns false if no channel holds it.
func (r *Registry) Remove(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, exists := r.byID[id]
	if !exists {
		return false
	}
	delete(r.byID, id)

	subs := r.subs[key]
	for i, s := range subs {
		if s.ID() == id {
			r.subs[key] = append(subs[:i], subs[i+1:]...)
			break
		}
	}

	// Clean up empty channels
	if len(r.subs[key]) == 0 {
		delete(r.subs, key)
	}

	return true
}

// Snapshot returns the channel's subscriptions in dispatch order: most
// recently subscribed first. The result is a copy, so subscribing or
// unsubscribing while walking it has no effect on the walk.
func (r *Registry) Snapshot(key Key) []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.subs[key]
	if len(subs) == 0 {
		return nil
	}

	result := make([]*subscription, len(subs))
	for i, s := range subs {
		result[len(subs)-1-i] = s
	}
	return result
}

// Contains reports whether a subscription with the given ID exists.
func (r *Registry) Contains(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byID[id]
	return ok
}

// Count returns the total number of subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byID)
}

// CountByKey returns the number of subscriptions on a channel.
func (r *Registry) CountByKey(key Key) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.subs[key])
}

// Keys returns all channels with at least one subscription, sorted.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.subs) == 0 {
		return nil
	}

	keys := make([]Key, 0, len(r.subs))
	for k := range r.subs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Clear removes all subscriptions.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs = make(map[Key][]*subscription)
	r.byID = make(map[ID]Key)
}
