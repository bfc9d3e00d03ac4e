package bridge

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dshills/heaviside/internal/window"
)

type listenerEntry struct {
	id int
	fn window.Listener
}

// listenerSet fans events out to listeners one event at a time, so
// listeners never run concurrently even when several peers are reading.
type listenerSet struct {
	mu      sync.Mutex
	nextID  int
	entries []listenerEntry

	emitMu sync.Mutex
	logger *logrus.Entry
}

func (s *listenerSet) add(l window.Listener) func() {
	if l == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.entries = append(s.entries, listenerEntry{id: id, fn: l})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.entries {
			if e.id == id {
				s.entries = append(s.entries[:i], s.entries[i+1:]...)
				return
			}
		}
	}
}

func (s *listenerSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *listenerSet) emit(ev window.MessageEvent) {
	s.mu.Lock()
	snapshot := make([]listenerEntry, len(s.entries))
	copy(snapshot, s.entries)
	s.mu.Unlock()

	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	for _, e := range snapshot {
		s.call(e.fn, ev)
	}
}

func (s *listenerSet) call(fn window.Listener, ev window.MessageEvent) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.WithField("panic", r).Error("message listener panicked")
		}
	}()
	fn(ev)
}
