package window

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Frame is an in-process window with its own origin and event loop.
//
// All listeners and every function passed to Do run on the frame's loop
// goroutine, one at a time, in the order they were queued. Code that owns
// per-frame state (a hub, a Lua state) should only touch it from there.
type Frame struct {
	id     uuid.UUID
	name   string
	origin string
	parent *Frame
	host   *Host
	logger *logrus.Entry

	mu        sync.Mutex
	queue     []func()
	listeners []listenerEntry
	nextLID   uint64
	closed    bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// FrameOption configures a frame.
type FrameOption func(*Frame)

// WithName sets a human-readable frame name.
func WithName(name string) FrameOption {
	return func(f *Frame) {
		f.name = name
	}
}

func newFrame(h *Host, parent *Frame, origin string, opts ...FrameOption) (*Frame, error) {
	norm, err := NormalizeOrigin(origin)
	if err != nil {
		return nil, err
	}
	if norm == WildcardOrigin {
		return nil, fmt.Errorf("%w: a frame cannot have the wildcard origin", ErrInvalidOrigin)
	}

	f := &Frame{
		id:     uuid.New(),
		origin: norm,
		parent: parent,
		host:   h,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.name == "" {
		f.name = f.id.String()
	}
	f.logger = h.logger.WithFields(logrus.Fields{
		"frame":  f.name,
		"origin": f.origin,
	})

	go f.loop()
	return f, nil
}

// ID returns the frame's unique identifier.
func (f *Frame) ID() uuid.UUID {
	return f.id
}

// Name returns the frame name.
func (f *Frame) Name() string {
	return f.name
}

// Origin returns the frame's serialized origin.
func (f *Frame) Origin() string {
	return f.origin
}

// OpenChild opens a frame nested in f.
func (f *Frame) OpenChild(origin string, opts ...FrameOption) (*Frame, error) {
	return f.host.open(f, origin, opts...)
}

// Parent returns a handle to the parent frame as seen from f,
// or nil for a top-level frame.
func (f *Frame) Parent() Window {
	if f.parent == nil {
		return nil
	}
	return f.Ref(f.parent)
}

// Ref returns a handle for posting from f to target. Messages sent through
// it carry f's origin and a Source handle pointing back at f.
func (f *Frame) Ref(target *Frame) Window {
	return &frameRef{from: f, to: target}
}

// PostMessage posts data to f from outside any frame. The event carries
// an empty origin and no source.
func (f *Frame) PostMessage(data any, targetOrigin string) error {
	return f.post(nil, data, targetOrigin)
}

// Deliver queues ev for the frame's listeners without an origin check.
// Transports that have already routed a message use it.
func (f *Frame) Deliver(ev MessageEvent) error {
	return f.enqueue(func() {
		f.fire(ev)
	})
}

// AddMessageListener registers l. Listeners run on the frame's loop in
// registration order. The returned function removes l and is safe to call
// more than once.
func (f *Frame) AddMessageListener(l Listener) func() {
	f.mu.Lock()
	f.nextLID++
	id := f.nextLID
	f.listeners = append(f.listeners, listenerEntry{id: id, fn: l})
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, e := range f.listeners {
			if e.id == id {
				f.listeners = append(f.listeners[:i:i], f.listeners[i+1:]...)
				return
			}
		}
	}
}

// Do schedules fn on the frame's loop.
func (f *Frame) Do(fn func()) error {
	return f.enqueue(fn)
}

// Run schedules fn on the frame's loop and waits for it to finish.
// It must not be called from the frame's own loop.
func (f *Frame) Run(fn func()) error {
	finished := make(chan struct{})
	if err := f.enqueue(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-f.done:
		return ErrFrameClosed
	}
}

// Close stops the event loop. Queued work that has not started is dropped.
// Like Run, it must not be called from the frame's own loop.
func (f *Frame) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		<-f.done
		return nil
	}
	f.closed = true
	f.queue = nil
	f.mu.Unlock()

	close(f.quit)
	<-f.done
	f.host.forget(f)
	return nil
}

// Closed reports whether Close has been called.
func (f *Frame) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Frame) post(from *Frame, data any, targetOrigin string) error {
	if targetOrigin == "" {
		return fmt.Errorf("%w: empty target origin", ErrInvalidOrigin)
	}
	if targetOrigin != WildcardOrigin {
		if _, err := NormalizeOrigin(targetOrigin); err != nil {
			return err
		}
	}
	if f.Closed() {
		return ErrFrameClosed
	}
	if !OriginMatches(targetOrigin, f.origin) {
		f.logger.WithField("target_origin", targetOrigin).Debug("dropping message: target origin mismatch")
		return nil
	}

	ev := MessageEvent{Data: cloneData(data)}
	if from != nil {
		ev.Origin = from.origin
		ev.Source = f.Ref(from)
	}
	return f.Deliver(ev)
}

func (f *Frame) enqueue(task func()) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFrameClosed
	}
	f.queue = append(f.queue, task)
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
	return nil
}

func (f *Frame) next() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || len(f.queue) == 0 {
		return nil
	}
	task := f.queue[0]
	f.queue[0] = nil
	f.queue = f.queue[1:]
	return task
}

func (f *Frame) loop() {
	defer close(f.done)
	for {
		select {
		case <-f.quit:
			return
		case <-f.wake:
		}
		for task := f.next(); task != nil; task = f.next() {
			f.runTask(task)
		}
	}
}

// runTask keeps the loop alive when a task or listener panics.
func (f *Frame) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("uncaught panic in frame task")
		}
	}()
	task()
}

func (f *Frame) fire(ev MessageEvent) {
	f.mu.Lock()
	snapshot := make([]listenerEntry, len(f.listeners))
	copy(snapshot, f.listeners)
	f.mu.Unlock()

	for _, e := range snapshot {
		fn := e.fn
		f.runTask(func() { fn(ev) })
	}
}

// frameRef is one frame's handle on another.
type frameRef struct {
	from *Frame
	to   *Frame
}

func (r *frameRef) PostMessage(data any, targetOrigin string) error {
	return r.to.post(r.from, data, targetOrigin)
}
