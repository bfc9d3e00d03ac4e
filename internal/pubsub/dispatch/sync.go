package dispatch

import (
	"sync/atomic"
	"time"
)

// SyncDispatcher invokes callbacks in the caller's goroutine.
//
// With isolation on, each callback runs under its own recovery so one
// panicking subscriber cannot stop delivery to the rest. With isolation
// off, a panic unwinds out of Dispatch and the remaining callbacks are
// not invoked.
type SyncDispatcher struct {
	executor *Executor
	isolate  bool

	// Stats
	dispatched  atomic.Uint64
	invoked     atomic.Uint64
	succeeded   atomic.Uint64
	panicked    atomic.Uint64
	totalTimeNs atomic.Int64
}

// NewSyncDispatcher creates a new synchronous dispatcher with isolation on.
func NewSyncDispatcher(opts ...SyncOption) *SyncDispatcher {
	d := &SyncDispatcher{
		executor: NewExecutor(),
		isolate:  true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SyncOption configures a SyncDispatcher.
type SyncOption func(*SyncDispatcher)

// WithPanicHandler sets the panic handler used under isolation.
func WithPanicHandler(h PanicHandler) SyncOption {
	return func(d *SyncDispatcher) {
		d.executor = NewExecutor(WithExecutorPanicHandler(h))
	}
}

// WithIsolation turns per-callback panic recovery on or off.
func WithIsolation(isolate bool) SyncOption {
	return func(d *SyncDispatcher) {
		d.isolate = isolate
	}
}

// Isolating reports whether callbacks run under recovery.
func (d *SyncDispatcher) Isolating() bool {
	return d.isolate
}

// Dispatch invokes fns in order. Every callback receives its own copy of
// args so one subscriber rewriting its arguments cannot affect the next.
func (d *SyncDispatcher) Dispatch(key string, fns []Func, args []any) []Result {
	d.dispatched.Add(1)
	results := make([]Result, 0, len(fns))

	for _, fn := range fns {
		callArgs := make([]any, len(args))
		copy(callArgs, args)

		var result Result
		if d.isolate {
			result = d.executor.Execute(key, fn, callArgs)
		} else {
			result = d.invoke(fn, callArgs)
		}
		d.record(result)
		results = append(results, result)
	}

	return results
}

// invoke calls fn without recovery. If fn panics, the invocation is still
// counted before the panic continues up the stack.
func (d *SyncDispatcher) invoke(fn Func, args []any) Result {
	start := time.Now()
	completed := false
	defer func() {
		if !completed {
			d.invoked.Add(1)
			d.totalTimeNs.Add(time.Since(start).Nanoseconds())
		}
	}()

	fn(args...)
	completed = true
	return Result{Success: true, Duration: time.Since(start)}
}

func (d *SyncDispatcher) record(r Result) {
	d.invoked.Add(1)
	d.totalTimeNs.Add(r.Duration.Nanoseconds())
	switch {
	case r.Panicked:
		d.panicked.Add(1)
	case r.Success:
		d.succeeded.Add(1)
	}
}

// Stats returns dispatch statistics.
// Note: Stats are read without a mutex, so values may be slightly inconsistent
// if stats are being updated concurrently.
func (d *SyncDispatcher) Stats() SyncDispatcherStats {
	invoked := d.invoked.Load()
	totalNs := d.totalTimeNs.Load()

	var avgNs int64
	if invoked > 0 {
		avgNs = totalNs / int64(invoked)
	}

	return SyncDispatcherStats{
		Dispatched:    d.dispatched.Load(),
		Invoked:       invoked,
		Succeeded:     d.succeeded.Load(),
		Panicked:      d.panicked.Load(),
		TotalDuration: time.Duration(totalNs),
		AvgDuration:   time.Duration(avgNs),
	}
}

// ResetStats resets all statistics to zero.
func (d *SyncDispatcher) ResetStats() {
	d.dispatched.Store(0)
	d.invoked.Store(0)
	d.succeeded.Store(0)
	d.panicked.Store(0)
	d.totalTimeNs.Store(0)
}

// SyncDispatcherStats contains statistics for a sync dispatcher.
type SyncDispatcherStats struct {
	// Dispatched is the total number of Dispatch calls.
	Dispatched uint64

	// Invoked is the number of callbacks started.
	Invoked uint64

	// Succeeded is the number of callbacks that returned normally.
	Succeeded uint64

	// Panicked is the number of recovered panics.
	Panicked uint64

	// TotalDuration is the cumulative time spent in callbacks.
	TotalDuration time.Duration

	// AvgDuration is the average callback execution time.
	AvgDuration time.Duration
}
