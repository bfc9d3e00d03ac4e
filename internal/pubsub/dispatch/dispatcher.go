package dispatch

import "time"

// Func is a subscriber callback. It mirrors pubsub.Callback to avoid a
// circular import.
type Func func(args ...any)

// Result represents the outcome of one callback invocation.
type Result struct {
	// Success is true if the callback returned normally.
	Success bool

	// Panicked is true if the callback panicked and the panic was recovered.
	Panicked bool

	// PanicValue is the value passed to panic(), if Panicked is true.
	PanicValue any

	// PanicStack is the stack trace at the point of panic.
	PanicStack []byte

	// Duration is how long the callback took to execute.
	Duration time.Duration
}

// IsSuccess returns true if the callback completed without panicking.
func (r Result) IsSuccess() bool {
	return r.Success && !r.Panicked
}

// IsPanic returns true if the callback panicked.
func (r Result) IsPanic() bool {
	return r.Panicked
}

// PanicHandler is called when a callback panics under recovery.
// It receives the channel key, the panic value, and the stack trace.
type PanicHandler func(key string, panicValue any, stack []byte)

// defaultPanicHandler is a no-op panic handler.
func defaultPanicHandler(string, any, []byte) {}
