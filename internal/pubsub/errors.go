package pubsub

import "errors"

// Sentinel errors for the hub. Subscribe, Unsubscribe and Publish never
// return errors; these come from the cross-window paths.
var (
	// ErrInvalidKey is returned when a cross-window publish has no channel key.
	ErrInvalidKey = errors.New("invalid channel key")

	// ErrNilWindow is returned when a cross-window publish has no target.
	ErrNilWindow = errors.New("target window is nil")

	// ErrNilTarget is returned when Listen is given no event target.
	ErrNilTarget = errors.New("event target is nil")

	// ErrAlreadyListening is returned when Listen is called twice for the
	// same event target.
	ErrAlreadyListening = errors.New("hub is already listening on this target")

	// ErrHubClosed is returned by Listen after Close.
	ErrHubClosed = errors.New("hub is closed")
)

// PanicError describes a subscriber panic recovered under PanicIsolate.
type PanicError struct {
	// Key is the channel being dispatched.
	Key Key

	// SubscriptionID identifies the callback that panicked.
	SubscriptionID ID

	// Value is the value passed to panic().
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return "subscriber panic on channel " + string(e.Key)
}
