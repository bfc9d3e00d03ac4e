// Package envelope defines the message format exchanged between windows.
//
// An envelope is an ordered sequence whose first element is the channel key
// and whose remaining elements are payload fragments. The sequence is tagged
// with a sentinel flag that identifies it as ours among unrelated traffic on
// the same transport. On the wire it is JSON:
//
//	{"_isHeaviside":true,"data":["topic",{"a":1}]}
package envelope

import "errors"

// Wire field names.
const (
	SentinelField = "_isHeaviside"
	DataField     = "data"
)

var (
	// ErrNotEnvelope is returned when data does not carry the sentinel flag
	// or lacks a string channel key.
	ErrNotEnvelope = errors.New("not a heaviside envelope")

	// ErrEmptyKey is returned when building an envelope without a key.
	ErrEmptyKey = errors.New("envelope key is empty")
)

// Envelope is a sentinel-tagged key plus payload fragments.
type Envelope struct {
	// Parts holds the channel key followed by payload fragments.
	Parts []any

	// Heaviside is the sentinel flag.
	Heaviside bool
}

// New builds a tagged envelope for key. A nil payload is not appended.
func New(key string, payload any) (Envelope, error) {
	if key == "" {
		return Envelope{}, ErrEmptyKey
	}
	parts := []any{key}
	if payload != nil {
		parts = append(parts, payload)
	}
	return Envelope{Parts: parts, Heaviside: true}, nil
}

// FromParts builds a tagged envelope from a pre-built sequence.
// The slice is copied; the first element must be a non-empty string.
func FromParts(parts []any) (Envelope, error) {
	if len(parts) == 0 {
		return Envelope{}, ErrEmptyKey
	}
	if key, ok := parts[0].(string); !ok || key == "" {
		return Envelope{}, ErrEmptyKey
	}
	cp := make([]any, len(parts))
	copy(cp, parts)
	return Envelope{Parts: cp, Heaviside: true}, nil
}

// Key returns the channel key. ok is false when the first part is missing
// or is not a non-empty string.
func (e Envelope) Key() (key string, ok bool) {
	if len(e.Parts) == 0 {
		return "", false
	}
	key, ok = e.Parts[0].(string)
	return key, ok && key != ""
}

// Fragments returns the parts after the key.
func (e Envelope) Fragments() []any {
	if len(e.Parts) < 2 {
		return nil
	}
	return e.Parts[1:]
}

// Payload rebuilds the publish payload from the fragments after the key.
// No fragments yields nil, a single fragment is returned as is, and several
// fragments are returned as a sequence.
func (e Envelope) Payload() any {
	rest := e.Fragments()
	switch len(rest) {
	case 0:
		return nil
	case 1:
		return rest[0]
	default:
		out := make([]any, len(rest))
		copy(out, rest)
		return out
	}
}

// Valid reports whether e carries the sentinel and a usable key.
func (e Envelope) Valid() bool {
	if !e.Heaviside {
		return false
	}
	_, ok := e.Key()
	return ok
}
