package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/heaviside/internal/payload"
)

// MarshalJSON encodes the envelope in wire form.
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := []byte(`{}`)
	out, err := sjson.SetBytes(out, SentinelField, e.Heaviside)
	if err != nil {
		return nil, fmt.Errorf("set sentinel: %w", err)
	}
	parts := e.Parts
	if parts == nil {
		parts = []any{}
	}
	out, err = sjson.SetBytes(out, DataField, parts)
	if err != nil {
		return nil, fmt.Errorf("set data: %w", err)
	}
	return out, nil
}

// UnmarshalJSON decodes wire form. Data that is valid JSON but not an
// envelope yields ErrNotEnvelope.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	env, err := Parse(b)
	if err != nil {
		return err
	}
	*e = env
	return nil
}

// Parse decodes a wire-form envelope. Anything without a truthy sentinel or
// a string key in the first data element is rejected. The sentinel follows
// payload.Truthy, the same rule Decode applies to decoded objects.
func Parse(b []byte) (Envelope, error) {
	if !gjson.ValidBytes(b) {
		return Envelope{}, fmt.Errorf("%w: invalid json", ErrNotEnvelope)
	}
	root := gjson.ParseBytes(b)
	if !root.IsObject() || !payload.Truthy(root.Get(SentinelField).Value()) {
		return Envelope{}, ErrNotEnvelope
	}

	data := root.Get(DataField)
	if !data.IsArray() {
		return Envelope{}, fmt.Errorf("%w: %s is not an array", ErrNotEnvelope, DataField)
	}
	elems := data.Array()
	if len(elems) == 0 || elems[0].Type != gjson.String || elems[0].Str == "" {
		return Envelope{}, fmt.Errorf("%w: missing channel key", ErrNotEnvelope)
	}

	parts := make([]any, len(elems))
	for i, el := range elems {
		parts[i] = el.Value()
	}
	return Envelope{Parts: parts, Heaviside: true}, nil
}

// Decode extracts an envelope from inbound message data of any shape.
// It accepts Envelope values and pointers, wire-form JSON as []byte,
// json.RawMessage or string, and already-decoded wire objects.
func Decode(data any) (Envelope, bool) {
	switch v := data.(type) {
	case Envelope:
		return v, v.Valid()
	case *Envelope:
		if v == nil {
			return Envelope{}, false
		}
		return *v, v.Valid()
	case []byte:
		env, err := Parse(v)
		return env, err == nil
	case json.RawMessage:
		env, err := Parse(v)
		return env, err == nil
	case string:
		env, err := Parse([]byte(v))
		return env, err == nil
	case map[string]any:
		return decodeObject(v)
	}
	return Envelope{}, false
}

func decodeObject(m map[string]any) (Envelope, bool) {
	if !payload.Truthy(m[SentinelField]) {
		return Envelope{}, false
	}
	parts, ok := m[DataField].([]any)
	if !ok {
		return Envelope{}, false
	}
	env := Envelope{Parts: parts, Heaviside: true}
	return env, env.Valid()
}

// Clone returns an independent copy of e by round-tripping it through the
// wire encoding, the way a structured clone detaches data from the sender.
// Numbers come back as float64. Parts that cannot be encoded fall back to a
// shallow copy.
func (e Envelope) Clone() any {
	b, err := e.MarshalJSON()
	if err != nil {
		cp := make([]any, len(e.Parts))
		copy(cp, e.Parts)
		return Envelope{Parts: cp, Heaviside: e.Heaviside}
	}
	elems := gjson.GetBytes(b, DataField).Array()
	parts := make([]any, len(elems))
	for i, el := range elems {
		parts[i] = el.Value()
	}
	return Envelope{Parts: parts, Heaviside: e.Heaviside}
}
