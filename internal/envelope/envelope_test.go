package envelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNew(t *testing.T) {
	env, err := New("topic", map[string]any{"a": 1})
	require.NoError(t, err)

	assert.True(t, env.Heaviside)
	assert.Equal(t, []any{"topic", map[string]any{"a": 1}}, env.Parts)

	key, ok := env.Key()
	assert.True(t, ok)
	assert.Equal(t, "topic", key)
}

func TestNew_NilPayloadNotAppended(t *testing.T) {
	env, err := New("topic", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"topic"}, env.Parts)
	assert.Nil(t, env.Payload())
}

func TestNew_EmptyKey(t *testing.T) {
	_, err := New("", "x")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestFromParts(t *testing.T) {
	parts := []any{"topic", "a", "b"}
	env, err := FromParts(parts)
	require.NoError(t, err)

	parts[1] = "mutated"
	assert.Equal(t, "a", env.Parts[1], "FromParts must copy its input")

	_, err = FromParts([]any{42})
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = FromParts(nil)
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestPayload(t *testing.T) {
	tests := []struct {
		name  string
		parts []any
		want  any
	}{
		{"key only", []any{"k"}, nil},
		{"single fragment", []any{"k", map[string]any{"a": 1}}, map[string]any{"a": 1}},
		{"single sequence fragment", []any{"k", []any{"x", "y"}}, []any{"x", "y"}},
		{"several fragments", []any{"k", "x", "y"}, []any{"x", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Envelope{Parts: tt.parts, Heaviside: true}
			assert.Equal(t, tt.want, env.Payload())
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	env, err := New("topic", map[string]any{"a": 1})
	require.NoError(t, err)

	b, err := json.Marshal(env)
	require.NoError(t, err)

	assert.True(t, gjson.GetBytes(b, SentinelField).Bool())
	assert.Equal(t, "topic", gjson.GetBytes(b, "data.0").String())
	assert.Equal(t, int64(1), gjson.GetBytes(b, "data.1.a").Int())
}

func TestParse(t *testing.T) {
	env, err := Parse([]byte(`{"_isHeaviside":true,"data":["topic",{"a":1}]}`))
	require.NoError(t, err)

	key, ok := env.Key()
	require.True(t, ok)
	assert.Equal(t, "topic", key)
	assert.Equal(t, map[string]any{"a": float64(1)}, env.Payload())
}

func TestParse_Rejects(t *testing.T) {
	inputs := map[string]string{
		"invalid json":      `{"_isHeaviside":`,
		"no sentinel":       `{"data":["topic"]}`,
		"false sentinel":    `{"_isHeaviside":false,"data":["topic"]}`,
		"array root":        `["topic",{"a":1}]`,
		"data not array":    `{"_isHeaviside":true,"data":"topic"}`,
		"empty data":        `{"_isHeaviside":true,"data":[]}`,
		"numeric key":       `{"_isHeaviside":true,"data":[1,2]}`,
		"empty key":         `{"_isHeaviside":true,"data":["",2]}`,
		"unrelated traffic": `{"type":"webpackOk"}`,
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(in))
			assert.ErrorIs(t, err, ErrNotEnvelope)
		})
	}
}

func TestSentinelTruthiness(t *testing.T) {
	tests := []struct {
		name     string
		wire     string
		sentinel any
		ok       bool
	}{
		{"true", `true`, true, true},
		{"one", `1`, float64(1), true},
		{"string", `"true"`, "true", true},
		{"false", `false`, false, false},
		{"zero", `0`, float64(0), false},
		{"empty string", `""`, "", false},
		{"null", `null`, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(`{"_isHeaviside":` + tt.wire + `,"data":["topic"]}`))
			assert.Equal(t, tt.ok, err == nil, "wire path")

			_, ok := Decode(map[string]any{SentinelField: tt.sentinel, DataField: []any{"topic"}})
			assert.Equal(t, tt.ok, ok, "object path")
		})
	}
}

func TestUnmarshalJSON(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"_isHeaviside":true,"data":["k","v"]}`), &env))
	assert.Equal(t, "v", env.Payload())

	err := json.Unmarshal([]byte(`{"data":["k"]}`), &env)
	assert.ErrorIs(t, err, ErrNotEnvelope)
}

func TestDecode(t *testing.T) {
	valid, err := New("topic", "x")
	require.NoError(t, err)
	wire, err := valid.MarshalJSON()
	require.NoError(t, err)

	tests := []struct {
		name string
		in   any
		ok   bool
	}{
		{"value", valid, true},
		{"pointer", &valid, true},
		{"nil pointer", (*Envelope)(nil), false},
		{"untagged value", Envelope{Parts: []any{"topic"}}, false},
		{"bytes", wire, true},
		{"raw message", json.RawMessage(wire), true},
		{"string", string(wire), true},
		{"object", map[string]any{SentinelField: true, DataField: []any{"topic", "x"}}, true},
		{"object without sentinel", map[string]any{DataField: []any{"topic"}}, false},
		{"plain string", "hello", false},
		{"plain slice", []any{"topic", "x"}, false},
		{"nil", nil, false},
		{"number", 12, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, ok := Decode(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				key, _ := env.Key()
				assert.Equal(t, "topic", key)
			}
		})
	}
}

func TestClone(t *testing.T) {
	inner := map[string]any{"a": 1}
	env, err := New("topic", inner)
	require.NoError(t, err)

	cloned, ok := env.Clone().(Envelope)
	require.True(t, ok)
	assert.True(t, cloned.Heaviside)

	inner["a"] = 2
	assert.Equal(t, map[string]any{"a": float64(1)}, cloned.Payload())
}

func TestClone_KeepsUntaggedFlag(t *testing.T) {
	env := Envelope{Parts: []any{"topic"}}
	cloned := env.Clone().(Envelope)
	assert.False(t, cloned.Heaviside)
	assert.Equal(t, []any{"topic"}, cloned.Parts)
}
