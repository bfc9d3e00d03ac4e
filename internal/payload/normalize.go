// Package payload converts publish payloads into the positional argument
// lists handed to subscriber callbacks.
//
// The same normalization runs for local publishes and for envelopes that
// arrive from another window, so a subscriber sees identical arguments no
// matter which transport carried the message.
//
//	nil                         -> ()
//	"text"                      -> ("text")
//	[]any{a, b}                 -> (a, b)
//	{"messageKey": "x", ...}    -> ("x", {"messageKey": "x", ...})
//	anything else               -> ()
package payload

import "reflect"

// DefaultRouteField is the map key inspected for envelope-style payloads.
const DefaultRouteField = "messageKey"

// Routed is implemented by structured payloads that carry their own route
// value. RouteKey returns the value placed first in the argument list.
type Routed interface {
	RouteKey() any
}

// Normalizer maps payloads to argument lists.
// The zero value uses DefaultRouteField.
type Normalizer struct {
	// RouteField is the map key holding the route value.
	RouteField string
}

// New creates a normalizer for the given route field.
// An empty field selects DefaultRouteField.
func New(routeField string) Normalizer {
	return Normalizer{RouteField: routeField}
}

// Args returns the positional arguments for p.
// The result is never nil.
func (n Normalizer) Args(p any) []any {
	switch v := p.(type) {
	case nil:
		return []any{}
	case string:
		return []any{v}
	case []any:
		return v
	case []byte:
		return []any{}
	case Routed:
		key := v.RouteKey()
		if !Truthy(key) {
			return []any{}
		}
		return []any{key, v}
	case map[string]any:
		key, ok := v[n.routeField()]
		if !ok || !Truthy(key) {
			return []any{}
		}
		return []any{key, v}
	}

	rv := reflect.ValueOf(p)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		args := make([]any, rv.Len())
		for i := range args {
			args[i] = rv.Index(i).Interface()
		}
		return args
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return []any{}
		}
		key := rv.MapIndex(reflect.ValueOf(n.routeField()).Convert(rv.Type().Key()))
		if !key.IsValid() || !Truthy(key.Interface()) {
			return []any{}
		}
		return []any{key.Interface(), p}
	}
	return []any{}
}

func (n Normalizer) routeField() string {
	if n.RouteField == "" {
		return DefaultRouteField
	}
	return n.RouteField
}

// Args normalizes p with the default route field.
func Args(p any) []any {
	return Normalizer{}.Args(p)
}
