package pubsub

import (
	"reflect"
	"testing"
)

func TestHub_Subscribe(t *testing.T) {
	h := NewHub()

	id1, ok := h.Subscribe("chat", noop)
	if !ok {
		t.Fatal("expected subscribe to succeed")
	}
	id2, ok := h.Subscribe("chat", noop)
	if !ok {
		t.Fatal("expected subscribe to succeed")
	}
	if id2 <= id1 {
		t.Errorf("expected increasing ids, got %d then %d", id1, id2)
	}
	if h.CountByKey("chat") != 2 {
		t.Errorf("expected 2 subscriptions, got %d", h.CountByKey("chat"))
	}
}

func TestHub_Subscribe_SoftFailure(t *testing.T) {
	h := NewHub()

	if _, ok := h.Subscribe("chat", nil); ok {
		t.Error("expected nil callback to fail")
	}
	if _, ok := h.Subscribe("", noop); ok {
		t.Error("expected empty key to fail")
	}
	if h.Count() != 0 {
		t.Errorf("expected nothing registered, got %d", h.Count())
	}
}

func TestHub_IDsUniqueAcrossHubs(t *testing.T) {
	a := NewHub()
	b := NewHub()

	id1, _ := a.Subscribe("k", noop)
	id2, _ := b.Subscribe("k", noop)
	if id1 == id2 {
		t.Errorf("hubs allocated the same id %d", id1)
	}
	if b.Unsubscribe(id1) {
		t.Error("hub removed a subscription it does not own")
	}
}

func TestHub_PublishReverseOrder(t *testing.T) {
	h := NewHub()

	var order []int
	for i := 1; i <= 4; i++ {
		n := i
		h.Subscribe("chat", func(...any) { order = append(order, n) })
	}

	h.Publish("chat", nil)

	if !reflect.DeepEqual(order, []int{4, 3, 2, 1}) {
		t.Errorf("order = %v, want [4 3 2 1]", order)
	}
}

func TestHub_PublishArguments(t *testing.T) {
	routed := map[string]any{"messageKey": "x", "extra": 1}

	tests := []struct {
		name    string
		payload any
		want    []any
	}{
		{"absent", nil, []any{}},
		{"string", "hello", []any{"hello"}},
		{"sequence", []any{"a", "b"}, []any{"a", "b"}},
		{"routed structure", routed, []any{"x", routed}},
		{"unrouted structure", map[string]any{"a": 1}, []any{}},
		{"other", 3.5, []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub()
			var got []any
			calls := 0
			h.Subscribe("topic", func(args ...any) {
				calls++
				got = args
			})

			h.Publish("topic", tt.payload)

			if calls != 1 {
				t.Fatalf("expected 1 call, got %d", calls)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("args = %#v, want %#v", got, tt.want)
			}
			for i := range got {
				if !reflect.DeepEqual(got[i], tt.want[i]) {
					t.Errorf("arg %d = %#v, want %#v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestHub_PublishCustomRouteField(t *testing.T) {
	h := NewHub(WithRouteField("type"))

	var got []any
	h.Subscribe("ui", func(args ...any) { got = args })
	h.Publish("ui", map[string]any{"type": "resize"})

	if len(got) != 2 || got[0] != "resize" {
		t.Errorf("args = %#v, want route value first", got)
	}
}

func TestHub_PublishNoSubscribers(t *testing.T) {
	h := NewHub()
	h.Publish("nobody", "hello")
	h.Publish("", "hello")

	if s := h.Stats(); s.Delivered != 0 {
		t.Errorf("expected no deliveries, got %d", s.Delivered)
	}
}

func TestHub_InvokesExactlyN(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		h := NewHub()
		calls := 0
		for i := 0; i < n; i++ {
			h.Subscribe("k", func(...any) { calls++ })
		}
		h.Subscribe("other", func(...any) { t.Error("wrong channel invoked") })

		h.Publish("k", nil)
		if calls != n {
			t.Errorf("with %d subscribers got %d calls", n, calls)
		}
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub()

	calls := 0
	id, _ := h.Subscribe("chat", func(...any) { calls++ })
	h.Subscribe("chat", noop)

	if !h.Unsubscribe(id) {
		t.Fatal("expected first unsubscribe to succeed")
	}
	if h.Unsubscribe(id) {
		t.Error("expected second unsubscribe to fail")
	}
	if h.Unsubscribe(ID(1 << 62)) {
		t.Error("expected unknown id to fail")
	}

	h.Publish("chat", nil)
	if calls != 0 {
		t.Errorf("removed callback invoked %d times", calls)
	}
	if h.CountByKey("chat") != 1 {
		t.Errorf("expected sibling to remain, got %d", h.CountByKey("chat"))
	}
}

func TestHub_UnsubscribeDuringDispatch(t *testing.T) {
	h := NewHub()

	var order []string
	// Fires last.
	firstID, _ := h.Subscribe("k", func(...any) { order = append(order, "first") })
	// Fires first and removes the one that has not run yet.
	h.Subscribe("k", func(...any) {
		order = append(order, "second")
		h.Unsubscribe(firstID)
	})

	h.Publish("k", nil)
	if !reflect.DeepEqual(order, []string{"second", "first"}) {
		t.Errorf("order = %v, want [second first]", order)
	}

	order = nil
	h.Publish("k", nil)
	if !reflect.DeepEqual(order, []string{"second"}) {
		t.Errorf("order after removal = %v, want [second]", order)
	}
}

func TestHub_UnsubscribeSelfDuringDispatch(t *testing.T) {
	h := NewHub()

	var order []string
	h.Subscribe("k", func(...any) { order = append(order, "a") })
	var selfID ID
	selfID, _ = h.Subscribe("k", func(...any) {
		order = append(order, "b")
		h.Unsubscribe(selfID)
	})
	h.Subscribe("k", func(...any) { order = append(order, "c") })

	h.Publish("k", nil)
	if !reflect.DeepEqual(order, []string{"c", "b", "a"}) {
		t.Errorf("order = %v, want [c b a]", order)
	}
}

func TestHub_SubscribeDuringDispatch(t *testing.T) {
	h := NewHub()

	added := 0
	h.Subscribe("k", func(...any) {
		h.Subscribe("k", func(...any) { added++ })
	})

	h.Publish("k", nil)
	if added != 0 {
		t.Errorf("callback added during dispatch ran %d times", added)
	}

	h.Publish("k", nil)
	if added != 1 {
		t.Errorf("expected new callback to run on next publish, ran %d times", added)
	}
}

func TestHub_RepublishDuringDispatch(t *testing.T) {
	h := NewHub()

	var got []string
	h.Subscribe("b", func(args ...any) { got = append(got, args[0].(string)) })
	h.Subscribe("a", func(...any) { h.Publish("b", "nested") })

	h.Publish("a", nil)
	if !reflect.DeepEqual(got, []string{"nested"}) {
		t.Errorf("got %v, want [nested]", got)
	}
}

func TestHub_PanicIsolate(t *testing.T) {
	var reported []*PanicError
	h := NewHub(WithPanicHandler(func(err *PanicError) { reported = append(reported, err) }))

	if h.PanicPolicy() != PanicIsolate {
		t.Fatalf("default policy = %v, want isolate", h.PanicPolicy())
	}

	var ran []string
	h.Subscribe("k", func(...any) { ran = append(ran, "oldest") })
	badID, _ := h.Subscribe("k", func(...any) { panic("bad subscriber") })
	h.Subscribe("k", func(...any) { ran = append(ran, "newest") })

	h.Publish("k", nil)

	if !reflect.DeepEqual(ran, []string{"newest", "oldest"}) {
		t.Errorf("ran = %v, want [newest oldest]", ran)
	}
	if len(reported) != 1 {
		t.Fatalf("expected 1 reported panic, got %d", len(reported))
	}
	if reported[0].SubscriptionID != badID || reported[0].Key != "k" || reported[0].Value != "bad subscriber" {
		t.Errorf("unexpected panic report %+v", reported[0])
	}
	if reported[0].Error() == "" {
		t.Error("expected error text")
	}

	s := h.Stats()
	if s.Panics != 1 || s.Delivered != 2 || s.Published != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestHub_ResetStats(t *testing.T) {
	h := NewHub()
	h.Subscribe("k", func(...any) {})
	h.Subscribe("k", func(...any) { panic("bad subscriber") })
	h.Publish("k", nil)

	if s := h.Stats(); s.Published != 1 || s.Delivered != 1 || s.Panics != 1 {
		t.Fatalf("unexpected stats before reset %+v", s)
	}

	h.ResetStats()

	s := h.Stats()
	if s.Published != 0 || s.Delivered != 0 || s.Panics != 0 || s.AvgCallbackTimeNs != 0 {
		t.Errorf("expected zero counters after reset, got %+v", s)
	}
	if s.Subscriptions != 2 {
		t.Errorf("Subscriptions = %d, want 2", s.Subscriptions)
	}

	h.Publish("k", nil)
	if s := h.Stats(); s.Published != 1 {
		t.Errorf("Published after reset = %d, want 1", s.Published)
	}
}

func TestHub_PanicPropagate(t *testing.T) {
	h := NewHub(WithPanicPolicy(PanicPropagate))

	var ran []string
	h.Subscribe("k", func(...any) { ran = append(ran, "oldest") })
	h.Subscribe("k", func(...any) { panic("bad subscriber") })
	h.Subscribe("k", func(...any) { ran = append(ran, "newest") })

	func() {
		defer func() {
			if r := recover(); r != "bad subscriber" {
				t.Errorf("recovered %v, want bad subscriber", r)
			}
		}()
		h.Publish("k", nil)
	}()

	if !reflect.DeepEqual(ran, []string{"newest"}) {
		t.Errorf("ran = %v, want [newest]", ran)
	}
}

func TestParsePanicPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    PanicPolicy
		wantErr bool
	}{
		{"", PanicIsolate, false},
		{"isolate", PanicIsolate, false},
		{"Propagate", PanicPropagate, false},
		{"explode", PanicIsolate, true},
	}
	for _, tt := range tests {
		got, err := ParsePanicPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePanicPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParsePanicPolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if PanicPolicy(9).String() != "unknown" {
		t.Error("expected unknown policy name")
	}
}

func TestHub_Keys(t *testing.T) {
	h := NewHub()
	h.Subscribe("b", noop)
	h.Subscribe("a", noop)

	if got := h.Keys(); !reflect.DeepEqual(got, []Key{"a", "b"}) {
		t.Errorf("Keys = %v, want [a b]", got)
	}
}
