package dispatch

import (
	"reflect"
	"testing"
)

func TestResult_IsSuccess(t *testing.T) {
	tests := []struct {
		name     string
		result   Result
		expected bool
	}{
		{"success", Result{Success: true}, true},
		{"panic", Result{Success: false, Panicked: true}, false},
		{"zero", Result{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.IsSuccess(); got != tt.expected {
				t.Errorf("IsSuccess() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExecutor_Execute(t *testing.T) {
	e := NewExecutor()

	var got []any
	result := e.Execute("test", func(args ...any) { got = args }, []any{"a", 1})

	if !result.IsSuccess() {
		t.Errorf("expected success, got %+v", result)
	}
	if !reflect.DeepEqual(got, []any{"a", 1}) {
		t.Errorf("callback args = %v, want [a 1]", got)
	}
}

func TestExecutor_ExecutePanic(t *testing.T) {
	var handledKey string
	var handledValue any
	var handledStack []byte

	e := NewExecutor(WithExecutorPanicHandler(func(key string, v any, stack []byte) {
		handledKey = key
		handledValue = v
		handledStack = stack
	}))

	result := e.Execute("test", func(...any) { panic("boom") }, nil)

	if !result.IsPanic() {
		t.Fatal("expected panic result")
	}
	if result.PanicValue != "boom" {
		t.Errorf("PanicValue = %v, want boom", result.PanicValue)
	}
	if len(result.PanicStack) == 0 {
		t.Error("expected stack trace")
	}
	if handledKey != "test" || handledValue != "boom" || len(handledStack) == 0 {
		t.Errorf("panic handler got key=%q value=%v", handledKey, handledValue)
	}
}

func TestExecutor_PanickingPanicHandler(t *testing.T) {
	e := NewExecutor(WithExecutorPanicHandler(func(string, any, []byte) {
		panic("handler boom")
	}))

	result := e.Execute("test", func(...any) { panic("boom") }, nil)
	if !result.IsPanic() {
		t.Error("expected panic result")
	}
}

func TestSyncDispatcher_IsolatedByDefault(t *testing.T) {
	var panics int
	d := NewSyncDispatcher(WithPanicHandler(func(string, any, []byte) { panics++ }))

	if !d.Isolating() {
		t.Fatal("expected isolation to be on by default")
	}

	var ran []string
	results := d.Dispatch("chat", []Func{
		func(...any) { ran = append(ran, "first") },
		func(...any) { panic("bad subscriber") },
		func(...any) { ran = append(ran, "last") },
	}, []any{"hello"})

	if !reflect.DeepEqual(ran, []string{"first", "last"}) {
		t.Errorf("ran = %v, want [first last]", ran)
	}
	if panics != 1 {
		t.Errorf("panic handler calls = %d, want 1", panics)
	}
	if len(results) != 3 || !results[1].IsPanic() {
		t.Errorf("unexpected results %+v", results)
	}

	stats := d.Stats()
	if stats.Dispatched != 1 || stats.Invoked != 3 || stats.Succeeded != 2 || stats.Panicked != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSyncDispatcher_Propagate(t *testing.T) {
	d := NewSyncDispatcher(WithIsolation(false))

	var ran []string
	func() {
		defer func() {
			if r := recover(); r != "bad subscriber" {
				t.Errorf("recovered %v, want bad subscriber", r)
			}
		}()
		d.Dispatch("chat", []Func{
			func(...any) { ran = append(ran, "first") },
			func(...any) { panic("bad subscriber") },
			func(...any) { ran = append(ran, "last") },
		}, nil)
		t.Error("expected Dispatch to panic")
	}()

	if !reflect.DeepEqual(ran, []string{"first"}) {
		t.Errorf("ran = %v, want [first]", ran)
	}
	if got := d.Stats().Invoked; got != 2 {
		t.Errorf("Invoked = %d, want 2", got)
	}
}

func TestSyncDispatcher_ArgsCopiedPerCallback(t *testing.T) {
	d := NewSyncDispatcher()

	var second []any
	d.Dispatch("k", []Func{
		func(args ...any) { args[0] = "rewritten" },
		func(args ...any) { second = args },
	}, []any{"original"})

	if second[0] != "original" {
		t.Errorf("second callback saw %v, want original", second[0])
	}
}

func TestSyncDispatcher_ResetStats(t *testing.T) {
	d := NewSyncDispatcher()
	d.Dispatch("k", []Func{func(...any) {}}, nil)
	d.ResetStats()

	if stats := d.Stats(); stats != (SyncDispatcherStats{}) {
		t.Errorf("expected zero stats after reset, got %+v", stats)
	}
}
