// Package dispatch invokes subscriber callbacks for the hub.
//
// Delivery is always synchronous: callbacks run one after another in the
// caller's goroutine. The SyncDispatcher decides what happens when a
// callback panics.
//
//   - Isolated (default): each callback runs under recover. The panic is
//     reported to a PanicHandler and captured in the callback's Result,
//     and the remaining callbacks still run.
//
//   - Propagating: callbacks run bare. A panic unwinds out of Dispatch and
//     aborts delivery to the callbacks that have not run yet.
//
// # Usage
//
//	d := dispatch.NewSyncDispatcher(
//	    dispatch.WithPanicHandler(func(key string, v any, stack []byte) {
//	        log.Printf("panic on %s: %v\n%s", key, v, stack)
//	    }),
//	)
//	results := d.Dispatch("chat.message", fns, []any{"hello"})
package dispatch
