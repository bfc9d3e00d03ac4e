// Package script exposes a Heaviside hub to Lua scripts.
//
// The module installs a global table named heaviside:
//
//	id = heaviside.subscribe("cart.updated", function(action, data) ... end)
//	heaviside.publish("cart.updated", { messageKey = "add", sku = "A1" })
//	heaviside.post("parent", "cart.updated", { items = 3 }, "https://shop.example")
//	heaviside.unsubscribe(id)
//
// Lua states are not goroutine-safe. Callbacks run on whichever goroutine
// publishes, so everything that can publish to the hub must share the
// goroutine that owns the state.
package script

import (
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/heaviside/internal/logging"
	"github.com/dshills/heaviside/internal/pubsub"
	"github.com/dshills/heaviside/internal/window"
)

// GlobalName is the name of the Lua table the module installs.
const GlobalName = "heaviside"

const handlerKey = "_heaviside_handlers"

// Hub is the part of *pubsub.Hub the module drives.
type Hub interface {
	Subscribe(key string, cb pubsub.Callback) (pubsub.ID, bool)
	Unsubscribe(id pubsub.ID) bool
	Publish(key string, p any)
	PublishToWindow(target window.Window, key string, p any, opts ...pubsub.PostOption) error
}

// Module binds a hub into a Lua state.
type Module struct {
	hub     Hub
	windows map[string]window.Window
	logger  *logrus.Entry

	mu         sync.Mutex
	L          *lua.LState
	handlerTbl *lua.LTable
	subs       map[pubsub.ID]struct{}
}

// Option configures a Module.
type Option func(*Module)

// WithWindow makes w reachable from heaviside.post under name.
func WithWindow(name string, w window.Window) Option {
	return func(m *Module) {
		if name != "" && w != nil {
			m.windows[name] = w
		}
	}
}

// WithLogger sets the logger for script errors.
func WithLogger(l *logrus.Entry) Option {
	return func(m *Module) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewModule creates a module for hub.
func NewModule(hub Hub, opts ...Option) *Module {
	m := &Module{
		hub:     hub,
		windows: make(map[string]window.Window),
		logger:  logging.Null(),
		subs:    make(map[pubsub.ID]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.WithComponent(m.logger, "script")
	return m
}

// Register installs the heaviside table into L.
func (m *Module) Register(L *lua.LState) error {
	m.mu.Lock()
	m.L = L
	m.handlerTbl = L.NewTable()
	m.mu.Unlock()

	L.SetGlobal(handlerKey, m.handlerTbl)

	mod := L.NewTable()
	L.SetField(mod, "subscribe", L.NewFunction(m.subscribe))
	L.SetField(mod, "unsubscribe", L.NewFunction(m.unsubscribe))
	L.SetField(mod, "publish", L.NewFunction(m.publish))
	L.SetField(mod, "post", L.NewFunction(m.post))
	L.SetGlobal(GlobalName, mod)
	return nil
}

// Subscriptions returns the number of live subscriptions made from Lua.
func (m *Module) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Cleanup unsubscribes every Lua handler and releases the state.
func (m *Module) Cleanup() {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[pubsub.ID]struct{})
	if m.L != nil {
		m.L.SetGlobal(handlerKey, lua.LNil)
	}
	m.L = nil
	m.handlerTbl = nil
	m.mu.Unlock()

	for id := range subs {
		m.hub.Unsubscribe(id)
	}
}

// subscribe(key, fn) -> id | false
func (m *Module) subscribe(L *lua.LState) int {
	key, ok := L.Get(1).(lua.LString)
	fn, isFn := L.Get(2).(*lua.LFunction)
	if !ok || !isFn {
		L.Push(lua.LFalse)
		return 1
	}

	var id pubsub.ID
	id, ok = m.hub.Subscribe(string(key), m.callback(&id))
	if !ok {
		L.Push(lua.LFalse)
		return 1
	}

	m.mu.Lock()
	if m.handlerTbl != nil {
		m.handlerTbl.RawSetString(handlerName(id), fn)
	}
	m.subs[id] = struct{}{}
	m.mu.Unlock()

	L.Push(lua.LNumber(id))
	return 1
}

// unsubscribe(id) -> bool
func (m *Module) unsubscribe(L *lua.LState) int {
	n, ok := L.Get(1).(lua.LNumber)
	if !ok || n < 0 {
		L.Push(lua.LFalse)
		return 1
	}
	id := pubsub.ID(n)

	removed := m.hub.Unsubscribe(id)

	m.mu.Lock()
	delete(m.subs, id)
	if m.handlerTbl != nil {
		m.handlerTbl.RawSetString(handlerName(id), lua.LNil)
	}
	m.mu.Unlock()

	L.Push(lua.LBool(removed))
	return 1
}

// publish(key, payload?)
func (m *Module) publish(L *lua.LState) int {
	key := L.CheckString(1)
	m.hub.Publish(key, toGo(L.Get(2)))
	return 0
}

// post(windowName, key, payload?, origin?) -> true | false, message
func (m *Module) post(L *lua.LState) int {
	name := L.CheckString(1)
	key := L.CheckString(2)
	payload := toGo(L.Get(3))
	origin := L.OptString(4, "")

	m.mu.Lock()
	w, ok := m.windows[name]
	m.mu.Unlock()
	if !ok {
		L.Push(lua.LFalse)
		L.Push(lua.LString("unknown window: " + name))
		return 2
	}

	var opts []pubsub.PostOption
	if origin != "" {
		opts = append(opts, pubsub.WithTargetOrigin(origin))
	}
	if err := m.hub.PublishToWindow(w, key, payload, opts...); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// callback returns the Go side of a Lua subscription. id is filled in once
// the hub has allocated it.
func (m *Module) callback(id *pubsub.ID) pubsub.Callback {
	return func(args ...any) {
		m.mu.Lock()
		L := m.L
		tbl := m.handlerTbl
		m.mu.Unlock()
		if L == nil || tbl == nil {
			return
		}

		handler := L.GetField(tbl, handlerName(*id))
		if handler.Type() != lua.LTFunction {
			return
		}

		L.Push(handler)
		for _, a := range args {
			L.Push(toLua(L, a))
		}
		if err := L.PCall(len(args), 0, nil); err != nil {
			m.logger.WithError(err).WithField("subscription", uint64(*id)).Warn("lua handler failed")
		}
	}
}

func handlerName(id pubsub.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}
