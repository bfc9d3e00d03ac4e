package script

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// ErrRuntimeClosed is returned when running code on a closed runtime.
var ErrRuntimeClosed = errors.New("lua runtime is closed")

// Runtime is a Lua state with the heaviside module installed.
//
// Only the base, table, string and math libraries are opened.
type Runtime struct {
	mu     sync.Mutex
	L      *lua.LState
	module *Module
	closed bool
}

// NewRuntime creates a Lua state bound to hub.
func NewRuntime(hub Hub, opts ...Option) (*Runtime, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)

	m := NewModule(hub, opts...)
	if err := m.Register(L); err != nil {
		L.Close()
		return nil, fmt.Errorf("register %s module: %w", GlobalName, err)
	}
	return &Runtime{L: L, module: m}, nil
}

func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Base opens these too; they reach the filesystem.
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
}

// Module returns the installed module.
func (r *Runtime) Module() *Module {
	return r.module
}

// DoFile runs a Lua file on the calling goroutine.
func (r *Runtime) DoFile(ctx context.Context, path string) error {
	return r.do(ctx, func() error { return r.L.DoFile(path) })
}

// DoString runs Lua source on the calling goroutine.
func (r *Runtime) DoString(ctx context.Context, code string) error {
	return r.do(ctx, func() error { return r.L.DoString(code) })
}

func (r *Runtime) do(ctx context.Context, fn func() error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRuntimeClosed
	}

	if ctx != nil {
		r.L.SetContext(ctx)
		defer r.L.RemoveContext()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("lua panic: %v", rec)
		}
	}()
	return fn()
}

// Close unsubscribes every Lua handler and closes the state.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.module.Cleanup()
	r.L.Close()
	return nil
}
