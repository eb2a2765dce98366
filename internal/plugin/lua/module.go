// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package lua

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	plugins "github.com/shenbot/shenbot/internal/plugin"
	"github.com/shenbot/shenbot/internal/plugin/hostfunc"
)

// Compile-time interface checks.
var (
	_ plugins.Module   = (*Module)(nil)
	_ hostfunc.Invoker = (*Module)(nil)
)

// chunkName labels errors raised while running the top level of a plugin.
const chunkName = "<chunk>"

// Module is one plugin's persistent Lua state. Globals are the module's
// attributes. All access is serialized on mu.
type Module struct {
	name    string
	mu      sync.Mutex
	L       *lua.LState
	handler *lua.LFunction
	closed  bool
}

// Name returns the chunk name the module was loaded under.
func (m *Module) Name() string { return m.name }

// Attr returns the global name converted to plain Go values.
func (m *Module) Attr(name string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false
	}
	v := m.L.GetGlobal(name)
	if v == lua.LNil {
		return nil, false
	}
	return hostfunc.ToGo(v), true
}

// SetAttr binds value to the global name.
func (m *Module) SetAttr(name string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errModuleClosed(m.name, "set_attr")
	}
	m.L.SetGlobal(name, hostfunc.ToLua(m.L, value))
	return nil
}

// HasFunc reports whether the global name is a function.
func (m *Module) HasFunc(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	return m.L.GetGlobal(name).Type() == lua.LTFunction
}

// Call invokes the global function name with args converted to Lua.
// The call is aborted when ctx is cancelled.
func (m *Module) Call(ctx context.Context, name string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errModuleClosed(m.name, name)
	}
	fn, ok := m.L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return &plugins.ScriptError{Func: name, Message: "attempt to call a non-function value"}
	}

	return m.call(ctx, name, fn, args...)
}

// Invoke runs fn, a function value of this module's state, such as a
// callback a plugin handed to shenbot.schedule.
func (m *Module) Invoke(ctx context.Context, label string, fn *lua.LFunction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errModuleClosed(m.name, label)
	}
	return m.call(ctx, label, fn)
}

// call runs fn with the lock held.
func (m *Module) call(ctx context.Context, label string, fn *lua.LFunction, args ...any) error {
	largs := make([]lua.LValue, len(args))
	for i, arg := range args {
		largs[i] = hostfunc.ToLua(m.L, arg)
	}

	m.L.SetContext(ctx)
	defer m.L.RemoveContext()

	err := m.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
		Handler: m.handler,
	}, largs...)
	if err != nil {
		return scriptError(ctx, label, err)
	}
	return nil
}

// Close releases the Lua state. It is safe to call more than once and
// waits for a running call to finish.
func (m *Module) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.L.Close()
}

func errModuleClosed(name, operation string) error {
	return oops.In("lua").With("module", name).With("operation", operation).New("module is closed")
}

// scriptError splits a Lua error into message and traceback. When the
// call was cancelled the context error becomes the cause.
func scriptError(ctx context.Context, fn string, err error) error {
	se := &plugins.ScriptError{Func: fn, Message: err.Error(), Cause: err}

	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		text := err.Error()
		if apiErr.Object != nil {
			text = apiErr.Object.String()
		}
		msg, tb, found := strings.Cut(text, "\nstack traceback:")
		se.Message = msg
		if found {
			se.Traceback = "stack traceback:" + tb
		} else if apiErr.StackTrace != "" {
			se.Traceback = apiErr.StackTrace
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		se.Cause = ctxErr
	}
	return se
}
