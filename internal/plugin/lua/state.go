// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

// Package lua runs plugins on an embedded, sandboxed Lua interpreter.
package lua

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// safeLibrary represents a Lua library that is safe to load in sandboxed state.
type safeLibrary struct {
	name string
	fn   lua.LGFunction
}

// defaultSafeLibraries returns the list of libraries safe to load.
// Safe: base, table, string, math, coroutine.
// Blocked: io, package. os and debug are reduced after loading.
func defaultSafeLibraries() []safeLibrary {
	return []safeLibrary{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.CoroutineLibName, lua.OpenCoroutine},
	}
}

// unsafeBaseFunctions lists base library functions that must be blocked.
// These functions allow filesystem access which would break sandboxing.
var unsafeBaseFunctions = []string{"dofile", "loadfile", "loadstring", "load"}

// safeOSFunctions is the part of the os library plugins keep.
var safeOSFunctions = []string{"time", "date", "clock"}

// tracebackKey is where the debug.traceback function is kept in the
// registry after the debug library is removed from globals.
const tracebackKey = "shenbot.traceback"

// StateFactory creates sandboxed Lua states with only safe libraries.
type StateFactory struct {
	// libraries allows overriding the default safe libraries for testing.
	libraries []safeLibrary
}

// NewStateFactory creates a new state factory.
func NewStateFactory() *StateFactory {
	return &StateFactory{
		libraries: defaultSafeLibraries(),
	}
}

// NewState creates a fresh Lua state with only safe libraries loaded.
// The os library is cut down to time, date and clock. The debug library
// is opened only long enough to capture debug.traceback for error handlers.
func (f *StateFactory) NewState(_ context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})

	for _, lib := range f.libraries {
		if err := openLib(L, lib); err != nil {
			L.Close()
			return nil, err
		}
	}

	for _, fn := range unsafeBaseFunctions {
		L.SetGlobal(fn, lua.LNil)
	}

	if err := openLib(L, safeLibrary{lua.OsLibName, lua.OpenOs}); err != nil {
		L.Close()
		return nil, err
	}
	full, ok := L.GetGlobal(lua.OsLibName).(*lua.LTable)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("library %s did not install a table", lua.OsLibName)
	}
	restricted := L.NewTable()
	for _, name := range safeOSFunctions {
		restricted.RawSetString(name, full.RawGetString(name))
	}
	L.SetGlobal(lua.OsLibName, restricted)

	if err := openLib(L, safeLibrary{lua.DebugLibName, lua.OpenDebug}); err != nil {
		L.Close()
		return nil, err
	}
	if dbg, ok := L.GetGlobal(lua.DebugLibName).(*lua.LTable); ok {
		L.SetField(L.Get(lua.RegistryIndex), tracebackKey, dbg.RawGetString("traceback"))
	}
	L.SetGlobal(lua.DebugLibName, lua.LNil)

	return L, nil
}

func openLib(L *lua.LState, lib safeLibrary) error {
	if err := L.CallByParam(lua.P{
		Fn:      L.NewFunction(lib.fn),
		NRet:    0,
		Protect: true,
	}, lua.LString(lib.name)); err != nil {
		return fmt.Errorf("failed to open library %s: %w", lib.name, err)
	}
	return nil
}

// tracebackHandler returns an error handler that appends a stack
// traceback to the error message. Non-string error values are rendered
// with tostring semantics first.
func tracebackHandler(L *lua.LState) *lua.LFunction {
	tb := L.GetField(L.Get(lua.RegistryIndex), tracebackKey)
	return L.NewFunction(func(L *lua.LState) int {
		msg := L.ToStringMeta(L.Get(1))
		if tb.Type() != lua.LTFunction {
			L.Push(msg)
			return 1
		}
		L.Push(tb)
		L.Push(msg)
		L.Call(1, 1)
		return 1
	})
}
