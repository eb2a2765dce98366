// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

// Package hostfunc note: L is the idiomatic variable name for lua.LState
// in the gopher-lua community.
//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package hostfunc

import (
	"context"

	lua "github.com/yuin/gopher-lua"
)

// pushError pushes nil followed by an error string to the Lua stack and returns 2.
// This is the standard pattern for returning errors from host functions.
func pushError(L *lua.LState, errMsg string) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(errMsg))
	return 2
}

// pushSuccess pushes a value followed by nil (no error) to the Lua stack and returns 2.
func pushSuccess(L *lua.LState, value lua.LValue) int {
	L.Push(value)
	L.Push(lua.LNil)
	return 2
}

// callContext returns the context of the running call, or Background when
// the state has none.
func callContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
