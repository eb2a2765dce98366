// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package lua_test

import (
	"context"
	"testing"

	lua "github.com/yuin/gopher-lua"

	pluginlua "github.com/shenbot/shenbot/internal/plugin/lua"
)

func newSandbox(t *testing.T) *lua.LState {
	t.Helper()
	L, err := pluginlua.NewStateFactory().NewState(context.Background())
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	t.Cleanup(L.Close)
	return L
}

func TestStateFactory_NewState_LoadsSafeLibraries(t *testing.T) {
	L := newSandbox(t)

	for _, lib := range []string{"table", "string", "math", "coroutine", "os"} {
		if L.GetGlobal(lib).Type() == lua.LTNil {
			t.Errorf("library %q not loaded", lib)
		}
	}
}

func TestStateFactory_NewState_BlocksUnsafeLibraries(t *testing.T) {
	L := newSandbox(t)

	for _, lib := range []string{"io", "debug", "package"} {
		if L.GetGlobal(lib).Type() != lua.LTNil {
			t.Errorf("unsafe library %q should not be loaded", lib)
		}
	}
}

func TestStateFactory_NewState_BlocksFilesystemFunctions(t *testing.T) {
	L := newSandbox(t)

	for _, fn := range []string{"dofile", "loadfile", "loadstring", "load"} {
		if L.GetGlobal(fn).Type() != lua.LTNil {
			t.Errorf("unsafe function %q should be blocked", fn)
		}
	}
}

func TestStateFactory_NewState_RestrictsOS(t *testing.T) {
	L := newSandbox(t)

	err := L.DoString(`
		assert(type(os.time()) == "number")
		assert(type(os.clock()) == "number")
		assert(type(os.date("%Y")) == "string")
		assert(os.execute == nil)
		assert(os.remove == nil)
		assert(os.getenv == nil)
		assert(os.exit == nil)
	`)
	if err != nil {
		t.Fatalf("os sandbox check failed: %v", err)
	}
}

func TestStateFactory_NewState_CanExecuteLua(t *testing.T) {
	L := newSandbox(t)

	if err := L.DoString(`result = string.upper("ab") .. table.concat({1, 2}, ",") .. math.max(3, 4)`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if got := L.GetGlobal("result").String(); got != "AB1,24" {
		t.Errorf("result = %q, want %q", got, "AB1,24")
	}
}

func TestStateFactory_NewState_MultipleStatesAreIsolated(t *testing.T) {
	L1 := newSandbox(t)
	L2 := newSandbox(t)

	if err := L1.DoString(`shared = "one"`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if L2.GetGlobal("shared").Type() != lua.LTNil {
		t.Error("globals leaked between states")
	}
}
