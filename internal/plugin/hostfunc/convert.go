// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package hostfunc

import (
	"fmt"
	"math"
	"sort"

	lua "github.com/yuin/gopher-lua"

	plugins "github.com/shenbot/shenbot/internal/plugin"
)

// ToGo converts a Lua value to plain Go values. Integral numbers become
// int64, sequences ([1..n] with no other keys) and empty tables become
// []any, other tables become map[string]any. Functions, userdata and
// cyclic references become plugins.Opaque.
func ToGo(v lua.LValue) any {
	return toGo(v, map[*lua.LTable]bool{})
}

func toGo(v lua.LValue, seen map[*lua.LTable]bool) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return numberToGo(val)
	case *lua.LTable:
		if seen[val] {
			return plugins.Opaque{TypeName: "table"}
		}
		seen[val] = true
		defer delete(seen, val)
		if isSequence(val) {
			return tableToSlice(val, seen)
		}
		return tableToMap(val, seen)
	default:
		return plugins.Opaque{TypeName: v.Type().String()}
	}
}

func numberToGo(n lua.LNumber) any {
	f := float64(n)
	if f == math.Trunc(f) && !math.IsInf(f, 0) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}

// isSequence reports whether tbl holds exactly the keys 1..n. Empty
// tables count as sequences.
func isSequence(tbl *lua.LTable) bool {
	maxN := tbl.MaxN()
	count := 0
	tbl.ForEach(func(_, _ lua.LValue) {
		count++
	})
	return count == maxN
}

func tableToSlice(tbl *lua.LTable, seen map[*lua.LTable]bool) []any {
	n := tbl.MaxN()
	out := make([]any, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, toGo(tbl.RawGetInt(i), seen))
	}
	return out
}

func tableToMap(tbl *lua.LTable, seen map[*lua.LTable]bool) map[string]any {
	out := make(map[string]any)
	tbl.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = fmt.Sprint(numberToGo(kv))
		default:
			return
		}
		out[key] = toGo(v, seen)
	})
	return out
}

// ToLua converts plain Go values to Lua. A *plugins.Client becomes the
// client handle table. Unsupported values are rendered as strings.
func ToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case string:
		return lua.LString(val)
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []string:
		tbl := L.CreateTable(len(val), 0)
		for _, item := range val {
			tbl.Append(lua.LString(item))
		}
		return tbl
	case []any:
		tbl := L.CreateTable(len(val), 0)
		for _, item := range val {
			tbl.Append(ToLua(L, item))
		}
		return tbl
	case map[string]string:
		tbl := L.CreateTable(0, len(val))
		for _, k := range sortedKeys(val) {
			tbl.RawSetString(k, lua.LString(val[k]))
		}
		return tbl
	case map[string]any:
		tbl := L.CreateTable(0, len(val))
		for _, k := range sortedKeys(val) {
			tbl.RawSetString(k, ToLua(L, val[k]))
		}
		return tbl
	case *plugins.Client:
		return ClientTable(L, val)
	case plugins.Client:
		return ClientTable(L, &val)
	case plugins.Opaque:
		return lua.LNil
	case fmt.Stringer:
		return lua.LString(val.String())
	default:
		return lua.LString(fmt.Sprint(val))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
