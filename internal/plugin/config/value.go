// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

// Package config models plugin configuration: a small tagged union of
// TOML-compatible values, and per-section schemas that pair each declared
// default with the value last read from the plugin's config file.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Kind identifies the variant held by a Value.
type Kind uint8

// Value variants.
const (
	KindNone Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindList
	KindMap
)

// String returns the lowercase variant name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// IsScalar reports whether the kind is neither a list nor a map.
func (k Kind) IsScalar() bool {
	return k != KindList && k != KindMap
}

// Value is one configuration value. The zero Value is None.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	list []Value
	m    map[string]Value
}

// None returns the empty value.
func None() Value { return Value{} }

// Str returns a string value.
func Str(s string) Value { return Value{kind: KindString, s: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List returns a list value holding items.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

// Map returns a map value holding entries.
func Map(entries map[string]Value) Value {
	if entries == nil {
		entries = map[string]Value{}
	}
	return Value{kind: KindMap, m: entries}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNone reports whether v is the empty value.
func (v Value) IsNone() bool { return v.kind == KindNone }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsInt returns the integer held by v.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the float held by v.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsList returns the items held by v. The slice is shared; use Clone to detach.
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// AsMap returns the entries held by v. The map is shared; use Clone to detach.
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.Clone()
		}
		return List(items...)
	case KindMap:
		entries := make(map[string]Value, len(v.m))
		for k, item := range v.m {
			entries[k] = item.Clone()
		}
		return Map(entries)
	default:
		return v
	}
}

// Equal reports whether v and o hold the same variant and contents.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNone:
		return true
	case KindString:
		return v.s == o.s
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, item := range v.m {
			other, ok := o.m[k]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	}
	return false
}

// Native converts v into plain Go values: string, int64, float64, bool,
// []any and map[string]any. None becomes nil and is skipped inside
// containers, since TOML has no null.
func (v Value) Native() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, 0, len(v.list))
		for _, item := range v.list {
			if item.IsNone() {
				continue
			}
			out = append(out, item.Native())
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			if item.IsNone() {
				continue
			}
			out[k] = item.Native()
		}
		return out
	default:
		return nil
	}
}

// String renders v for logs.
func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return "none"
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + " = " + v.m[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(v.Native())
	}
}

// FromNative converts a decoded TOML or interpreter value into a Value.
// Containers may hold only scalars; deeper nesting, unsupported types and
// out-of-range integers are dropped with a warning and reported as !ok.
// Datetimes are kept as their TOML text with a warning.
func FromNative(raw any) (Value, bool) {
	return fromNative(raw, 0)
}

func fromNative(raw any, depth int) (Value, bool) {
	switch x := raw.(type) {
	case nil:
		return None(), true
	case Value:
		return x.Clone(), true
	case string:
		return Str(x), true
	case bool:
		return Bool(x), true
	case int:
		return Int(int64(x)), true
	case int8:
		return Int(int64(x)), true
	case int16:
		return Int(int64(x)), true
	case int32:
		return Int(int64(x)), true
	case int64:
		return Int(x), true
	case uint8:
		return Int(int64(x)), true
	case uint16:
		return Int(int64(x)), true
	case uint32:
		return Int(int64(x)), true
	case uint:
		return uintValue(uint64(x))
	case uint64:
		return uintValue(x)
	case float32:
		return Float(float64(x)), true
	case float64:
		return Float(x), true
	case time.Time:
		slog.Warn("config datetime stored as string", "value", x.Format(time.RFC3339Nano))
		return Str(x.Format(time.RFC3339Nano)), true
	case toml.LocalDate:
		slog.Warn("config date stored as string", "value", x.String())
		return Str(x.String()), true
	case toml.LocalTime:
		slog.Warn("config time stored as string", "value", x.String())
		return Str(x.String()), true
	case toml.LocalDateTime:
		slog.Warn("config datetime stored as string", "value", x.String())
		return Str(x.String()), true
	case []any:
		if depth > 0 {
			slog.Warn("nested config list dropped", "depth", depth)
			return None(), false
		}
		items := make([]Value, 0, len(x))
		for _, item := range x {
			if v, ok := fromNative(item, depth+1); ok {
				items = append(items, v)
			}
		}
		return List(items...), true
	case map[string]any:
		if depth > 0 {
			slog.Warn("nested config table dropped", "depth", depth)
			return None(), false
		}
		entries := make(map[string]Value, len(x))
		for k, item := range x {
			if v, ok := fromNative(item, depth+1); ok {
				entries[k] = v
			}
		}
		return Map(entries), true
	default:
		slog.Warn("unsupported config value dropped", "type", fmt.Sprintf("%T", raw))
		return None(), false
	}
}

func uintValue(u uint64) (Value, bool) {
	if u > math.MaxInt64 {
		slog.Warn("config integer out of range dropped", "value", u)
		return None(), false
	}
	return Int(int64(u)), true
}

// compatible reports whether raw may replace a value shaped like def.
func compatible(def Value, raw any) bool {
	_, isList := raw.([]any)
	_, isMap := raw.(map[string]any)
	switch {
	case def.kind == KindNone:
		return true
	case def.kind == KindList:
		return isList
	case def.kind == KindMap:
		return isMap
	default:
		return !isList && !isMap
	}
}

// shapeOf names the shape of a raw decoded value for warnings.
func shapeOf(raw any) string {
	switch raw.(type) {
	case []any:
		return "array"
	case map[string]any:
		return "table"
	default:
		return "scalar"
	}
}
