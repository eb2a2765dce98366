// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package config

import (
	"log/slog"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/samber/oops"
)

// Entry pairs a declared default with the value bound from a config file.
// Current stays nil until the first Read.
type Entry struct {
	Default Value
	Current *Value
}

// Schema is the fixed key set of one config section.
type Schema struct {
	section string
	keys    []string
	entries map[string]*Entry
}

// NewSchema builds a schema for section from its declared defaults.
func NewSchema(section string, defaults map[string]Value) *Schema {
	s := &Schema{
		section: section,
		keys:    make([]string, 0, len(defaults)),
		entries: make(map[string]*Entry, len(defaults)),
	}
	for k, v := range defaults {
		s.keys = append(s.keys, k)
		s.entries[k] = &Entry{Default: v.Clone()}
	}
	sort.Strings(s.keys)
	return s
}

// SchemaFromNative builds a schema from interpreter-supplied defaults.
// Defaults that cannot be represented are left out with a warning.
func SchemaFromNative(section string, defaults map[string]any) *Schema {
	values := make(map[string]Value, len(defaults))
	for k, raw := range defaults {
		v, ok := FromNative(raw)
		if !ok {
			slog.Warn("config default dropped", "section", section, "key", k)
			continue
		}
		values[k] = v
	}
	return NewSchema(section, values)
}

// Section returns the section name this schema was declared under.
func (s *Schema) Section() string { return s.section }

// Keys returns the declared keys in sorted order.
func (s *Schema) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of declared keys.
func (s *Schema) Len() int { return len(s.keys) }

// Default returns the declared default for key.
func (s *Schema) Default(key string) (Value, bool) {
	e, ok := s.entries[key]
	if !ok {
		return None(), false
	}
	return e.Default, true
}

// Current returns the bound value for key, if one has been read.
func (s *Schema) Current(key string) (Value, bool) {
	e, ok := s.entries[key]
	if !ok || e.Current == nil {
		return None(), false
	}
	return *e.Current, true
}

// Lookup returns the live value of key: the bound value, else the default.
func (s *Schema) Lookup(key string) (Value, bool) {
	e, ok := s.entries[key]
	if !ok {
		return None(), false
	}
	if e.Current != nil {
		return *e.Current, true
	}
	return e.Default, true
}

// Initialized reports whether every key has a bound value.
func (s *Schema) Initialized() bool {
	for _, e := range s.entries {
		if e.Current == nil {
			return false
		}
	}
	return true
}

// Read binds values from a decoded config table. A present and
// shape-compatible key becomes current; an absent key takes a copy of its
// default; an incompatible key is reported and keeps its previous value.
// Keys not declared by the schema are ignored. Reading the same table
// twice leaves the schema in the same state.
func (s *Schema) Read(table map[string]any) {
	for _, key := range s.keys {
		e := s.entries[key]
		raw, present := table[key]
		if !present {
			v := e.Default.Clone()
			e.Current = &v
			continue
		}
		if !compatible(e.Default, raw) {
			slog.Warn("config value shape mismatch, keeping previous value",
				"section", s.section,
				"key", key,
				"expected", e.Default.Kind().String(),
				"got", shapeOf(raw),
			)
			continue
		}
		v, ok := FromNative(raw)
		if !ok {
			slog.Warn("config value unsupported, keeping previous value",
				"section", s.section,
				"key", key,
			)
			continue
		}
		e.Current = &v
	}
}

// Table returns the section as plain Go values ready for TOML encoding.
// With useDefaults the declared defaults are emitted; otherwise bound values
// are emitted and unbound keys omitted. None values are always omitted.
func (s *Schema) Table(useDefaults bool) map[string]any {
	out := make(map[string]any, len(s.keys))
	for _, key := range s.keys {
		e := s.entries[key]
		v := e.Default
		if !useDefaults {
			if e.Current == nil {
				continue
			}
			v = *e.Current
		}
		if v.IsNone() {
			continue
		}
		out[key] = v.Native()
	}
	return out
}

// ToText encodes Table(useDefaults) as TOML.
func (s *Schema) ToText(useDefaults bool) (string, error) {
	data, err := toml.Marshal(s.Table(useDefaults))
	if err != nil {
		return "", oops.With("section", s.section).Wrapf(err, "encode config section")
	}
	return string(data), nil
}

// Clone returns a deep copy of s.
func (s *Schema) Clone() *Schema {
	out := &Schema{
		section: s.section,
		keys:    s.Keys(),
		entries: make(map[string]*Entry, len(s.entries)),
	}
	for k, e := range s.entries {
		c := &Entry{Default: e.Default.Clone()}
		if e.Current != nil {
			v := e.Current.Clone()
			c.Current = &v
		}
		out.entries[k] = c
	}
	return out
}

// Equal reports whether both schemas declare the same defaults and hold the
// same bound values.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.section != o.section || len(s.entries) != len(o.entries) {
		return false
	}
	for k, e := range s.entries {
		oe, ok := o.entries[k]
		if !ok || !e.Default.Equal(oe.Default) {
			return false
		}
		if (e.Current == nil) != (oe.Current == nil) {
			return false
		}
		if e.Current != nil && !e.Current.Equal(*oe.Current) {
			return false
		}
	}
	return true
}

// ParseText decodes a TOML document into a table suitable for Read.
func ParseText(text string) (map[string]any, error) {
	table := map[string]any{}
	if err := toml.Unmarshal([]byte(text), &table); err != nil {
		return nil, oops.Wrapf(err, "parse TOML")
	}
	return table, nil
}
