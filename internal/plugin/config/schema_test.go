// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shenbot/shenbot/internal/plugin/config"
)

func sampleSchema() *config.Schema {
	return config.NewSchema("main", map[string]config.Value{
		"greeting": config.Str("hi"),
		"retries":  config.Int(3),
		"ratio":    config.Float(0.5),
		"loud":     config.Bool(false),
		"rooms":    config.List(config.Int(1), config.Int(2)),
		"aliases":  config.Map(map[string]config.Value{"hello": config.Str("hi")}),
		"anything": config.None(),
	})
}

func TestSchema_ReadAbsentKeysTakeDefaults(t *testing.T) {
	s := sampleSchema()
	assert.False(t, s.Initialized())

	s.Read(map[string]any{})

	assert.True(t, s.Initialized())
	for _, key := range s.Keys() {
		def, _ := s.Default(key)
		cur, ok := s.Current(key)
		require.True(t, ok, key)
		assert.True(t, def.Equal(cur), key)
	}
}

func TestSchema_ReadCompatibleValues(t *testing.T) {
	s := sampleSchema()

	s.Read(map[string]any{
		"greeting": "hello",
		"retries":  int64(5),
		"rooms":    []any{int64(7)},
		"aliases":  map[string]any{"bye": "cya"},
		"anything": []any{"x"},
		"unknown":  "ignored",
	})

	v, _ := s.Lookup("greeting")
	assert.True(t, config.Str("hello").Equal(v))
	v, _ = s.Lookup("retries")
	assert.True(t, config.Int(5).Equal(v))
	v, _ = s.Lookup("rooms")
	assert.True(t, config.List(config.Int(7)).Equal(v))
	v, _ = s.Lookup("aliases")
	assert.True(t, config.Map(map[string]config.Value{"bye": config.Str("cya")}).Equal(v))
	v, _ = s.Lookup("anything")
	assert.Equal(t, config.KindList, v.Kind())

	_, ok := s.Lookup("unknown")
	assert.False(t, ok)
}

func TestSchema_ScalarAcceptsOtherScalar(t *testing.T) {
	s := config.NewSchema("main", map[string]config.Value{"n": config.Int(1)})
	s.Read(map[string]any{"n": "not a number"})

	v, ok := s.Current("n")
	require.True(t, ok)
	assert.True(t, config.Str("not a number").Equal(v))
}

func TestSchema_ShapeMismatchLeavesKeyUnset(t *testing.T) {
	s := config.NewSchema("main", map[string]config.Value{"greeting": config.Str("hi")})

	assert.NotPanics(t, func() {
		s.Read(map[string]any{"greeting": []any{"a", "b"}})
	})

	_, ok := s.Current("greeting")
	assert.False(t, ok, "mismatched key must stay unset")
	v, _ := s.Lookup("greeting")
	assert.True(t, config.Str("hi").Equal(v), "lookup falls back to default")
}

func TestSchema_ShapeMismatchKeepsPreviousValue(t *testing.T) {
	s := sampleSchema()
	s.Read(map[string]any{"rooms": []any{int64(9)}, "aliases": map[string]any{}})

	s.Read(map[string]any{"rooms": "not a list", "aliases": []any{}})

	v, _ := s.Current("rooms")
	assert.True(t, config.List(config.Int(9)).Equal(v))
	v, _ = s.Current("aliases")
	assert.True(t, config.Map(nil).Equal(v))
}

func TestSchema_ReadIsIdempotent(t *testing.T) {
	table := map[string]any{
		"greeting": "hey",
		"rooms":    "mismatch",
		"ratio":    2.5,
	}

	once := sampleSchema()
	once.Read(table)

	twice := sampleSchema()
	twice.Read(table)
	twice.Read(table)

	assert.True(t, once.Equal(twice))
}

func TestSchema_DefaultRoundTrip(t *testing.T) {
	s := sampleSchema()

	text, err := s.ToText(true)
	require.NoError(t, err)

	table, err := config.ParseText(text)
	require.NoError(t, err)

	fresh := sampleSchema()
	fresh.Read(table)

	for _, key := range fresh.Keys() {
		def, _ := fresh.Default(key)
		cur, ok := fresh.Current(key)
		require.True(t, ok, key)
		assert.True(t, def.Equal(cur), "key %s: got %s want %s", key, cur, def)
	}
}

func TestSchema_TableOmitsUnsetAndNone(t *testing.T) {
	s := sampleSchema()
	assert.Empty(t, s.Table(false))

	defaults := s.Table(true)
	assert.NotContains(t, defaults, "anything")
	assert.Equal(t, "hi", defaults["greeting"])
	assert.Equal(t, int64(3), defaults["retries"])

	s.Read(map[string]any{"greeting": []any{}})
	current := s.Table(false)
	assert.NotContains(t, current, "greeting")
	assert.Contains(t, current, "retries")
}

func TestSchema_CloneIsIndependent(t *testing.T) {
	s := sampleSchema()
	s.Read(map[string]any{})
	clone := s.Clone()
	require.True(t, s.Equal(clone))

	clone.Read(map[string]any{"greeting": "changed"})
	assert.False(t, s.Equal(clone))
	v, _ := s.Current("greeting")
	assert.True(t, config.Str("hi").Equal(v))
}

func TestSchemaFromNative(t *testing.T) {
	s := config.SchemaFromNative("main", map[string]any{
		"greeting": "hi",
		"bad":      struct{}{},
	})
	assert.Equal(t, []string{"greeting"}, s.Keys())
	assert.Equal(t, "main", s.Section())
}

func TestParseText_Invalid(t *testing.T) {
	_, err := config.ParseText("this is = = not toml")
	assert.Error(t, err)
}
