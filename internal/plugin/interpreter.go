// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package plugin

import (
	"context"
	"errors"
	"fmt"
)

// Well-known module attributes.
const (
	// ManifestAttr is the attribute a plugin must define with its manifest.
	ManifestAttr = "PLUGIN_MANIFEST"
	// OnLoadFunc is the optional hook called after config binding.
	OnLoadFunc = "on_load"
	// SourceExt is the extension of plugin source files.
	SourceExt = ".lua"
)

// Interpreter instantiates plugin modules from source text.
type Interpreter interface {
	LoadModule(ctx context.Context, source, name string) (Module, error)
}

// Module is one live interpreter-side plugin instance. Implementations
// serialize access internally; callers may use a Module from any goroutine.
type Module interface {
	// Attr returns a module attribute converted to plain Go values
	// (string, int64, float64, bool, []any, map[string]any). Functions
	// and other opaque values are returned as Opaque.
	Attr(name string) (any, bool)
	// SetAttr binds a plain Go value to a module attribute.
	SetAttr(name string, value any) error
	// HasFunc reports whether name is bound to a callable.
	HasFunc(name string) bool
	// Call invokes the callable name. Cancelling ctx aborts the call.
	Call(ctx context.Context, name string, args ...any) error
	// Close releases the module.
	Close()
}

// Opaque stands in for interpreter values with no plain Go form.
type Opaque struct {
	TypeName string
}

func (o Opaque) String() string { return "<" + o.TypeName + ">" }

// ScriptError is raised by plugin code, carrying the interpreter traceback.
type ScriptError struct {
	Func      string
	Message   string
	Traceback string
	Cause     error
}

func (e *ScriptError) Error() string {
	if e.Func == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Func, e.Message)
}

func (e *ScriptError) Unwrap() error { return e.Cause }

// Traceback returns the interpreter traceback carried by err, if any.
func Traceback(err error) string {
	var se *ScriptError
	if errors.As(err, &se) {
		return se.Traceback
	}
	return ""
}
