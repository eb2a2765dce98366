// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package lua

import (
	"context"
	"strings"

	"github.com/samber/oops"

	plugins "github.com/shenbot/shenbot/internal/plugin"
	"github.com/shenbot/shenbot/internal/plugin/hostfunc"
)

// Compile-time interface check.
var _ plugins.Interpreter = (*Interpreter)(nil)

// Interpreter loads plugin source into fresh sandboxed Lua states.
type Interpreter struct {
	factory   *StateFactory
	hostFuncs *hostfunc.Functions
}

// NewInterpreter creates an interpreter without host functions.
func NewInterpreter() *Interpreter {
	return &Interpreter{factory: NewStateFactory()}
}

// NewInterpreterWithFunctions creates an interpreter that installs the
// shenbot host library into every module.
// Panics if hf is nil (consistent with the other constructors).
func NewInterpreterWithFunctions(hf *hostfunc.Functions) *Interpreter {
	if hf == nil {
		panic("lua.NewInterpreterWithFunctions: hostFuncs cannot be nil")
	}
	return &Interpreter{factory: NewStateFactory(), hostFuncs: hf}
}

// LoadModule compiles source and runs its top level under ctx. Syntax and
// runtime errors are returned as *plugins.ScriptError.
func (i *Interpreter) LoadModule(ctx context.Context, source, name string) (plugins.Module, error) {
	L, err := i.factory.NewState(ctx)
	if err != nil {
		return nil, oops.In("lua").With("module", name).With("operation", "load").Hint("failed to create state").Wrap(err)
	}
	m := &Module{name: name, L: L, handler: tracebackHandler(L)}
	if i.hostFuncs != nil {
		i.hostFuncs.Register(L, name, m)
	}

	fn, err := L.Load(strings.NewReader(source), name)
	if err != nil {
		L.Close()
		return nil, &plugins.ScriptError{Func: chunkName, Message: err.Error(), Cause: err}
	}

	m.mu.Lock()
	err = m.call(ctx, chunkName, fn)
	m.mu.Unlock()
	if err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}
