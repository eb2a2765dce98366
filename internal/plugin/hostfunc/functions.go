// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

// Package hostfunc provides host functions to Lua plugins: the shenbot
// library table, the client handle passed to callbacks, and conversion
// between Lua values and plain Go values.
package hostfunc

import (
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"

	"github.com/shenbot/shenbot/internal/version"
)

// LibName is the global the host library is installed under.
const LibName = "shenbot"

// Functions provides host functions to Lua plugins.
type Functions struct {
	info      version.Info
	logger    *slog.Logger
	scheduler Scheduler
}

// New creates host functions reporting info as the host version.
func New(info version.Info) *Functions {
	return &Functions{info: info, logger: slog.Default()}
}

// WithLogger returns a copy that logs through logger.
func (f *Functions) WithLogger(logger *slog.Logger) *Functions {
	c := *f
	c.logger = logger
	return &c
}

// Register adds the shenbot library to a Lua state. inv runs scheduled
// callbacks; without it shenbot.schedule raises.
func (f *Functions) Register(ls *lua.LState, pluginName string, inv Invoker) {
	mod := ls.NewTable()

	ls.SetField(mod, "log", ls.NewFunction(f.logFn(pluginName)))
	ls.SetField(mod, "new_id", ls.NewFunction(newIDFn))
	ls.SetField(mod, "sleep", ls.NewFunction(sleepFn))
	ls.SetField(mod, "schedule", ls.NewFunction(f.scheduleFn(pluginName, inv)))

	ver := ls.NewTable()
	ls.SetField(ver, "shenbot", lua.LString(f.info.Shenbot))
	ls.SetField(ver, "ica_api", lua.LString(f.info.IcaAPI))
	ls.SetField(ver, "tailchat_api", lua.LString(f.info.TailchatAPI))
	ls.SetField(mod, "version", ver)

	ls.SetGlobal(LibName, mod)
}

func (f *Functions) logFn(pluginName string) lua.LGFunction {
	return func(L *lua.LState) int {
		level := L.CheckString(1)
		message := L.CheckString(2)

		logger := f.logger.With("plugin", pluginName)
		ctx := callContext(L)
		switch level {
		case "debug":
			logger.DebugContext(ctx, message)
		case "info":
			logger.InfoContext(ctx, message)
		case "warn":
			logger.WarnContext(ctx, message)
		case "error":
			logger.ErrorContext(ctx, message)
		default:
			L.RaiseError("invalid log level %q: use debug, info, warn or error", level)
		}
		return 0
	}
}

func newIDFn(L *lua.LState) int {
	L.Push(lua.LString(ulid.Make().String()))
	return 1
}

// sleepFn blocks for the given number of seconds or until the call is
// cancelled, in which case it raises.
func sleepFn(L *lua.LState) int {
	seconds := float64(L.CheckNumber(1))
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()

	ctx := callContext(L)
	select {
	case <-timer.C:
		return 0
	case <-ctx.Done():
		L.RaiseError("sleep interrupted: %v", ctx.Err())
		return 0
	}
}
