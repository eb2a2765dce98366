// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package hostfunc

import (
	"context"
	"math"
	"time"

	lua "github.com/yuin/gopher-lua"

	plugins "github.com/shenbot/shenbot/internal/plugin"
)

// Scheduler runs plugin work after a delay, outside the callback that
// asked for it.
type Scheduler interface {
	Schedule(ctx context.Context, plugin string, delay time.Duration, run func(ctx context.Context) error) *plugins.Handle
}

// Invoker calls a function of the Lua state it belongs to. Implementations
// serialize the call with every other use of that state.
type Invoker interface {
	Invoke(ctx context.Context, label string, fn *lua.LFunction) error
}

// scheduledLabel names deferred calls in errors and tracebacks.
const scheduledLabel = "scheduled"

// WithScheduler returns a copy whose shenbot.schedule hands work to s.
func (f *Functions) WithScheduler(s Scheduler) *Functions {
	c := *f
	c.scheduler = s
	return &c
}

// scheduleFn implements shenbot.schedule(seconds, fn). It returns the task
// id at once; fn runs later with no arguments.
func (f *Functions) scheduleFn(fallbackID string, inv Invoker) lua.LGFunction {
	return func(L *lua.LState) int {
		seconds := float64(L.CheckNumber(1))
		fn := L.CheckFunction(2)
		if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			L.ArgError(1, "delay must be a finite number of seconds, not negative")
			return 0
		}
		if f.scheduler == nil || inv == nil {
			L.RaiseError("shenbot.schedule is not available in this host")
			return 0
		}

		delay := time.Duration(seconds * float64(time.Second))
		h := f.scheduler.Schedule(callContext(L), manifestID(L, fallbackID), delay, func(ctx context.Context) error {
			return inv.Invoke(ctx, scheduledLabel, fn)
		})
		L.Push(lua.LString(h.ID.String()))
		return 1
	}
}

// manifestID reads PLUGIN_MANIFEST.id, which is only set once the plugin's
// top level has run.
func manifestID(L *lua.LState, fallback string) string {
	manifest, ok := L.GetGlobal(plugins.ManifestAttr).(*lua.LTable)
	if !ok {
		return fallback
	}
	if id, ok := L.GetField(manifest, "id").(lua.LString); ok && id != "" {
		return string(id)
	}
	return fallback
}
