// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package hostfunc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	plugins "github.com/shenbot/shenbot/internal/plugin"
	"github.com/shenbot/shenbot/internal/plugin/hostfunc"
	"github.com/shenbot/shenbot/internal/version"
)

type scheduledCall struct {
	plugin string
	delay  time.Duration
	run    func(ctx context.Context) error
}

// recordingScheduler keeps scheduled work so tests decide when it runs.
type recordingScheduler struct {
	mu    sync.Mutex
	calls []scheduledCall
}

func (s *recordingScheduler) Schedule(_ context.Context, plugin string, delay time.Duration, run func(ctx context.Context) error) *plugins.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scheduledCall{plugin: plugin, delay: delay, run: run})
	return &plugins.Handle{ID: ulid.Make(), Kind: plugins.EventScheduled}
}

// stateInvoker calls straight into one state without locking.
type stateInvoker struct{ L *lua.LState }

func (i stateInvoker) Invoke(ctx context.Context, _ string, fn *lua.LFunction) error {
	i.L.SetContext(ctx)
	defer i.L.RemoveContext()
	return i.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
}

func newScheduledState(t *testing.T, s hostfunc.Scheduler) *lua.LState {
	t.Helper()
	L := lua.NewState()
	t.Cleanup(L.Close)
	hostfunc.New(version.Info{}).WithScheduler(s).Register(L, "file-name", stateInvoker{L: L})
	return L
}

func TestSchedule_DefersCallback(t *testing.T) {
	sched := &recordingScheduler{}
	L := newScheduledState(t, sched)

	require.NoError(t, L.DoString(`
PLUGIN_MANIFEST = { id = "timer" }
fired = 0
task = shenbot.schedule(1.5, function() fired = fired + 1 end)
`))

	_, err := ulid.Parse(L.GetGlobal("task").String())
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(0), L.GetGlobal("fired"))
	require.Len(t, sched.calls, 1)
	assert.Equal(t, "timer", sched.calls[0].plugin)
	assert.Equal(t, 1500*time.Millisecond, sched.calls[0].delay)

	require.NoError(t, sched.calls[0].run(context.Background()))
	assert.Equal(t, lua.LNumber(1), L.GetGlobal("fired"))
}

func TestSchedule_FallsBackToModuleName(t *testing.T) {
	sched := &recordingScheduler{}
	L := newScheduledState(t, sched)

	require.NoError(t, L.DoString(`shenbot.schedule(0, function() end)`))
	require.Len(t, sched.calls, 1)
	assert.Equal(t, "file-name", sched.calls[0].plugin)
}

func TestSchedule_CallbackErrorReachesScheduler(t *testing.T) {
	sched := &recordingScheduler{}
	L := newScheduledState(t, sched)

	require.NoError(t, L.DoString(`shenbot.schedule(0, function() error("late failure") end)`))
	require.Len(t, sched.calls, 1)
	err := sched.calls[0].run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "late failure")
}

func TestSchedule_RejectsBadArguments(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"negative delay", `shenbot.schedule(-1, function() end)`, "delay must be"},
		{"missing function", `shenbot.schedule(1)`, "function expected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := &recordingScheduler{}
			L := newScheduledState(t, sched)

			err := L.DoString(tt.code)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, sched.calls)
		})
	}
}

func TestSchedule_UnavailableWithoutScheduler(t *testing.T) {
	L := newState(t)

	err := L.DoString(`shenbot.schedule(1, function() end)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}
