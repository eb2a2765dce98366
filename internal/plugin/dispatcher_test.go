// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package plugin_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	plugins "github.com/shenbot/shenbot/internal/plugin"
	"github.com/shenbot/shenbot/pkg/errutil"
)

const replyBody = `
function on_ica_message(msg, client)
  client:reply(msg.room_id, msg.msg_id, client:self_id() .. ":" .. msg.content)
end
`

func drain(t *testing.T, d *plugins.Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
}

func newMessage(content string) plugins.Event {
	return plugins.Event{
		Kind: plugins.EventIcaNewMessage,
		Payload: map[string]any{
			"room_id": "room",
			"msg_id":  "m1",
			"content": content,
		},
	}
}

func TestDispatcher_DeliversToEnabledPlugins(t *testing.T) {
	dirs := newDirs(t)
	dirs.write(t, "alpha.lua", pluginSource("alpha", "1.0.0", replyBody))
	dirs.write(t, "beta.lua", pluginSource("beta", "1.0.0", replyBody))
	dirs.write(t, "quiet.lua", pluginSource("quiet", "1.0.0", replyBody))
	r := newRegistry(t, dirs)
	require.NoError(t, r.LoadAll(context.Background()))
	r.SetStatus("quiet", false)

	backend := &recordingBackend{}
	d := plugins.NewDispatcher(r, plugins.NewTracker())
	assert.Same(t, r, d.Registry())

	handles := d.Dispatch(context.Background(), newMessage("hi"), plugins.Client{Backend: backend, Plugins: r})
	require.Len(t, handles, 2)
	drain(t, d)

	assert.ElementsMatch(t, []sentMessage{
		{Op: "reply", Room: "room", MsgID: "m1", Text: "alpha:hi"},
		{Op: "reply", Room: "room", MsgID: "m1", Text: "beta:hi"},
	}, backend.Messages())
}

func TestDispatcher_CallbackErrorsAreIsolated(t *testing.T) {
	dirs := newDirs(t)
	dirs.write(t, "alpha.lua", pluginSource("alpha", "1.0.0", `
function on_ica_message(msg, client)
  error("alpha is broken")
end
`))
	dirs.write(t, "beta.lua", pluginSource("beta", "1.0.0", replyBody))
	r := newRegistry(t, dirs)
	require.NoError(t, r.LoadAll(context.Background()))

	backend := &recordingBackend{}
	d := plugins.NewDispatcher(r, plugins.NewTracker())
	d.Dispatch(context.Background(), newMessage("hi"), plugins.Client{Backend: backend})
	drain(t, d)

	assert.Equal(t, []sentMessage{{Op: "reply", Room: "room", MsgID: "m1", Text: "beta:hi"}}, backend.Messages())

	// The failing plugin stays loaded and enabled.
	enabled, ok := r.Status("alpha")
	assert.True(t, ok)
	assert.True(t, enabled)
}

func TestDispatcher_SkipsPluginsWithoutCallback(t *testing.T) {
	dirs := newDirs(t)
	dirs.write(t, "alpha.lua", pluginSource("alpha", "1.0.0", replyBody))
	r := newRegistry(t, dirs)
	require.NoError(t, r.LoadAll(context.Background()))

	backend := &recordingBackend{}
	d := plugins.NewDispatcher(r, plugins.NewTracker())
	handles := d.Dispatch(context.Background(), plugins.Event{
		Kind:    plugins.EventIcaDeleteMessage,
		Payload: "m1",
	}, plugins.Client{Backend: backend})
	require.Len(t, handles, 1)
	drain(t, d)

	assert.Empty(t, backend.Messages())
}

func TestDispatcher_RefreshesBeforeDispatch(t *testing.T) {
	dirs := newDirs(t)
	r := newRegistry(t, dirs)
	require.NoError(t, r.LoadAll(context.Background()))

	dirs.write(t, "late.lua", pluginSource("late", "1.0.0", replyBody))

	backend := &recordingBackend{}
	d := plugins.NewDispatcher(r, plugins.NewTracker())
	d.Dispatch(context.Background(), newMessage("hello"), plugins.Client{Backend: backend})
	drain(t, d)

	assert.Equal(t, []sentMessage{{Op: "reply", Room: "room", MsgID: "m1", Text: "late:hello"}}, backend.Messages())
}

func TestDispatcher_ShutdownPersistsStatus(t *testing.T) {
	dirs := newDirs(t)
	dirs.write(t, "alpha.lua", pluginSource("alpha", "1.0.0", ""))
	r := newRegistry(t, dirs)
	require.NoError(t, r.LoadAll(context.Background()))
	r.SetStatus("alpha", false)

	d := plugins.NewDispatcher(r, plugins.NewTracker())
	drain(t, d)

	sf, err := plugins.LoadStatusFile(r.StatusPath())
	require.NoError(t, err)
	enabled, ok := sf.Get("alpha")
	assert.True(t, ok)
	assert.False(t, enabled)
}

func TestDispatcher_ShutdownNotClean(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dirs := newDirs(t)
	for _, id := range []string{"one", "two", "three"} {
		dirs.write(t, id+".lua", pluginSource(id, "1.0.0", `
function on_ica_message(msg, client)
  shenbot.sleep(60)
end
`))
	}
	r, err := plugins.NewRegistry(plugins.RegistryConfig{
		PluginDir:   dirs.plugins,
		ConfigDir:   dirs.config,
		Interpreter: dirs.env().Interpreter,
		Host:        testHost,
	})
	require.NoError(t, err)
	require.NoError(t, r.LoadAll(context.Background()))

	tracker := plugins.NewTracker()
	d := plugins.NewDispatcher(r, tracker)
	assert.Same(t, tracker, d.Tracker())
	d.Dispatch(context.Background(), newMessage("block"), plugins.Client{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = d.Shutdown(ctx)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, plugins.CodePluginNotStoppedCleanly)
	errutil.AssertErrorContext(t, err, "pending_tasks", 3)

	tracker.CancelAll()
	r.Close()
}
