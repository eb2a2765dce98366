// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package plugin_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	plugins "github.com/shenbot/shenbot/internal/plugin"
	"github.com/shenbot/shenbot/internal/plugin/hostfunc"
	pluginlua "github.com/shenbot/shenbot/internal/plugin/lua"
	"github.com/shenbot/shenbot/internal/version"
)

var testHost = version.Info{Shenbot: "0.9.0", IcaAPI: "2.0.1", TailchatAPI: "2.0.0"}

type testDirs struct {
	plugins string
	config  string
}

func newDirs(t *testing.T) testDirs {
	t.Helper()
	root := t.TempDir()
	d := testDirs{
		plugins: filepath.Join(root, "plugins"),
		config:  filepath.Join(root, "config"),
	}
	require.NoError(t, os.MkdirAll(d.plugins, 0o750))
	return d
}

func (d testDirs) env() plugins.Env {
	return plugins.Env{
		Interpreter: pluginlua.NewInterpreterWithFunctions(hostfunc.New(testHost)),
		ConfigDir:   d.config,
		Host:        testHost,
	}
}

func (d testDirs) write(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(d.plugins, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func newRegistry(t *testing.T, d testDirs, ignore ...string) *plugins.Registry {
	t.Helper()
	r, err := plugins.NewRegistry(plugins.RegistryConfig{
		PluginDir:   d.plugins,
		ConfigDir:   d.config,
		Interpreter: pluginlua.NewInterpreterWithFunctions(hostfunc.New(testHost)),
		Host:        testHost,
		Ignore:      ignore,
	})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

// pluginSource renders a minimal plugin with the given id and version.
// body is appended after the manifest.
func pluginSource(id, ver, body string) string {
	return fmt.Sprintf(`PLUGIN_MANIFEST = {
  id = %q,
  name = %q,
  version = %q,
  authors = {"tester"},
}
%s
`, id, strings.ToUpper(id[:1])+id[1:], ver, body)
}

// configPluginSource renders a plugin declaring a "main" config section.
func configPluginSource(id, ver, body string) string {
	return fmt.Sprintf(`PLUGIN_MANIFEST = {
  id = %q,
  name = %q,
  version = %q,
  authors = {"tester"},
  config = {
    main = { greeting = "hi", limit = 3, rooms = {} },
  },
}
%s
`, id, id, ver, body)
}

type sentMessage struct {
	Op, Room, MsgID, Text string
}

type recordingBackend struct {
	mu   sync.Mutex
	msgs []sentMessage
}

func (b *recordingBackend) Name() string { return "ica" }

func (b *recordingBackend) add(m sentMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, m)
	return nil
}

func (b *recordingBackend) SendMessage(_ context.Context, room, text string) error {
	return b.add(sentMessage{Op: "send", Room: room, Text: text})
}

func (b *recordingBackend) DeleteMessage(_ context.Context, room, msgID string) error {
	return b.add(sentMessage{Op: "delete", Room: room, MsgID: msgID})
}

func (b *recordingBackend) Reply(_ context.Context, room, msgID, text string) error {
	return b.add(sentMessage{Op: "reply", Room: room, MsgID: msgID, Text: text})
}

func (b *recordingBackend) Messages() []sentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentMessage(nil), b.msgs...)
}
