// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testDirs struct {
	plugins string
	config  string
}

// newTestDirs isolates XDG lookups and returns fresh plugin and config dirs.
func newTestDirs(t *testing.T) testDirs {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	configFile = ""
	root := t.TempDir()
	d := testDirs{plugins: filepath.Join(root, "plugins"), config: filepath.Join(root, "config")}
	require.NoError(t, os.MkdirAll(d.plugins, 0o700))
	return d
}

func (d testDirs) write(t *testing.T, name, source string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(d.plugins, name), []byte(source), 0o600))
}

func (d testDirs) flags() []string {
	return []string{"--plugin-dir", d.plugins, "--config-dir", d.config}
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const echoPlugin = `
PLUGIN_MANIFEST = {
  id = "echo",
  name = "Echo",
  version = "0.1.0",
  config = { main = { prefix = "echo: " } },
}

function on_ica_message(msg, client)
  if msg.content:sub(1, 6) == "/echo " then
    client:reply(msg.room_id, msg.msg_id, PLUGIN_MANIFEST.config.main.prefix .. msg.content:sub(7))
  end
end
`
