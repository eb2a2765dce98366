// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package plugin

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// StatusFileName is the name of the enable/disable record in the config dir.
const StatusFileName = "plugins.toml"

const statusHeader = `# shenbot plugin status
# Rewritten by shenbot on startup and shutdown. Edits made while the bot is
# running are overwritten; stop the bot or use the admin commands instead.
# true = enabled, false = disabled

`

// StatusFile is the durable record of which plugins are enabled.
type StatusFile struct {
	path    string
	plugins map[string]bool
}

// NewStatusFile returns an empty status file bound to path.
func NewStatusFile(path string) *StatusFile {
	return &StatusFile{path: path, plugins: map[string]bool{}}
}

// LoadStatusFile reads path. A missing file yields an empty record;
// entries that are not booleans are ignored with a warning.
func LoadStatusFile(path string) (*StatusFile, error) {
	sf := NewStatusFile(path)

	data, err := os.ReadFile(path) //nolint:gosec // path is the configured status file
	if errors.Is(err, fs.ErrNotExist) {
		return sf, nil
	}
	if err != nil {
		return nil, ErrStatusFile(path, err)
	}

	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, ErrStatusFile(path, err)
	}
	raw, ok := doc["plugins"]
	if !ok {
		return sf, nil
	}
	table, ok := raw.(map[string]any)
	if !ok {
		slog.Warn("plugin status file has no [plugins] table", "path", path)
		return sf, nil
	}
	for id, v := range table {
		enabled, ok := v.(bool)
		if !ok {
			slog.Warn("ignoring non-boolean plugin status", "path", path, "plugin", id)
			continue
		}
		sf.plugins[id] = enabled
	}
	return sf, nil
}

// Path returns the file location.
func (f *StatusFile) Path() string { return f.path }

// Get returns the recorded flag for id.
func (f *StatusFile) Get(id string) (enabled, ok bool) {
	enabled, ok = f.plugins[id]
	return enabled, ok
}

// Set records the flag for id.
func (f *StatusFile) Set(id string, enabled bool) {
	f.plugins[id] = enabled
}

// IDs returns the recorded ids in sorted order.
func (f *StatusFile) IDs() []string {
	ids := make([]string, 0, len(f.plugins))
	for id := range f.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Save writes the file through a temporary file and rename.
func (f *StatusFile) Save() error {
	data, err := toml.Marshal(map[string]any{"plugins": f.plugins})
	if err != nil {
		return ErrStatusFile(f.path, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return ErrStatusFile(f.path, err)
	}
	tmp, err := os.CreateTemp(dir, ".plugins-*.toml")
	if err != nil {
		return ErrStatusFile(f.path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(statusHeader); err != nil {
		_ = tmp.Close()
		return ErrStatusFile(f.path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return ErrStatusFile(f.path, err)
	}
	if err := tmp.Close(); err != nil {
		return ErrStatusFile(f.path, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return ErrStatusFile(f.path, err)
	}
	return nil
}
