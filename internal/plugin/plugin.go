// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package plugin

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/shenbot/shenbot/internal/plugin/config"
	"github.com/shenbot/shenbot/internal/version"
)

// Env is what loading a plugin needs from the host.
type Env struct {
	Interpreter Interpreter
	// ConfigDir holds <id>.toml config files.
	ConfigDir string
	Host      version.Info
}

// State describes a loaded plugin.
type State uint8

// Plugin states. A plugin only exists in the registry once loaded, so
// there is no unloaded state.
const (
	StateReady State = iota
	// StateReloadFailed means the last reload failed and the previous
	// module is still serving.
	StateReloadFailed
)

func (s State) String() string {
	if s == StateReloadFailed {
		return "reload-failed"
	}
	return "ready"
}

// Plugin is one loaded plugin file. The module, manifest and hash change
// together on a successful reload and not at all on a failed one.
// Fields are guarded by the owning Registry's lock.
type Plugin struct {
	path     string
	manifest *Manifest
	module   Module
	hash     uint64
	enabled  bool
	lastErr  error
}

// loaded is the result of one complete load attempt.
type loaded struct {
	manifest *Manifest
	module   Module
	hash     uint64
}

// LoadPlugin loads the plugin at path. It is enabled by default.
func LoadPlugin(ctx context.Context, path string, env Env) (*Plugin, error) {
	l, err := loadFromPath(ctx, path, env)
	if err != nil {
		return nil, err
	}
	return &Plugin{
		path:     path,
		manifest: l.manifest,
		module:   l.module,
		hash:     l.hash,
		enabled:  true,
	}, nil
}

// ID returns the manifest id.
func (p *Plugin) ID() string { return p.manifest.ID }

// Path returns the source file path.
func (p *Plugin) Path() string { return p.path }

// Manifest returns the current manifest. Treat it as read-only.
func (p *Plugin) Manifest() *Manifest { return p.manifest }

// Module returns the current module.
func (p *Plugin) Module() Module { return p.module }

// Hash returns the content hash of the loaded source.
func (p *Plugin) Hash() uint64 { return p.hash }

// Enabled reports whether the plugin receives events.
func (p *Plugin) Enabled() bool { return p.enabled }

// State reports whether the last reload attempt succeeded.
func (p *Plugin) State() State {
	if p.lastErr != nil {
		return StateReloadFailed
	}
	return StateReady
}

// LastError returns the error of the last failed reload, if any.
func (p *Plugin) LastError() error { return p.lastErr }

// Changed reports whether the file on disk differs from the loaded source.
// An unreadable file counts as changed.
func (p *Plugin) Changed() bool {
	h, ok := fileHash(p.path)
	return !ok || h != p.hash
}

// Reload loads the plugin file again. On success module, manifest and hash
// are replaced together and the old module is closed; on failure nothing
// changes except LastError.
func (p *Plugin) Reload(ctx context.Context, env Env) error {
	return p.reload(ctx, env, nil)
}

func (p *Plugin) reload(ctx context.Context, env Env, accept func(*Manifest) error) error {
	next, err := loadFromPath(ctx, p.path, env)
	if err != nil {
		p.lastErr = err
		return err
	}
	if accept != nil {
		if err := accept(next.manifest); err != nil {
			next.module.Close()
			p.lastErr = err
			return err
		}
	}

	slog.Info("plugin reloaded",
		"plugin", next.manifest.ID,
		"path", p.path,
		"version", next.manifest.Version,
		"change", versionChange(p.manifest, next.manifest),
	)

	old := p.module
	p.manifest, p.module, p.hash = next.manifest, next.module, next.hash
	p.lastErr = nil

	// A callback dispatched before the swap may still hold the old module;
	// Close waits for it without blocking the registry.
	go old.Close()
	return nil
}

func (p *Plugin) close() {
	if p.module != nil {
		p.module.Close()
	}
}

func fileHash(path string) (uint64, bool) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the plugin directory scan
	if err != nil {
		return 0, false
	}
	return xxhash.Sum64(data), true
}

// loadFromPath runs the full load sequence. Any module created along the
// way is closed if a later step fails.
func loadFromPath(ctx context.Context, path string, env Env) (*loaded, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, ErrPluginNotFound(path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, ErrPluginNotFound(path, nil)
	}

	src, err := os.ReadFile(path) //nolint:gosec // path comes from the plugin directory scan
	if err != nil {
		return nil, ErrReadPluginFailed(path, err)
	}
	hash := xxhash.Sum64(src)

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	mod, err := env.Interpreter.LoadModule(ctx, string(src), name)
	if err != nil {
		return nil, ErrInterpreter(path, err)
	}
	ok := false
	defer func() {
		if !ok {
			mod.Close()
		}
	}()

	raw, present := mod.Attr(ManifestAttr)
	if !present || raw == nil {
		return nil, ErrNoManifest(path)
	}
	manifest, err := DecodeManifest(path, raw)
	if err != nil {
		return nil, err
	}

	if err := bindConfig(manifest, env); err != nil {
		return nil, err
	}

	if err := mod.SetAttr(ManifestAttr, manifest.View()); err != nil {
		return nil, ErrInterpreter(path, err)
	}

	if mod.HasFunc(OnLoadFunc) {
		if err := mod.Call(ctx, OnLoadFunc); err != nil {
			return nil, ErrOnloadFailed(manifest.ID, path, err)
		}
	}

	ok = true
	return &loaded{manifest: manifest, module: mod, hash: hash}, nil
}

// bindConfig initializes the manifest from <ConfigDir>/<id>.toml, writing
// the defaults there first if the file does not exist yet. Plugins that
// declare no config sections never touch the config directory.
func bindConfig(m *Manifest, env Env) error {
	if !m.NeedsConfigFile() {
		m.InitWithDefaults()
		return nil
	}

	cfgPath := filepath.Join(env.ConfigDir, m.ConfigFileName())
	info, err := os.Stat(cfgPath)
	switch {
	case err == nil && info.IsDir():
		return ErrPluginCfgIsDir(m.ID, cfgPath)

	case err == nil:
		data, err := os.ReadFile(cfgPath) //nolint:gosec // path is built from the validated plugin id
		if err != nil {
			return ErrReadPluginCfgFailed(m.ID, cfgPath, err)
		}
		table, err := config.ParseText(string(data))
		if err != nil {
			return ErrPluginConfigParse(m.ID, cfgPath, err)
		}
		m.InitWithFile(table)
		return nil

	case errors.Is(err, fs.ErrNotExist):
		text, err := m.SaveAsText(env.Host)
		if err != nil {
			return ErrWriteDefaultCfgFailed(m.ID, cfgPath, err)
		}
		if err := os.MkdirAll(env.ConfigDir, 0o750); err != nil {
			return ErrWriteDefaultCfgFailed(m.ID, cfgPath, err)
		}
		if err := os.WriteFile(cfgPath, []byte(text), 0o600); err != nil {
			return ErrWriteDefaultCfgFailed(m.ID, cfgPath, err)
		}
		slog.Info("wrote default plugin config", "plugin", m.ID, "path", cfgPath)
		m.InitWithDefaults()
		return nil

	default:
		return ErrReadPluginCfgFailed(m.ID, cfgPath, err)
	}
}
