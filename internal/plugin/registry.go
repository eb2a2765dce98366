// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/shenbot/shenbot/internal/version"
	"github.com/shenbot/shenbot/pkg/errutil"
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// PluginDir is scanned, non-recursively, for *.lua files.
	PluginDir string
	// ConfigDir holds per-plugin config files and plugins.toml.
	ConfigDir   string
	Interpreter Interpreter
	// Host is written into generated config headers. Zero means version.Current().
	Host version.Info
	// Ignore lists glob patterns matched against file names to skip.
	Ignore []string
}

// ReloadResult is the outcome of CheckAndReload.
type ReloadResult uint8

// Reload outcomes.
const (
	Unchanged ReloadResult = iota
	Reloaded
)

func (r ReloadResult) String() string {
	if r == Reloaded {
		return "reloaded"
	}
	return "unchanged"
}

// RefreshResult lists what one Refresh pass changed.
type RefreshResult struct {
	Added    []string
	Reloaded []string
	Removed  []string
	Failed   []string
}

// Empty reports whether the pass changed nothing.
func (r RefreshResult) Empty() bool {
	return len(r.Added)+len(r.Reloaded)+len(r.Removed)+len(r.Failed) == 0
}

// Snapshot is a point-in-time view of one plugin, safe to use after the
// registry lock is released.
type Snapshot struct {
	ID       string
	Name     string
	Version  string
	Path     string
	Enabled  bool
	State    State
	Manifest *Manifest
	Module   Module
}

// Registry owns every loaded plugin. All plugin state is guarded by one
// mutex; plugin callbacks are never invoked while it is held, except for
// on_load during a load or reload. Modules dropped while the lock is held
// are closed on their own goroutine, because a callback running in them may
// itself be waiting for the lock.
type Registry struct {
	mu         sync.Mutex
	env        Env
	pluginDir  string
	statusPath string
	ignore     []glob.Glob
	plugins    map[string]*Plugin
	// failed remembers the content hash of sources that failed to load so
	// Refresh does not retry them until they change.
	failed map[string]uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Interpreter == nil {
		return nil, oops.Errorf("registry requires an interpreter")
	}
	host := cfg.Host
	if host == (version.Info{}) {
		host = version.Current()
	}

	ignore := make([]glob.Glob, 0, len(cfg.Ignore))
	for _, pattern := range cfg.Ignore {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, oops.With("pattern", pattern).Wrapf(err, "compile ignore pattern")
		}
		ignore = append(ignore, g)
	}

	return &Registry{
		env: Env{
			Interpreter: cfg.Interpreter,
			ConfigDir:   cfg.ConfigDir,
			Host:        host,
		},
		pluginDir:  cfg.PluginDir,
		statusPath: filepath.Join(cfg.ConfigDir, StatusFileName),
		ignore:     ignore,
		plugins:    make(map[string]*Plugin),
		failed:     make(map[string]uint64),
	}, nil
}

// StatusPath returns the location of plugins.toml.
func (r *Registry) StatusPath() string { return r.statusPath }

// PluginDir returns the scanned directory.
func (r *Registry) PluginDir() string { return r.pluginDir }

// LoadAll loads every plugin file in the plugin directory, skipping files
// that fail, then reconciles enabled flags with plugins.toml: recorded flags
// win, unrecorded plugins are added, and the file is rewritten.
//
// Nothing here stops the bot. An unreadable plugin directory leaves the
// registry empty, and an unreadable status file leaves every plugin at its
// default flag without rewriting the file. Only ctx cancellation is returned.
func (r *Registry) LoadAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() { pluginsLoaded.Set(float64(len(r.plugins))) }()

	paths, err := r.scan()
	if err != nil {
		errutil.LogError(slog.Default(), "plugin directory unreadable", err)
	}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return oops.With("dir", r.pluginDir).Wrapf(err, "load plugins")
		}
		if _, err := r.loadLocked(ctx, path); err != nil {
			errutil.LogError(slog.Default(), "plugin load failed", err)
		}
	}
	slog.Info("plugins loaded", "count", len(r.plugins), "dir", r.pluginDir)

	sf, err := LoadStatusFile(r.statusPath)
	if err != nil {
		errutil.LogError(slog.Default(), "plugin status file unreadable, using defaults", err)
		return nil
	}
	for id, p := range r.plugins {
		if enabled, ok := sf.Get(id); ok {
			p.enabled = enabled
		} else {
			sf.Set(id, p.enabled)
		}
	}
	if err := sf.Save(); err != nil {
		errutil.LogError(slog.Default(), "plugin status file not saved", err)
	}
	return nil
}

// Sources lists the plugin files LoadAll and Refresh consider.
func (r *Registry) Sources() ([]string, error) {
	return r.scan()
}

// scan lists plugin source files, sorted, honoring ignore patterns.
func (r *Registry) scan() ([]string, error) {
	entries, err := os.ReadDir(r.pluginDir)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("plugin directory does not exist", "dir", r.pluginDir)
		return nil, nil
	}
	if err != nil {
		return nil, oops.With("dir", r.pluginDir).Wrapf(err, "read plugin directory")
	}

	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), SourceExt) {
			continue
		}
		if r.ignored(name) {
			slog.Debug("plugin file ignored", "path", name)
			continue
		}
		paths = append(paths, filepath.Join(r.pluginDir, name))
	}
	return paths, nil
}

func (r *Registry) ignored(name string) bool {
	for _, g := range r.ignore {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func (r *Registry) loadLocked(ctx context.Context, path string) (*Plugin, error) {
	p, err := LoadPlugin(ctx, path, r.env)
	if err != nil {
		if h, ok := fileHash(path); ok {
			r.failed[path] = h
		}
		return nil, err
	}
	if existing, dup := r.plugins[p.ID()]; dup && existing.path != path {
		p.close()
		return nil, ErrDuplicatePluginID(p.ID(), path, existing.path)
	}
	delete(r.failed, path)
	r.plugins[p.ID()] = p
	slog.Info("plugin loaded", "plugin", p.ID(), "path", path, "version", p.manifest.Version)
	return p, nil
}

func (r *Registry) byPathLocked(path string) *Plugin {
	clean := filepath.Clean(path)
	for _, p := range r.plugins {
		if filepath.Clean(p.path) == clean {
			return p
		}
	}
	return nil
}

func (r *Registry) reloadLocked(ctx context.Context, p *Plugin) error {
	oldID := p.ID()
	err := p.reload(ctx, r.env, func(m *Manifest) error {
		if other, ok := r.plugins[m.ID]; ok && other != p {
			return ErrDuplicatePluginID(m.ID, p.path, other.path)
		}
		return nil
	})
	if err != nil {
		if h, ok := fileHash(p.path); ok {
			r.failed[p.path] = h
		}
		pluginReloads.WithLabelValues(reloadFailed).Inc()
		return err
	}
	delete(r.failed, p.path)
	if newID := p.ID(); newID != oldID {
		delete(r.plugins, oldID)
		r.plugins[newID] = p
		slog.Warn("plugin id changed on reload", "plugin", newID, "previous", oldID, "path", p.path)
	}
	pluginReloads.WithLabelValues(reloadOK).Inc()
	return nil
}

// CheckAndReload reloads the plugin loaded from path if its file changed.
func (r *Registry) CheckAndReload(ctx context.Context, path string) (ReloadResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.byPathLocked(path)
	if p == nil {
		return Unchanged, ErrUnknownPlugin(path)
	}
	if !p.Changed() {
		return Unchanged, nil
	}
	if err := r.reloadLocked(ctx, p); err != nil {
		return Unchanged, err
	}
	return Reloaded, nil
}

// Refresh brings the registry in line with the plugin directory: plugins
// whose file vanished are dropped, new files are loaded with their recorded
// status, and changed files are reloaded. Sources that already failed are
// skipped until their content changes. Failures are logged.
func (r *Registry) Refresh(ctx context.Context) RefreshResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res RefreshResult
	paths, err := r.scan()
	if err != nil {
		errutil.LogError(slog.Default(), "plugin refresh scan failed", err)
		return res
	}
	present := make(map[string]bool, len(paths))
	for _, path := range paths {
		present[filepath.Clean(path)] = true
	}

	for id, p := range r.plugins {
		if !present[filepath.Clean(p.path)] {
			delete(r.plugins, id)
			go p.close()
			res.Removed = append(res.Removed, id)
			slog.Info("plugin removed, source file gone", "plugin", id, "path", p.path)
		}
	}
	for path := range r.failed {
		if !present[filepath.Clean(path)] {
			delete(r.failed, path)
		}
	}

	var sf *StatusFile
	for _, path := range paths {
		if r.knownFailure(path) {
			continue
		}
		if p := r.byPathLocked(path); p != nil {
			if !p.Changed() {
				continue
			}
			if err := r.reloadLocked(ctx, p); err != nil {
				errutil.LogError(slog.Default(), "plugin reload failed", err)
				res.Failed = append(res.Failed, path)
				continue
			}
			res.Reloaded = append(res.Reloaded, p.ID())
			continue
		}

		p, err := r.loadLocked(ctx, path)
		if err != nil {
			errutil.LogError(slog.Default(), "plugin load failed", err)
			res.Failed = append(res.Failed, path)
			continue
		}
		if sf == nil {
			if sf, err = LoadStatusFile(r.statusPath); err != nil {
				errutil.LogError(slog.Default(), "read plugin status failed", err)
				sf = NewStatusFile(r.statusPath)
			}
		}
		if enabled, ok := sf.Get(p.ID()); ok {
			p.enabled = enabled
		}
		res.Added = append(res.Added, p.ID())
	}

	sort.Strings(res.Removed)
	pluginsLoaded.Set(float64(len(r.plugins)))
	return res
}

// knownFailure reports whether path still holds a source that failed before.
func (r *Registry) knownFailure(path string) bool {
	h, ok := r.failed[path]
	if !ok {
		return false
	}
	cur, ok := fileHash(path)
	return ok && cur == h
}

// Status returns the in-memory enabled flag of id.
func (r *Registry) Status(id string) (enabled, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plugins[id]
	if !ok {
		return false, false
	}
	return p.enabled, true
}

// SetStatus sets the in-memory enabled flag of id and returns the previous
// value. Unknown ids are left alone and reported with ok=false. Nothing is
// written to disk; see SyncToFile.
func (r *Registry) SetStatus(id string, enabled bool) (previous, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plugins[id]
	if !ok {
		return false, false
	}
	previous = p.enabled
	p.enabled = enabled
	if previous != enabled {
		slog.Info("plugin status changed", "plugin", id, "enabled", enabled)
	}
	return previous, true
}

// ReloadByID reloads a plugin from its file whether or not it changed.
func (r *Registry) ReloadByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plugins[id]
	if !ok {
		return ErrUnknownPlugin(id)
	}
	return r.reloadLocked(ctx, p)
}

// SyncToFile writes the live enabled flags to plugins.toml. Entries for
// plugins that are not loaded right now are kept.
func (r *Registry) SyncToFile() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sf, err := LoadStatusFile(r.statusPath)
	if err != nil {
		errutil.LogError(slog.Default(), "plugin status file unreadable, rewriting", err)
		sf = NewStatusFile(r.statusPath)
	}
	for id, p := range r.plugins {
		sf.Set(id, p.enabled)
	}
	return sf.Save()
}

// SyncFromFile applies the flags recorded in plugins.toml to loaded plugins.
func (r *Registry) SyncFromFile() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sf, err := LoadStatusFile(r.statusPath)
	if err != nil {
		return err
	}
	for id, p := range r.plugins {
		if enabled, ok := sf.Get(id); ok {
			p.enabled = enabled
		}
	}
	return nil
}

func (p *Plugin) snapshot() Snapshot {
	return Snapshot{
		ID:       p.ID(),
		Name:     p.manifest.Name,
		Version:  p.manifest.Version,
		Path:     p.path,
		Enabled:  p.enabled,
		State:    p.State(),
		Manifest: p.manifest,
		Module:   p.module,
	}
}

func (r *Registry) snapshots(onlyEnabled bool) []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.plugins))
	for _, p := range r.plugins {
		if onlyEnabled && !p.enabled {
			continue
		}
		out = append(out, p.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Enabled returns snapshots of the enabled plugins, sorted by id.
func (r *Registry) Enabled() []Snapshot { return r.snapshots(true) }

// All returns snapshots of every plugin, sorted by id.
func (r *Registry) All() []Snapshot { return r.snapshots(false) }

// Get returns a snapshot of plugin id.
func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plugins[id]
	if !ok {
		return Snapshot{}, false
	}
	return p.snapshot(), true
}

// FindByPath returns a snapshot of the plugin loaded from path.
func (r *Registry) FindByPath(path string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.byPathLocked(path)
	if p == nil {
		return Snapshot{}, false
	}
	return p.snapshot(), true
}

// Remove drops plugin id and closes its module.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plugins[id]
	if !ok {
		return false
	}
	delete(r.plugins, id)
	go p.close()
	pluginsLoaded.Set(float64(len(r.plugins)))
	return true
}

// RemoveByPath drops the plugin loaded from path and closes its module.
func (r *Registry) RemoveByPath(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.byPathLocked(path)
	if p == nil {
		return false
	}
	delete(r.plugins, p.ID())
	go p.close()
	pluginsLoaded.Set(float64(len(r.plugins)))
	return true
}

// Len returns the number of loaded plugins.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plugins)
}

// Describe renders one line per plugin for operator listings.
func (r *Registry) Describe() string {
	all := r.All()
	if len(all) == 0 {
		return "no plugins loaded"
	}
	var b strings.Builder
	for i, s := range all {
		if i > 0 {
			b.WriteByte('\n')
		}
		status := "disabled"
		if s.Enabled {
			status = "enabled"
		}
		fmt.Fprintf(&b, "%s %s [%s] %s", s.ID, s.Version, status, s.Name)
		if s.State == StateReloadFailed {
			b.WriteString(" (last reload failed)")
		}
	}
	return b.String()
}

// Close empties the registry, then closes every module. Closing waits for
// callbacks still running in a module.
func (r *Registry) Close() {
	for _, p := range r.detach() {
		p.close()
	}
}

// Abandon empties the registry and closes modules in the background, so
// a callback stuck in a host call cannot hold up the caller. Each module is
// released once its running callback returns.
func (r *Registry) Abandon() {
	for _, p := range r.detach() {
		go p.close()
	}
}

func (r *Registry) detach() []*Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Plugin, 0, len(r.plugins))
	for id, p := range r.plugins {
		out = append(out, p)
		delete(r.plugins, id)
	}
	pluginsLoaded.Set(0)
	return out
}
