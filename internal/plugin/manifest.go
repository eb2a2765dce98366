// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

// Package plugin hosts chat-bot plugins: it loads scripts from a plugin
// directory, binds their declared config to per-plugin TOML files, reloads
// them when their source changes, persists which ones are enabled, and
// dispatches chat events to their callbacks.
package plugin

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"
	"github.com/samber/oops"

	"github.com/shenbot/shenbot/internal/plugin/config"
	"github.com/shenbot/shenbot/internal/version"
)

// Manifest is a plugin's declared identity and config schema.
type Manifest struct {
	ID          string
	Name        string
	Version     string
	Description string
	Authors     []string
	Homepage    string
	Config      map[string]*config.Schema

	initialized bool
}

// ConfigFileName returns the plugin's config file name, "<id>.toml".
func (m *Manifest) ConfigFileName() string {
	return m.ID + ".toml"
}

// NeedsConfigFile reports whether the plugin declares any config section.
func (m *Manifest) NeedsConfigFile() bool {
	return len(m.Config) > 0
}

// Initialized reports whether config has been bound from a file or defaults.
func (m *Manifest) Initialized() bool {
	return m.initialized
}

// Sections returns the declared section names in sorted order.
func (m *Manifest) Sections() []string {
	names := make([]string, 0, len(m.Config))
	for name := range m.Config {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InitWithFile binds every section from the matching sub-table of a parsed
// config file. A missing or malformed section is read as an empty table, so
// its keys fall back to their defaults.
func (m *Manifest) InitWithFile(table map[string]any) {
	for _, name := range m.Sections() {
		raw, present := table[name]
		sub, ok := raw.(map[string]any)
		if !ok {
			if present {
				slog.Warn("plugin config section is not a table, using defaults",
					"plugin", m.ID, "section", name)
			} else {
				slog.Warn("plugin config section missing, using defaults",
					"plugin", m.ID, "section", name)
			}
			sub = map[string]any{}
		}
		m.Config[name].Read(sub)
	}
	m.initialized = true
}

// InitWithDefaults binds every key to its declared default.
func (m *Manifest) InitWithDefaults() {
	for _, name := range m.Sections() {
		m.Config[name].Read(map[string]any{})
	}
	m.initialized = true
}

// SaveAsText renders the config file: a comment header identifying the
// plugin and host versions, then one TOML table per section. Defaults are
// written until the manifest is initialized, bound values afterwards.
func (m *Manifest) SaveAsText(info version.Info) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# plugin %s (%s) config\n", m.Name, m.ID)
	fmt.Fprintf(&b, "# plugin version: %s\n", m.Version)
	fmt.Fprintf(&b, "# plugin authors: %s\n", strings.Join(m.Authors, ", "))
	fmt.Fprintf(&b, "# shenbot version: %s\n", info.Shenbot)
	fmt.Fprintf(&b, "# ica api version: %s\n", info.IcaAPI)
	fmt.Fprintf(&b, "# tailchat api version: %s\n\n", info.TailchatAPI)

	tables := make(map[string]any, len(m.Config))
	for name, schema := range m.Config {
		tables[name] = schema.Table(!m.initialized)
	}
	data, err := toml.Marshal(tables)
	if err != nil {
		return "", oops.With("plugin", m.ID).Wrapf(err, "encode plugin config")
	}
	b.Write(data)
	return b.String(), nil
}

// View returns the manifest as plain values, rebound onto the module so
// plugin code can read its identity and live config.
func (m *Manifest) View() map[string]any {
	authors := make([]any, len(m.Authors))
	for i, a := range m.Authors {
		authors[i] = a
	}

	sections := make(map[string]any, len(m.Config))
	for name, schema := range m.Config {
		values := make(map[string]any, schema.Len())
		for _, key := range schema.Keys() {
			v, _ := schema.Lookup(key)
			if v.IsNone() {
				continue
			}
			values[key] = v.Native()
		}
		sections[name] = values
	}

	view := map[string]any{
		"id":          m.ID,
		"name":        m.Name,
		"version":     m.Version,
		"authors":     authors,
		"config":      sections,
		"initialized": m.initialized,
	}
	if m.Description != "" {
		view["description"] = m.Description
	}
	if m.Homepage != "" {
		view["homepage"] = m.Homepage
	}
	return view
}

// SemVer parses the manifest version.
func (m *Manifest) SemVer() (*semver.Version, error) {
	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return nil, oops.With("plugin", m.ID).With("version", m.Version).Wrapf(err, "parse plugin version")
	}
	return v, nil
}

// versionChange classifies a reload from old to next for logging.
func versionChange(old, next *Manifest) string {
	ov, oerr := old.SemVer()
	nv, nerr := next.SemVer()
	switch {
	case oerr != nil || nerr != nil:
		if old.Version == next.Version {
			return "same"
		}
		return "changed"
	case nv.GreaterThan(ov):
		return "upgrade"
	case nv.LessThan(ov):
		return "downgrade"
	default:
		return "same"
	}
}

func (m *Manifest) String() string {
	return fmt.Sprintf("%s (%s) v%s", m.Name, m.ID, m.Version)
}
