// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

// Package xdg provides XDG Base Directory paths for shenbot.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "shenbot"

func base(env string, fallback ...string) (string, error) {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return "", oops.With("env", env).Wrapf(err, "resolve home directory")
		}
	}
	parts := append([]string{home}, fallback...)
	return filepath.Join(append(parts, appName)...), nil
}

// ConfigDir returns the XDG config directory for shenbot.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	return base("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the XDG data directory for shenbot.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() (string, error) {
	return base("XDG_DATA_HOME", ".local", "share")
}

// PluginDir is where plugin scripts are discovered by default.
func PluginDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "plugins"), nil
}

// PluginConfigDir holds per-plugin config files and plugins.toml.
func PluginConfigDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "plugin-config"), nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.With("path", path).Wrapf(err, "create directory")
	}
	return nil
}
