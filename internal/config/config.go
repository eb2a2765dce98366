// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

// Package config loads shenbot's settings from defaults, a YAML file and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/shenbot/shenbot/internal/logging"
	"github.com/shenbot/shenbot/internal/xdg"
)

// FileName is the config file looked up in the XDG config directory.
const FileName = "shenbot.yaml"

// CodeInvalidConfig marks a configuration that failed validation.
const CodeInvalidConfig = "INVALID_CONFIG"

// Default values.
const (
	DefaultLogFormat     = logging.FormatText
	DefaultLogLevel      = "info"
	DefaultMetricsAddr   = "127.0.0.1:9100"
	DefaultWatchDebounce = 300 * time.Millisecond
	DefaultRateBurst     = 5
	DefaultRatePerSecond = 0.5
)

// RateLimit throttles admin commands per sender.
type RateLimit struct {
	Burst     int     `koanf:"burst"`
	PerSecond float64 `koanf:"per_second"`
}

// Config is the resolved runtime configuration.
type Config struct {
	PluginDir string `koanf:"plugin_dir"`
	// ConfigDir holds per-plugin config files and plugins.toml.
	ConfigDir   string `koanf:"config_dir"`
	LogFormat   string `koanf:"log_format"`
	LogLevel    string `koanf:"log_level"`
	MetricsAddr string `koanf:"metrics_addr"`
	Watch       bool   `koanf:"watch"`
	// WatchDebounce is how long a changed file must settle before reload.
	WatchDebounce time.Duration `koanf:"watch_debounce"`
	Ignore        []string      `koanf:"ignore"`
	// ClientID addresses targeted admin commands. Empty means a random id
	// is picked at load time.
	ClientID  string    `koanf:"client_id"`
	Admins    []string  `koanf:"admins"`
	RateLimit RateLimit `koanf:"rate_limit"`
}

// flagKeys maps flag names to config keys. Flags not listed here belong
// to individual commands and are not configuration.
var flagKeys = map[string]string{
	"plugin-dir":     "plugin_dir",
	"config-dir":     "config_dir",
	"log-format":     "log_format",
	"log-level":      "log_level",
	"metrics-addr":   "metrics_addr",
	"watch":          "watch",
	"watch-debounce": "watch_debounce",
	"ignore":         "ignore",
	"client-id":      "client_id",
	"admin":          "admins",
}

// RegisterFlags adds the configuration flags to fs. Flag defaults are left
// empty; Load applies the real defaults so a config file can override them.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("plugin-dir", "", "directory scanned for *.lua plugins (default: XDG_CONFIG_HOME/shenbot/plugins)")
	fs.String("config-dir", "", "directory for plugin config files and plugins.toml (default: XDG_CONFIG_HOME/shenbot/plugin-config)")
	fs.String("log-format", "", "log format (json or text)")
	fs.String("log-level", "", "minimum log level (debug, info, warn, error)")
	fs.String("metrics-addr", "", "metrics/health HTTP address")
	fs.Bool("watch", false, "reload plugins when their files change")
	fs.Duration("watch-debounce", 0, "delay before a changed plugin file is reloaded")
	fs.StringSlice("ignore", nil, "glob of plugin file names to skip (repeatable)")
	fs.String("client-id", "", "id addressing targeted admin commands")
	fs.StringSlice("admin", nil, "sender id allowed to run admin commands (repeatable)")
}

// DefaultPath returns the config file location in the XDG config directory.
func DefaultPath() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Defaults returns the built-in configuration.
func Defaults() (Config, error) {
	pluginDir, err := xdg.PluginDir()
	if err != nil {
		return Config{}, err
	}
	configDir, err := xdg.PluginConfigDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		PluginDir:     pluginDir,
		ConfigDir:     configDir,
		LogFormat:     DefaultLogFormat,
		LogLevel:      DefaultLogLevel,
		MetricsAddr:   DefaultMetricsAddr,
		WatchDebounce: DefaultWatchDebounce,
		RateLimit: RateLimit{
			Burst:     DefaultRateBurst,
			PerSecond: DefaultRatePerSecond,
		},
	}, nil
}

// Load resolves the configuration. path names a YAML file; when empty the
// default path is used if it exists. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	defaults, err := Defaults()
	if err != nil {
		return Config{}, err
	}

	k := koanf.New(".")
	for key, value := range map[string]any{
		"plugin_dir":            defaults.PluginDir,
		"config_dir":            defaults.ConfigDir,
		"log_format":            defaults.LogFormat,
		"log_level":             defaults.LogLevel,
		"metrics_addr":          defaults.MetricsAddr,
		"watch":                 defaults.Watch,
		"watch_debounce":        defaults.WatchDebounce,
		"rate_limit.burst":      defaults.RateLimit.Burst,
		"rate_limit.per_second": defaults.RateLimit.PerSecond,
	} {
		if err := k.Set(key, value); err != nil {
			return Config{}, oops.With("key", key).Wrapf(err, "set default")
		}
	}

	explicit := path != ""
	if !explicit {
		if path, err = DefaultPath(); err != nil {
			return Config{}, err
		}
	}
	if err := loadFile(k, path, explicit); err != nil {
		return Config{}, err
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Wrapf(err, "load config flags")
		}
	}

	var cfg Config
	err = k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return Config{}, oops.Code(CodeInvalidConfig).With("path", path).Wrapf(err, "decode config")
	}

	if cfg.ClientID == "" {
		cfg.ClientID = randomClientID()
	}
	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return oops.Code(CodeInvalidConfig).With("path", path).Wrapf(err, "stat config file")
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code(CodeInvalidConfig).With("path", path).Wrapf(err, "load config file")
	}
	return nil
}

// randomClientID takes the low characters of a fresh ULID, which come
// from its random component.
func randomClientID() string {
	id := ulid.Make().String()
	return strings.ToLower(id[len(id)-6:])
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.PluginDir == "" {
		return invalid("plugin_dir", "plugin_dir is required")
	}
	if c.ConfigDir == "" {
		return invalid("config_dir", "config_dir is required")
	}
	if err := logging.ValidateFormat(c.LogFormat); err != nil {
		return invalid("log_format", "%s", err.Error())
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log_level", "log_level must be one of debug, info, warn or error, got %q", c.LogLevel)
	}
	if c.WatchDebounce < 0 {
		return invalid("watch_debounce", "watch_debounce must not be negative")
	}
	if c.ClientID == "" || strings.ContainsAny(c.ClientID, " \t\n") {
		return invalid("client_id", "client_id must be a non-empty word, got %q", c.ClientID)
	}
	for _, admin := range c.Admins {
		if strings.TrimSpace(admin) == "" {
			return invalid("admins", "admins must not contain empty ids")
		}
	}
	for _, pattern := range c.Ignore {
		if _, err := glob.Compile(pattern); err != nil {
			return invalid("ignore", "invalid ignore pattern %q: %v", pattern, err)
		}
	}
	if c.RateLimit.Burst < 0 || c.RateLimit.PerSecond < 0 {
		return invalid("rate_limit", "rate_limit values must not be negative")
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code(CodeInvalidConfig).With("key", key).Errorf(format, args...)
}
