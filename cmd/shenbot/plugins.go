// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shenbot/shenbot/internal/command"
	"github.com/shenbot/shenbot/internal/config"
	"github.com/shenbot/shenbot/internal/logging"
	plugins "github.com/shenbot/shenbot/internal/plugin"
	"github.com/shenbot/shenbot/internal/plugin/hostfunc"
	"github.com/shenbot/shenbot/internal/plugin/lua"
	"github.com/shenbot/shenbot/internal/version"
)

func newPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect and administer plugins without running the bot",
	}
	cmd.AddCommand(newPluginsListCmd())
	cmd.AddCommand(newPluginsStatusCmd("enable", true))
	cmd.AddCommand(newPluginsStatusCmd("disable", false))
	cmd.AddCommand(newPluginsCheckCmd())
	return cmd
}

// setupCLILogging keeps offline commands quiet unless asked otherwise.
func setupCLILogging(cmd *cobra.Command, cfg config.Config) {
	level := logging.ParseLevel(cfg.LogLevel)
	if !cmd.Flags().Changed("log-level") {
		level = slog.LevelWarn
	}
	slog.SetDefault(logging.SetupWithLevel(serviceName, version.Version, cfg.LogFormat, level, cmd.ErrOrStderr()))
}

// newInterpreter builds the Lua interpreter with host functions. Work that
// plugins schedule lands on tracker.
func newInterpreter(host version.Info, tracker *plugins.Tracker) *lua.Interpreter {
	return lua.NewInterpreterWithFunctions(hostfunc.New(host).WithLogger(slog.Default()).WithScheduler(tracker))
}

func newPluginsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Load every plugin and list it with its status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupCLILogging(cmd, cfg)

			// Offline commands never run scheduled work.
			offline := plugins.NewTracker()
			defer offline.CancelAll()

			host := version.Current()
			registry, err := plugins.NewRegistry(plugins.RegistryConfig{
				PluginDir:   cfg.PluginDir,
				ConfigDir:   cfg.ConfigDir,
				Interpreter: newInterpreter(host, offline),
				Host:        host,
				Ignore:      cfg.Ignore,
			})
			if err != nil {
				return err
			}
			defer registry.Close()

			if err := registry.LoadAll(cmd.Context()); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tVERSION\tSTATUS\tNAME\tFILE")
			for _, s := range registry.All() {
				status := "disabled"
				if s.Enabled {
					status = "enabled"
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Version, status, s.Name, filepath.Base(s.Path))
			}
			return w.Flush()
		},
	}
}

// newPluginsStatusCmd edits plugins.toml directly. Only ids recorded by a
// previous load can be changed; a running bot overwrites the file with
// its own state when it shuts down.
func newPluginsStatusCmd(verb string, enabled bool) *cobra.Command {
	word := "disabled"
	if enabled {
		word = "enabled"
	}
	return &cobra.Command{
		Use:   verb + " ID",
		Short: fmt.Sprintf("Mark a plugin %s in plugins.toml", word),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupCLILogging(cmd, cfg)

			id := args[0]
			sf, err := plugins.LoadStatusFile(filepath.Join(cfg.ConfigDir, plugins.StatusFileName))
			if err != nil {
				return err
			}
			current, ok := sf.Get(id)
			if !ok {
				return plugins.ErrUnknownPlugin(id)
			}
			if current == enabled {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No change, plugin %s is already %s.\n", id, word)
				return nil
			}
			sf.Set(id, enabled)
			if err := sf.Save(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Plugin %s %s.\n", id, word)
			return nil
		},
	}
}

func newPluginsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load every plugin in isolation and report failures",
		Long: `Load every plugin file the way run would, but against a scratch config
directory so no config files or status entries are written. Exits non-zero
if any plugin fails to load.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupCLILogging(cmd, cfg)

			scratch, err := os.MkdirTemp("", "shenbot-check-")
			if err != nil {
				return fmt.Errorf("failed to create scratch directory: %w", err)
			}
			defer func() { _ = os.RemoveAll(scratch) }()

			offline := plugins.NewTracker()
			defer offline.CancelAll()

			host := version.Current()
			env := plugins.Env{Interpreter: newInterpreter(host, offline), ConfigDir: scratch, Host: host}
			registry, err := plugins.NewRegistry(plugins.RegistryConfig{
				PluginDir:   cfg.PluginDir,
				ConfigDir:   scratch,
				Interpreter: env.Interpreter,
				Host:        host,
				Ignore:      cfg.Ignore,
			})
			if err != nil {
				return err
			}
			sources, err := registry.Sources()
			if err != nil {
				return err
			}

			failed := 0
			for _, path := range sources {
				name := filepath.Base(path)
				p, err := plugins.LoadPlugin(cmd.Context(), path, env)
				if err != nil {
					failed++
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s\n%s\n", name, indent(command.ReplyMessage(err)))
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%s %s)\n", name, p.ID(), p.Manifest().Version)
				p.Module().Close()
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d plugins failed to load", failed, len(sources))
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d plugins ok\n", len(sources))
			return nil
		},
	}
}

func indent(s string) string {
	out := make([]byte, 0, len(s)+8)
	out = append(out, "    "...)
	for i := 0; i < len(s); i++ {
		out = append(out, s[i])
		if s[i] == '\n' && i < len(s)-1 {
			out = append(out, "    "...)
		}
	}
	return string(out)
}
