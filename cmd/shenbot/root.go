// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shenbot/shenbot/internal/config"
)

const serviceName = "shenbot"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the shenbot CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shenbot",
		Short: "shenbot - a chat bot driven by Lua plugins",
		Long: `shenbot hosts Lua plugins for the ica and tailchat chat backends.
Plugins are single .lua files that are hot reloaded when they change,
and can be enabled or disabled from chat or from this CLI.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/shenbot/shenbot.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newPluginsCmd())
	cmd.AddCommand(newSchemaCmd())

	return cmd
}

// loadConfig resolves and validates the configuration for cmd.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
