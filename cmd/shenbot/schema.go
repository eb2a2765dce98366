// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	plugins "github.com/shenbot/shenbot/internal/plugin"
)

func newSchemaCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of PLUGIN_MANIFEST",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := plugins.GenerateSchema()
			if err != nil {
				return err
			}
			switch format {
			case "json":
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			case "yaml":
				// JSON is a subset of YAML.
				var doc any
				if err := yaml.Unmarshal(data, &doc); err != nil {
					return fmt.Errorf("failed to convert schema: %w", err)
				}
				out, err := yaml.Marshal(doc)
				if err != nil {
					return fmt.Errorf("failed to convert schema: %w", err)
				}
				_, _ = fmt.Fprint(cmd.OutOrStdout(), string(out))
			default:
				return fmt.Errorf("format must be 'json' or 'yaml', got %q", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format (json or yaml)")
	return cmd
}
