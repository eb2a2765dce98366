// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

// Package main is the entry point for the shenbot plugin host.
package main

import (
	"fmt"
	"os"

	"github.com/shenbot/shenbot/internal/version"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version.Version, version.Commit, version.Date)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
