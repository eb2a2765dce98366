// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

// Package version reports the host and chat protocol versions written into
// generated plugin config headers and printed by /bot-rs.
package version

// Set at build time with -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Protocol API versions the bundled backends speak.
const (
	IcaAPI      = "2.0.1"
	TailchatAPI = "2.0.0"
)

// Info is the set of host component versions exposed to plugins.
type Info struct {
	Shenbot     string
	IcaAPI      string
	TailchatAPI string
}

// Current returns the running host's version info.
func Current() Info {
	return Info{
		Shenbot:     Version,
		IcaAPI:      IcaAPI,
		TailchatAPI: TailchatAPI,
	}
}
