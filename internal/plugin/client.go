// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package plugin

import "context"

// Backend is the outbound side of a chat protocol client.
type Backend interface {
	Name() string
	SendMessage(ctx context.Context, room, text string) error
	DeleteMessage(ctx context.Context, room, msgID string) error
	Reply(ctx context.Context, room, msgID, text string) error
}

// PluginControl is the registry surface plugins may drive through their
// client handle. *Registry implements it.
type PluginControl interface {
	Status(id string) (enabled, ok bool)
	SetStatus(id string, enabled bool) (previous, ok bool)
	ReloadByID(ctx context.Context, id string) error
}

var _ PluginControl = (*Registry)(nil)

// Client is the handle passed to every plugin callback.
type Client struct {
	Backend Backend
	Plugins PluginControl
	// Self is the id of the plugin receiving the callback.
	Self string
}
