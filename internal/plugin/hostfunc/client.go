// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package hostfunc

import (
	lua "github.com/yuin/gopher-lua"

	plugins "github.com/shenbot/shenbot/internal/plugin"
)

// ClientTable builds the handle passed to plugin callbacks. Methods are
// called with colon syntax, so arguments start at index 2. Fallible
// methods return (value, nil) or (nil, message).
func ClientTable(L *lua.LState, c *plugins.Client) *lua.LTable {
	tbl := L.NewTable()
	methods := map[string]lua.LGFunction{
		"self_id":           clientSelfID(c),
		"backend":           clientBackend(c),
		"send_message":      clientSend(c),
		"delete_message":    clientDelete(c),
		"reply":             clientReply(c),
		"plugin_status":     clientPluginStatus(c),
		"set_plugin_status": clientSetPluginStatus(c),
		"reload_plugin":     clientReloadPlugin(c),
	}
	for name, fn := range methods {
		L.SetField(tbl, name, L.NewFunction(fn))
	}
	return tbl
}

const (
	errNoBackend = "no backend attached"
	errNoPlugins = "plugin control unavailable"
	errUnknownID = "unknown plugin"
)

func clientSelfID(c *plugins.Client) lua.LGFunction {
	return func(L *lua.LState) int {
		L.Push(lua.LString(c.Self))
		return 1
	}
}

func clientBackend(c *plugins.Client) lua.LGFunction {
	return func(L *lua.LState) int {
		if c.Backend == nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(c.Backend.Name()))
		return 1
	}
}

func clientSend(c *plugins.Client) lua.LGFunction {
	return func(L *lua.LState) int {
		room := L.CheckString(2)
		text := L.CheckString(3)
		if c.Backend == nil {
			return pushError(L, errNoBackend)
		}
		if err := c.Backend.SendMessage(callContext(L), room, text); err != nil {
			return pushError(L, err.Error())
		}
		return pushSuccess(L, lua.LTrue)
	}
}

func clientDelete(c *plugins.Client) lua.LGFunction {
	return func(L *lua.LState) int {
		room := L.CheckString(2)
		msgID := L.CheckString(3)
		if c.Backend == nil {
			return pushError(L, errNoBackend)
		}
		if err := c.Backend.DeleteMessage(callContext(L), room, msgID); err != nil {
			return pushError(L, err.Error())
		}
		return pushSuccess(L, lua.LTrue)
	}
}

func clientReply(c *plugins.Client) lua.LGFunction {
	return func(L *lua.LState) int {
		room := L.CheckString(2)
		msgID := L.CheckString(3)
		text := L.CheckString(4)
		if c.Backend == nil {
			return pushError(L, errNoBackend)
		}
		if err := c.Backend.Reply(callContext(L), room, msgID, text); err != nil {
			return pushError(L, err.Error())
		}
		return pushSuccess(L, lua.LTrue)
	}
}

func clientPluginStatus(c *plugins.Client) lua.LGFunction {
	return func(L *lua.LState) int {
		id := L.CheckString(2)
		if c.Plugins == nil {
			return pushError(L, errNoPlugins)
		}
		enabled, ok := c.Plugins.Status(id)
		if !ok {
			return pushError(L, errUnknownID)
		}
		return pushSuccess(L, lua.LBool(enabled))
	}
}

func clientSetPluginStatus(c *plugins.Client) lua.LGFunction {
	return func(L *lua.LState) int {
		id := L.CheckString(2)
		enabled := L.CheckBool(3)
		if c.Plugins == nil {
			return pushError(L, errNoPlugins)
		}
		previous, ok := c.Plugins.SetStatus(id, enabled)
		if !ok {
			return pushError(L, errUnknownID)
		}
		return pushSuccess(L, lua.LBool(previous))
	}
}

func clientReloadPlugin(c *plugins.Client) lua.LGFunction {
	return func(L *lua.LState) int {
		id := L.CheckString(2)
		if c.Plugins == nil {
			return pushError(L, errNoPlugins)
		}
		if err := c.Plugins.ReloadByID(callContext(L), id); err != nil {
			return pushError(L, plugins.ReplyMessage(err))
		}
		return pushSuccess(L, lua.LTrue)
	}
}
