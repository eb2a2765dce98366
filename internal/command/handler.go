// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

// Package command handles the built-in /bot-* admin chat commands.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	plugins "github.com/shenbot/shenbot/internal/plugin"
	"github.com/shenbot/shenbot/internal/version"
)

// Control is the registry surface admin commands drive.
type Control interface {
	plugins.PluginControl
	Describe() string
}

// Config configures a Handler.
type Config struct {
	// ClientID addresses targeted commands like /bot-enable-<ClientID>.
	ClientID string
	// Admins lists sender ids allowed to run targeted commands.
	Admins []string
	Host   version.Info
	// Limiter throttles targeted commands per sender. Nil disables it.
	Limiter *RateLimiter
}

// Handler answers admin commands. Plugins still receive every message;
// the handler only produces the built-in replies.
type Handler struct {
	ctl      Control
	clientID string
	admins   map[string]bool
	host     version.Info
	limiter  *RateLimiter
}

// NewHandler creates a handler over ctl.
func NewHandler(ctl Control, cfg Config) *Handler {
	admins := make(map[string]bool, len(cfg.Admins))
	for _, a := range cfg.Admins {
		admins[a] = true
	}
	return &Handler{
		ctl:      ctl,
		clientID: cfg.ClientID,
		admins:   admins,
		host:     cfg.Host,
		limiter:  cfg.Limiter,
	}
}

// IsAdmin reports whether sender may run targeted commands.
func (h *Handler) IsAdmin(sender string) bool { return h.admins[sender] }

// Handle answers msg if it is a built-in command. handled is false for
// ordinary messages, messages from the bot itself, replies, unknown
// commands and commands addressed to another client id.
func (h *Handler) Handle(ctx context.Context, msg Message) (reply string, handled bool) {
	if msg.FromSelf || msg.IsReply {
		return "", false
	}
	cmd, err := Parse(msg.Content)
	if err != nil {
		return "", false
	}

	switch cmd.Verb {
	case "rs", "ls", "help", "permission":
		if cmd.Target != "" || cmd.Args != "" {
			return "", false
		}
		rec := newMetricsRecorder(cmd.Verb, msg.Backend)
		defer rec.record()
		return h.info(cmd.Verb, msg), true

	case "enable", "disable", "reload":
		if cmd.Target != h.clientID {
			return "", false
		}
	default:
		return "", false
	}

	rec := newMetricsRecorder(cmd.Verb, msg.Backend)
	defer rec.record()
	logger := slog.Default().With("command", cmd.Verb, "sender", msg.SenderID, "backend", msg.Backend)

	if !h.IsAdmin(msg.SenderID) {
		rec.setStatus(StatusPermissionDenied)
		logger.WarnContext(ctx, "admin command denied")
		return ReplyMessage(ErrPermissionDenied(cmd.Verb, msg.SenderID)), true
	}
	if h.limiter != nil {
		if ok, cooldown := h.limiter.Allow(msg.SenderID); !ok {
			rec.setStatus(StatusRateLimited)
			return ReplyMessage(ErrRateLimited(cooldown)), true
		}
	}

	id := strings.TrimSpace(cmd.Args)
	if id == "" || strings.ContainsAny(id, " \t") {
		rec.setStatus(StatusError)
		return ReplyMessage(ErrInvalidArgs(cmd.Verb, fmt.Sprintf("%s%s-%s <plugin id>", Prefix, cmd.Verb, h.clientID))), true
	}

	var status string
	switch cmd.Verb {
	case "enable":
		reply, status = h.setStatus(id, true)
	case "disable":
		reply, status = h.setStatus(id, false)
	default:
		reply, status = h.reload(ctx, id)
	}
	rec.setStatus(status)
	logger.InfoContext(ctx, "admin command handled", "plugin", id, "status", status)
	return reply, true
}

func (h *Handler) info(verb string, msg Message) string {
	switch verb {
	case "rs":
		return h.versionText()
	case "ls":
		return fmt.Sprintf("shenbot v%s-%s\n%s", h.host.Shenbot, h.clientID, h.ctl.Describe())
	case "permission":
		if h.IsAdmin(msg.SenderID) {
			return "Your permission: admin"
		}
		return "Your permission: none"
	default:
		return helpText(h.clientID)
	}
}

func (h *Handler) versionText() string {
	return fmt.Sprintf("shenbot v%s-%s\nica api v%s\ntailchat api v%s",
		h.host.Shenbot, h.clientID, h.host.IcaAPI, h.host.TailchatAPI)
}

func (h *Handler) setStatus(id string, enabled bool) (string, string) {
	word := "disabled"
	if enabled {
		word = "enabled"
	}
	current, ok := h.ctl.Status(id)
	if !ok {
		return ReplyMessage(plugins.ErrUnknownPlugin(id)), StatusError
	}
	if current == enabled {
		return fmt.Sprintf("No change, plugin %s is already %s.", id, word), StatusNoChange
	}
	h.ctl.SetStatus(id, enabled)
	return fmt.Sprintf("Plugin %s %s.", id, word), StatusSuccess
}

func (h *Handler) reload(ctx context.Context, id string) (string, string) {
	if _, ok := h.ctl.Status(id); !ok {
		return ReplyMessage(plugins.ErrUnknownPlugin(id)), StatusError
	}
	if err := h.ctl.ReloadByID(ctx, id); err != nil {
		return "Reload failed:\n" + plugins.ReplyMessage(err), StatusError
	}
	return fmt.Sprintf("Plugin %s reloaded.", id), StatusSuccess
}

func helpText(clientID string) string {
	return strings.Join([]string{
		"/bot-rs: show version",
		"/bot-ls: list plugins",
		"/bot-help: show this help",
		"/bot-permission: show your permission",
		fmt.Sprintf("/bot-enable-%s <id>: enable a plugin (admin)", clientID),
		fmt.Sprintf("/bot-disable-%s <id>: disable a plugin (admin)", clientID),
		fmt.Sprintf("/bot-reload-%s <id>: reload a plugin (admin)", clientID),
	}, "\n")
}
