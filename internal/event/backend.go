// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package event

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/shenbot/shenbot/internal/observability"
	plugins "github.com/shenbot/shenbot/internal/plugin"
)

// LogBackend is a plugins.Backend with no chat connection. Outbound
// actions are logged and, when out is set, printed one per line.
type LogBackend struct {
	name   string
	logger *slog.Logger

	// mu is shared by backends writing to the same out.
	mu  *sync.Mutex
	out io.Writer
}

var _ plugins.Backend = (*LogBackend)(nil)

// NewLogBackend creates a backend named name ("ica" or "tailchat").
func NewLogBackend(name string, out io.Writer) *LogBackend {
	return &LogBackend{
		name:   name,
		logger: slog.Default().With("backend", name),
		mu:     &sync.Mutex{},
		out:    out,
	}
}

// Name returns the backend name.
func (b *LogBackend) Name() string { return b.name }

// SendMessage logs a new message to room.
func (b *LogBackend) SendMessage(ctx context.Context, room, text string) error {
	b.logger.InfoContext(ctx, "send message", "room", room, "text", text)
	observability.RecordBackendAction(b.name, "send_message")
	return b.print("[%s] %s: %s", b.name, room, text)
}

// DeleteMessage logs a deletion.
func (b *LogBackend) DeleteMessage(ctx context.Context, room, msgID string) error {
	b.logger.InfoContext(ctx, "delete message", "room", room, "msg_id", msgID)
	observability.RecordBackendAction(b.name, "delete_message")
	return b.print("[%s] %s: (deleted %s)", b.name, room, msgID)
}

// Reply logs a reply to msgID.
func (b *LogBackend) Reply(ctx context.Context, room, msgID, text string) error {
	b.logger.InfoContext(ctx, "reply", "room", room, "msg_id", msgID, "text", text)
	observability.RecordBackendAction(b.name, "reply")
	return b.print("[%s] %s (re %s): %s", b.name, room, msgID, text)
}

func (b *LogBackend) print(format string, args ...any) error {
	if b.out == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := fmt.Fprintf(b.out, format+"\n", args...); err != nil {
		return fmt.Errorf("write %s output: %w", b.name, err)
	}
	return nil
}

// Backends holds one LogBackend per chat backend name.
type Backends map[string]*LogBackend

// NewBackends creates log backends for ica and tailchat.
func NewBackends(out io.Writer) Backends {
	ica := NewLogBackend("ica", out)
	tailchat := NewLogBackend("tailchat", out)
	tailchat.mu = ica.mu
	return Backends{"ica": ica, "tailchat": tailchat}
}

// For returns the backend that produced events of kind k.
func (bs Backends) For(k plugins.EventKind) *LogBackend {
	return bs[k.Backend()]
}
