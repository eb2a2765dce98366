// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package command

import (
	"strconv"
)

// Message is the part of an inbound chat message admin commands need.
type Message struct {
	Backend    string
	Room       string
	MsgID      string
	SenderID   string
	SenderName string
	Content    string
	FromSelf   bool
	IsReply    bool
}

// MessageFromPayload reads a message event payload. ok is false when the
// payload is not a table or has no content.
func MessageFromPayload(backend string, payload any) (msg Message, ok bool) {
	fields, isMap := payload.(map[string]any)
	if !isMap {
		return Message{}, false
	}
	msg = Message{
		Backend:    backend,
		Room:       field(fields, "room_id"),
		MsgID:      field(fields, "msg_id"),
		SenderID:   field(fields, "sender_id"),
		SenderName: field(fields, "sender_name"),
		Content:    field(fields, "content"),
	}
	msg.FromSelf, _ = fields["is_from_self"].(bool)
	msg.IsReply, _ = fields["is_reply"].(bool)
	return msg, msg.Content != ""
}

// field renders a scalar payload value. Numeric ids arrive as float64 from
// JSON and are printed without exponent.
func field(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
