// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package plugin

import (
	"github.com/samber/oops"
)

// EventKind identifies a chat-platform occurrence plugins can subscribe to.
type EventKind string

// Event kinds delivered by the ica and tailchat backends.
const (
	EventIcaNewMessage      EventKind = "ica.new_message"
	EventIcaDeleteMessage   EventKind = "ica.delete_message"
	EventIcaSystemMessage   EventKind = "ica.system_message"
	EventIcaJoinRequest     EventKind = "ica.join_request"
	EventIcaLeaveMessage    EventKind = "ica.leave_message"
	EventTailchatNewMessage EventKind = "tailchat.new_message"
)

// EventScheduled is the tracker kind of work deferred with
// shenbot.schedule. No backend produces it.
const EventScheduled EventKind = "plugin.scheduled"

var eventCallbacks = map[EventKind]string{
	EventIcaNewMessage:      "on_ica_message",
	EventIcaDeleteMessage:   "on_ica_delete_message",
	EventIcaSystemMessage:   "on_ica_system_message",
	EventIcaJoinRequest:     "on_ica_join_request",
	EventIcaLeaveMessage:    "on_ica_leave_message",
	EventTailchatNewMessage: "on_tailchat_message",
}

// EventKinds returns every supported kind in a stable order.
func EventKinds() []EventKind {
	return []EventKind{
		EventIcaNewMessage,
		EventIcaDeleteMessage,
		EventIcaSystemMessage,
		EventIcaJoinRequest,
		EventIcaLeaveMessage,
		EventTailchatNewMessage,
	}
}

// Callback returns the plugin function invoked for this kind.
func (k EventKind) Callback() string {
	return eventCallbacks[k]
}

// Backend returns the chat backend that produces this kind.
func (k EventKind) Backend() string {
	if k == EventTailchatNewMessage {
		return "tailchat"
	}
	return "ica"
}

func (k EventKind) String() string { return string(k) }

// ParseEventKind validates a kind name.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(s)
	if _, ok := eventCallbacks[k]; !ok {
		return "", oops.Code("UNKNOWN_EVENT_KIND").
			With("event_kind", s).
			Errorf("unknown event kind: %s", s)
	}
	return k, nil
}

// Event is one inbound occurrence. Payload is passed to plugin callbacks
// as-is: a table of message fields, or a bare message id for deletions.
type Event struct {
	Kind    EventKind
	Payload any
}
