// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package command

import (
	"github.com/samber/oops"

	plugins "github.com/shenbot/shenbot/internal/plugin"
)

// Error codes for admin command failures.
const (
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInvalidArgs      = "INVALID_ARGS"
	CodeRateLimited      = "RATE_LIMITED"
)

// ErrPermissionDenied creates an error for a sender who is not an admin.
func ErrPermissionDenied(cmd, sender string) error {
	return oops.Code(CodePermissionDenied).
		With("command", cmd).
		With("sender", sender).
		Errorf("permission denied for command %s", cmd)
}

// ErrInvalidArgs creates an error for invalid arguments.
func ErrInvalidArgs(cmd, usage string) error {
	return oops.Code(CodeInvalidArgs).
		With("command", cmd).
		With("usage", usage).
		Errorf("invalid arguments")
}

// ErrRateLimited creates an error for rate limiting.
func ErrRateLimited(cooldownMs int64) error {
	return oops.Code(CodeRateLimited).
		With("cooldown_ms", cooldownMs).
		Errorf("too many commands, slow down")
}

// ReplyMessage extracts a chat-facing message from an error.
func ReplyMessage(err error) string {
	if err == nil {
		return "Something went wrong. Try again."
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return "Something went wrong. Try again."
	}

	switch oopsErr.Code() {
	case CodePermissionDenied:
		return "You don't have permission to do that."
	case CodeInvalidArgs:
		if usage, ok := oopsErr.Context()["usage"].(string); ok && usage != "" {
			return "Usage: " + usage
		}
		return "Invalid arguments."
	case CodeRateLimited:
		return "Too many commands. Please slow down."
	case plugins.CodeUnknownPlugin:
		return "Unknown plugin."
	default:
		return "Failed: " + plugins.ReplyMessage(err)
	}
}
