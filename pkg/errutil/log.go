// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

// Package errutil holds helpers for working with oops errors.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// TracebackKey is the oops context key carrying an interpreter traceback.
const TracebackKey = "traceback"

// Code returns the oops error code of err, or "" when err carries none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := any(oopsErr.Code()).(string)
	return code
}

// LogError logs an error with structured context if it's an oops error.
// A traceback stored in the context is logged as its own attribute so
// multi-line interpreter output stays readable in text logs.
func LogError(logger *slog.Logger, msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.Error(msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := Code(err); code != "" {
		attrs = append(attrs, "code", code)
	}
	rest := make(map[string]any)
	for k, v := range oopsErr.Context() {
		if k == TracebackKey {
			attrs = append(attrs, TracebackKey, v)
			continue
		}
		rest[k] = v
	}
	if len(rest) > 0 {
		attrs = append(attrs, "context", rest)
	}
	logger.Error(msg, attrs...)
}
