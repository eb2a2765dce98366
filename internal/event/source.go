// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

// Package event feeds chat events from a JSON-lines stream and provides a
// backend that records outbound actions in the log.
package event

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"github.com/tidwall/gjson"

	plugins "github.com/shenbot/shenbot/internal/plugin"
	"github.com/shenbot/shenbot/pkg/errutil"
)

// CodeInvalidEvent marks a line that is not a usable event.
const CodeInvalidEvent = "INVALID_EVENT"

// maxLineSize bounds a single event line.
const maxLineSize = 1 << 20

// ParseLine decodes one event of the form
//
//	{"kind": "ica.new_message", "payload": {...}}
//
// Numbers in the payload decode as float64; a deletion payload is a bare
// message id string.
func ParseLine(line string) (plugins.Event, error) {
	if !gjson.Valid(line) {
		return plugins.Event{}, oops.Code(CodeInvalidEvent).
			With("line", line).
			Errorf("event is not valid JSON")
	}
	kind := gjson.Get(line, "kind")
	if kind.Type != gjson.String {
		return plugins.Event{}, oops.Code(CodeInvalidEvent).
			With("line", line).
			Errorf("event has no kind")
	}
	k, err := plugins.ParseEventKind(kind.String())
	if err != nil {
		// Not wrapped: the inner code would shadow ours.
		return plugins.Event{}, oops.Code(CodeInvalidEvent).
			With("line", line).
			With("event_kind", kind.String()).
			Errorf("unknown event kind: %s", kind.String())
	}
	return plugins.Event{Kind: k, Payload: gjson.Get(line, "payload").Value()}, nil
}

// Source reads events from a JSON-lines stream. Blank lines and lines
// starting with '#' are skipped.
type Source struct {
	scanner *bufio.Scanner
	line    int
}

// NewSource creates a source over r.
func NewSource(r io.Reader) *Source {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Source{scanner: scanner}
}

// Next returns the next event. It returns io.EOF when the stream ends.
// A malformed line yields an error carrying its line number; reading may
// continue afterwards.
func (s *Source) Next() (plugins.Event, error) {
	for s.scanner.Scan() {
		s.line++
		text := strings.TrimSpace(s.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		ev, err := ParseLine(text)
		if err != nil {
			return plugins.Event{}, oops.With("line_number", s.line).Wrap(err)
		}
		return ev, nil
	}
	if err := s.scanner.Err(); err != nil {
		return plugins.Event{}, oops.Code(CodeInvalidEvent).Wrapf(err, "read events")
	}
	return plugins.Event{}, io.EOF
}

// Feed passes every event from r to handle until the stream ends or ctx
// is done. Malformed lines are logged, reported to invalid if it is not
// nil, and skipped.
func Feed(ctx context.Context, r io.Reader, handle func(context.Context, plugins.Event), invalid func(error)) error {
	src := NewSource(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := src.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if errutil.Code(err) == CodeInvalidEvent && src.scanner.Err() == nil {
				errutil.LogError(slog.Default(), "skipping event line", err)
				if invalid != nil {
					invalid(err)
				}
				continue
			}
			return err
		}
		handle(ctx, ev)
	}
}
