// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package event_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shenbot/shenbot/internal/event"
	plugins "github.com/shenbot/shenbot/internal/plugin"
	"github.com/shenbot/shenbot/pkg/errutil"
)

func TestParseLine(t *testing.T) {
	ev, err := event.ParseLine(`{"kind":"ica.new_message","payload":{"room_id":42,"content":"hi","is_from_self":false}}`)
	require.NoError(t, err)

	assert.Equal(t, plugins.EventIcaNewMessage, ev.Kind)
	assert.Equal(t, map[string]any{
		"room_id":      float64(42),
		"content":      "hi",
		"is_from_self": false,
	}, ev.Payload)
}

func TestParseLine_DeletePayload(t *testing.T) {
	ev, err := event.ParseLine(`{"kind":"ica.delete_message","payload":"m1"}`)
	require.NoError(t, err)
	assert.Equal(t, plugins.EventIcaDeleteMessage, ev.Kind)
	assert.Equal(t, "m1", ev.Payload)
}

func TestParseLine_Invalid(t *testing.T) {
	for _, line := range []string{
		`not json`,
		`{"payload":{}}`,
		`{"kind":7}`,
		`{"kind":"irc.message"}`,
	} {
		_, err := event.ParseLine(line)
		errutil.AssertErrorCode(t, err, event.CodeInvalidEvent)
	}
}

func TestSource_Next(t *testing.T) {
	input := strings.Join([]string{
		`# recorded session`,
		``,
		`{"kind":"tailchat.new_message","payload":{"content":"a"}}`,
		`{broken`,
		`{"kind":"ica.join_request","payload":{}}`,
	}, "\n")
	src := event.NewSource(strings.NewReader(input))

	ev, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, plugins.EventTailchatNewMessage, ev.Kind)

	_, err = src.Next()
	errutil.AssertErrorContext(t, err, "line_number", 4)

	ev, err = src.Next()
	require.NoError(t, err)
	assert.Equal(t, plugins.EventIcaJoinRequest, ev.Kind)

	_, err = src.Next()
	assert.Equal(t, io.EOF, err)
}

func TestFeed_SkipsMalformedLines(t *testing.T) {
	input := "{\"kind\":\"ica.new_message\",\"payload\":{}}\nnope\n{\"kind\":\"ica.leave_message\",\"payload\":{}}\n"

	var kinds []plugins.EventKind
	invalid := 0
	err := event.Feed(context.Background(), strings.NewReader(input), func(_ context.Context, ev plugins.Event) {
		kinds = append(kinds, ev.Kind)
	}, func(error) { invalid++ })

	require.NoError(t, err)
	assert.Equal(t, []plugins.EventKind{plugins.EventIcaNewMessage, plugins.EventIcaLeaveMessage}, kinds)
	assert.Equal(t, 1, invalid)
}

func TestFeed_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := event.Feed(ctx, strings.NewReader(`{"kind":"ica.new_message"}`), func(context.Context, plugins.Event) {
		called = true
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
