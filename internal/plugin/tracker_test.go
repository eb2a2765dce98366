// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package plugin_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	plugins "github.com/shenbot/shenbot/internal/plugin"
)

func TestTracker_SpawnAndJoin(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := plugins.NewTracker()
	release := make(chan struct{})
	h := tr.Spawn(context.Background(), plugins.EventIcaNewMessage, func(context.Context) {
		<-release
	})

	assert.False(t, h.Finished())
	assert.Equal(t, 1, tr.Count(plugins.EventIcaNewMessage))
	assert.Equal(t, 0, tr.Count(plugins.EventTailchatNewMessage))
	assert.False(t, tr.IsEmpty())

	close(release)
	require.NoError(t, tr.JoinAll(context.Background()))
	assert.True(t, h.Finished())
	assert.True(t, tr.IsEmpty())
}

func TestTracker_TaskOutlivesSpawnContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := plugins.NewTracker()
	ctx, cancel := context.WithCancel(context.Background())
	seen := make(chan error, 1)
	tr.Spawn(ctx, plugins.EventIcaNewMessage, func(taskCtx context.Context) {
		cancel()
		time.Sleep(10 * time.Millisecond)
		seen <- taskCtx.Err()
	})

	require.NoError(t, tr.JoinAll(context.Background()))
	assert.NoError(t, <-seen)
}

func TestTracker_JoinAllDeadline(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := plugins.NewTracker()
	for range 3 {
		tr.Spawn(context.Background(), plugins.EventIcaNewMessage, func(ctx context.Context) {
			<-ctx.Done()
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tr.JoinAll(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, tr.TotalCount())

	tr.CancelAll()
	assert.True(t, tr.IsEmpty())
}

func TestTracker_Abort(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := plugins.NewTracker()
	h := tr.Spawn(context.Background(), plugins.EventIcaJoinRequest, func(ctx context.Context) {
		<-ctx.Done()
	})

	h.Abort()
	require.NoError(t, h.Wait(context.Background()))
	assert.True(t, h.Finished())
	assert.Equal(t, plugins.EventIcaJoinRequest, h.Kind)
}

func TestTracker_PanicIsContained(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := plugins.NewTracker()
	h := tr.Spawn(context.Background(), plugins.EventIcaNewMessage, func(context.Context) {
		panic("plugin bug")
	})

	require.NoError(t, h.Wait(context.Background()))
	assert.True(t, tr.IsEmpty())
}

func TestTracker_JoinAllSeesLateSpawns(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := plugins.NewTracker()
	done := make(chan struct{})
	tr.Spawn(context.Background(), plugins.EventIcaNewMessage, func(context.Context) {
		tr.Spawn(context.Background(), plugins.EventTailchatNewMessage, func(context.Context) {
			time.Sleep(10 * time.Millisecond)
			close(done)
		})
	})

	require.NoError(t, tr.JoinAll(context.Background()))
	select {
	case <-done:
	default:
		t.Fatal("JoinAll returned before the nested task finished")
	}
}

func TestTracker_ScheduleRunsAfterDelay(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := plugins.NewTracker()
	start := time.Now()
	ran := make(chan time.Duration, 1)
	h := tr.Schedule(context.Background(), "timer", 30*time.Millisecond, func(context.Context) error {
		ran <- time.Since(start)
		return nil
	})

	assert.Equal(t, plugins.EventScheduled, h.Kind)
	assert.Equal(t, 1, tr.Count(plugins.EventScheduled))
	require.NoError(t, tr.JoinAll(context.Background()))
	assert.GreaterOrEqual(t, <-ran, 30*time.Millisecond)
	assert.True(t, tr.IsEmpty())
}

func TestTracker_ScheduleErrorIsContained(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := plugins.NewTracker()
	tr.Schedule(context.Background(), "timer", 0, func(context.Context) error {
		return &plugins.ScriptError{Func: "scheduled", Message: "boom"}
	})

	require.NoError(t, tr.JoinAll(context.Background()))
}

func TestTracker_CancelAllDropsPendingSchedule(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := plugins.NewTracker()
	ran := make(chan struct{}, 1)
	h := tr.Schedule(context.Background(), "timer", time.Hour, func(context.Context) error {
		ran <- struct{}{}
		return nil
	})

	tr.CancelAll()
	require.NoError(t, h.Wait(context.Background()))
	assert.Empty(t, ran)
}
