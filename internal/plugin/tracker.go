// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package plugin

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc/panics"
)

// Handle tracks one spawned task.
type Handle struct {
	ID     ulid.ULID
	Kind   EventKind
	done   chan struct{}
	cancel context.CancelFunc
}

// Done is closed when the task returns.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Finished reports whether the task has returned.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Abort cancels the task's context. Work that honors its context stops;
// the handle is finished once the work function returns.
func (h *Handle) Abort() { h.cancel() }

// Wait blocks until the task finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tracker keeps the in-flight callback tasks of each event kind.
type Tracker struct {
	mu    sync.Mutex
	tasks map[EventKind][]*Handle
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{tasks: make(map[EventKind][]*Handle)}
}

// Spawn runs work on its own goroutine and tracks it under kind, pruning
// finished handles of that kind. The task context keeps ctx's values but
// not its cancellation: only Abort or CancelAll stop a task. A panic in
// work is recovered and logged.
func (t *Tracker) Spawn(ctx context.Context, kind EventKind, work func(ctx context.Context)) *Handle {
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &Handle{
		ID:     ulid.Make(),
		Kind:   kind,
		done:   make(chan struct{}),
		cancel: cancel,
	}

	t.mu.Lock()
	t.tasks[kind] = append(prune(t.tasks[kind]), h)
	t.mu.Unlock()

	tasksInflight.Inc()
	go func() {
		defer close(h.done)
		defer cancel()
		defer tasksInflight.Dec()

		var pc panics.Catcher
		pc.Try(func() { work(taskCtx) })
		if r := pc.Recovered(); r != nil {
			slog.ErrorContext(taskCtx, "plugin task panicked",
				"task_id", h.ID.String(),
				"event_kind", kind.String(),
				"error", r.AsError(),
			)
		}
	}()
	return h
}

// Schedule spawns run under EventScheduled once delay has passed, so
// JoinAll waits for it and CancelAll drops it. Errors from run are logged
// against plugin.
func (t *Tracker) Schedule(ctx context.Context, plugin string, delay time.Duration, run func(ctx context.Context) error) *Handle {
	return t.Spawn(ctx, EventScheduled, func(ctx context.Context) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			slog.DebugContext(ctx, "scheduled plugin task cancelled", "plugin", plugin, "delay", delay)
			return
		}

		slog.DebugContext(ctx, "running scheduled plugin task", "plugin", plugin, "delay", delay)
		if err := run(ctx); err != nil {
			callbackErrors.WithLabelValues(plugin, EventScheduled.String()).Inc()
			slog.ErrorContext(ctx, "scheduled plugin task raised",
				"plugin", plugin,
				"delay", delay,
				"error", err,
				"traceback", Traceback(err),
			)
		}
	})
}

func prune(handles []*Handle) []*Handle {
	kept := handles[:0]
	for _, h := range handles {
		if !h.Finished() {
			kept = append(kept, h)
		}
	}
	for i := len(kept); i < len(handles); i++ {
		handles[i] = nil
	}
	return kept
}

// CancelAll aborts every tracked task and forgets them.
func (t *Tracker) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for kind, handles := range t.tasks {
		for _, h := range handles {
			h.Abort()
		}
		delete(t.tasks, kind)
	}
}

// next prunes finished handles and returns the first unfinished one,
// walking kinds in sorted order.
func (t *Tracker) next() *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	kinds := make([]EventKind, 0, len(t.tasks))
	for kind := range t.tasks {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	for _, kind := range kinds {
		handles := prune(t.tasks[kind])
		if len(handles) == 0 {
			delete(t.tasks, kind)
			continue
		}
		t.tasks[kind] = handles
		return handles[0]
	}
	return nil
}

// JoinAll waits for every tracked task, including tasks spawned while
// waiting. It returns ctx's error if ctx ends first.
func (t *Tracker) JoinAll(ctx context.Context) error {
	for {
		h := t.next()
		if h == nil {
			return nil
		}
		if err := h.Wait(ctx); err != nil {
			return err
		}
	}
}

// Count returns the number of unfinished tasks of kind.
func (t *Tracker) Count(kind EventKind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countRunning(t.tasks[kind])
}

// TotalCount returns the number of unfinished tasks of every kind.
func (t *Tracker) TotalCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, handles := range t.tasks {
		n += countRunning(handles)
	}
	return n
}

// IsEmpty reports whether no task is running.
func (t *Tracker) IsEmpty() bool { return t.TotalCount() == 0 }

func countRunning(handles []*Handle) int {
	n := 0
	for _, h := range handles {
		if !h.Finished() {
			n++
		}
	}
	return n
}
