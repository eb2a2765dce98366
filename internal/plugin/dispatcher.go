// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package plugin

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shenbot/shenbot/pkg/errutil"
)

const tracerName = "github.com/shenbot/shenbot/internal/plugin"

// Dispatcher fans inbound events out to enabled plugins.
type Dispatcher struct {
	registry *Registry
	tracker  *Tracker
	tracer   trace.Tracer
}

// NewDispatcher creates a dispatcher over registry, tracking callback
// tasks in tracker.
func NewDispatcher(registry *Registry, tracker *Tracker) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		tracker:  tracker,
		tracer:   otel.Tracer(tracerName),
	}
}

// Registry returns the dispatcher's registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Tracker returns the dispatcher's task tracker.
func (d *Dispatcher) Tracker() *Tracker { return d.tracker }

// Dispatch refreshes the registry against disk, then starts one tracked
// task per enabled plugin that calls the event's callback with the payload
// and a client handle. It returns without waiting for the callbacks; their
// failures are logged and never reported to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event, client Client) []*Handle {
	dispatchID := ulid.Make().String()
	ctx, span := d.tracer.Start(ctx, "plugin.dispatch", trace.WithAttributes(
		attribute.String("event_kind", ev.Kind.String()),
		attribute.String("dispatch_id", dispatchID),
	))
	defer span.End()

	dispatchTotal.WithLabelValues(ev.Kind.String()).Inc()

	if res := d.registry.Refresh(ctx); !res.Empty() {
		slog.InfoContext(ctx, "plugins refreshed",
			"added", res.Added,
			"reloaded", res.Reloaded,
			"removed", res.Removed,
			"failed", res.Failed,
		)
	}

	targets := d.registry.Enabled()
	span.SetAttributes(attribute.Int("plugins", len(targets)))

	handles := make([]*Handle, 0, len(targets))
	for _, target := range targets {
		c := client
		c.Self = target.ID
		handles = append(handles, d.tracker.Spawn(ctx, ev.Kind, func(taskCtx context.Context) {
			d.invoke(taskCtx, dispatchID, ev, target, c)
		}))
	}
	return handles
}

func (d *Dispatcher) invoke(ctx context.Context, dispatchID string, ev Event, target Snapshot, client Client) {
	fn := ev.Kind.Callback()
	if fn == "" || !target.Module.HasFunc(fn) {
		return
	}

	ctx, span := d.tracer.Start(ctx, "plugin.callback", trace.WithAttributes(
		attribute.String("plugin", target.ID),
		attribute.String("callback", fn),
	))
	defer span.End()

	if err := target.Module.Call(ctx, fn, ev.Payload, client); err != nil {
		callbackErrors.WithLabelValues(target.ID, ev.Kind.String()).Inc()
		span.RecordError(err)
		slog.ErrorContext(ctx, "plugin callback raised",
			"plugin", target.ID,
			"event_kind", ev.Kind.String(),
			"dispatch_id", dispatchID,
			"error", err,
			"traceback", Traceback(err),
		)
	}
}

// Shutdown writes enabled flags to plugins.toml, then waits for running
// callbacks. If ctx ends first it returns PLUGIN_NOT_STOPPED_CLEANLY and
// leaves the tasks running; the caller decides whether to CancelAll.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if err := d.registry.SyncToFile(); err != nil {
		errutil.LogError(slog.Default(), "saving plugin status failed", err)
	}

	if err := d.tracker.JoinAll(ctx); err != nil {
		pending := d.tracker.TotalCount()
		slog.Warn("plugin tasks still running at shutdown", "pending_tasks", pending)
		return ErrPluginNotStoppedCleanly(pending)
	}
	slog.Info("plugin tasks drained")
	return nil
}
