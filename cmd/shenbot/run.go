// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/shenbot/shenbot/internal/command"
	"github.com/shenbot/shenbot/internal/config"
	"github.com/shenbot/shenbot/internal/event"
	"github.com/shenbot/shenbot/internal/logging"
	"github.com/shenbot/shenbot/internal/observability"
	plugins "github.com/shenbot/shenbot/internal/plugin"
	"github.com/shenbot/shenbot/internal/version"
	"github.com/shenbot/shenbot/internal/xdg"
	"github.com/shenbot/shenbot/pkg/errutil"
)

// runOptions holds flags of the run command.
type runOptions struct {
	events string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load plugins and dispatch chat events to them",
		Long: `Load every plugin in the plugin directory and feed it the chat events
read from a JSON-lines stream, one {"kind": ..., "payload": ...} object per
line. Outbound messages are printed to stdout.

The first SIGINT or SIGTERM stops reading events and waits for running
plugin callbacks; a second one interrupts them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			in, closeIn, err := openEvents(cmd, opts.events)
			if err != nil {
				return err
			}
			defer closeIn()

			sigChan := make(chan os.Signal, 2)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			return runBot(cmd.Context(), cmd, cfg, in, sigChan)
		},
	}

	cmd.Flags().StringVar(&opts.events, "events", "-", "JSON-lines event stream to read (- for stdin)")

	return cmd
}

func openEvents(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// runBot runs until the event stream ends, a signal arrives, or ctx is
// cancelled, then drains plugin callbacks.
func runBot(ctx context.Context, cmd *cobra.Command, cfg config.Config, events io.Reader, signals <-chan os.Signal) error {
	if err := logging.ValidateFormat(cfg.LogFormat); err != nil {
		return err
	}
	logging.SetDefault(serviceName, version.Version, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	for _, dir := range []string{cfg.PluginDir, cfg.ConfigDir} {
		if err := xdg.EnsureDir(dir); err != nil {
			return err
		}
	}

	host := version.Current()
	tracker := plugins.NewTracker()
	registry, err := plugins.NewRegistry(plugins.RegistryConfig{
		PluginDir:   cfg.PluginDir,
		ConfigDir:   cfg.ConfigDir,
		Interpreter: newInterpreter(host, tracker),
		Host:        host,
		Ignore:      cfg.Ignore,
	})
	if err != nil {
		return err
	}
	// After a forced shutdown a callback may still hold its module.
	var forced bool
	defer func() {
		if forced {
			registry.Abandon()
			return
		}
		registry.Close()
	}()

	ctx, cancel := context.WithCancel(ctx)
	var background conc.WaitGroup
	defer func() {
		cancel()
		background.Wait()
	}()

	var ready atomic.Bool
	limiterCfg := command.RateLimiterConfig{
		BurstCapacity: cfg.RateLimit.Burst,
		SustainedRate: cfg.RateLimit.PerSecond,
	}
	var limiter *command.RateLimiter
	if cfg.MetricsAddr != "" {
		metrics, err := observability.Listen(cfg.MetricsAddr, ready.Load, plugins.RegisterMetrics, command.RegisterMetrics)
		if err != nil {
			return err
		}
		background.Go(func() {
			// Serving failures stop the bot.
			if err := metrics.Run(ctx); err != nil {
				errutil.LogError(slog.Default(), "metrics endpoint failed, shutting down", err)
				cancel()
			}
		})
		limiter = command.NewRateLimiterWithRegistry(limiterCfg, metrics.Registry())
	} else {
		limiter = command.NewRateLimiter(limiterCfg)
	}
	defer limiter.Close()

	if err := registry.LoadAll(ctx); err != nil {
		return err
	}
	ready.Store(true)

	if cfg.Watch {
		watcher := plugins.NewWatcher(registry, cfg.WatchDebounce)
		background.Go(func() {
			if err := watcher.Run(ctx); err != nil {
				errutil.LogError(slog.Default(), "plugin watcher stopped", err)
			}
		})
	}

	dispatcher := plugins.NewDispatcher(registry, tracker)
	admin := command.NewHandler(registry, command.Config{
		ClientID: cfg.ClientID,
		Admins:   cfg.Admins,
		Host:     host,
		Limiter:  limiter,
	})
	backends := event.NewBackends(cmd.OutOrStdout())

	// Plugin tasks outlive the event loop so shutdown can drain them.
	taskCtx := context.WithoutCancel(ctx)
	handle := func(ctx context.Context, ev plugins.Event) {
		observability.RecordEvent(ev.Kind.String())
		backend := backends.For(ev.Kind)
		if ev.Kind == plugins.EventIcaNewMessage || ev.Kind == plugins.EventTailchatNewMessage {
			if msg, ok := command.MessageFromPayload(backend.Name(), ev.Payload); ok {
				if reply, handled := admin.Handle(ctx, msg); handled {
					if err := backend.Reply(ctx, msg.Room, msg.MsgID, reply); err != nil {
						slog.Warn("admin reply failed", "backend", backend.Name(), "error", err)
					}
				}
			}
		}
		dispatcher.Dispatch(taskCtx, ev, plugins.Client{Backend: backend, Plugins: registry})
	}
	invalid := func(error) { observability.RecordInvalidEvent() }

	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	feedDone := make(chan error, 1)
	// Not joined: a blocked read on stdin cannot be interrupted.
	go func() { feedDone <- event.Feed(feedCtx, events, handle, invalid) }()

	slog.Info("shenbot ready",
		"client_id", cfg.ClientID,
		"plugin_dir", cfg.PluginDir,
		"plugins", registry.Len(),
	)

	select {
	case sig := <-signals:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-feedDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			errutil.LogError(slog.Default(), "event stream failed", err)
		}
		slog.Info("event stream ended")
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}
	stopFeed()

	shutdownErr := shutdown(dispatcher, tracker, signals)
	forced = shutdownErr != nil

	cancel()
	background.Wait()
	slog.Info("shutdown complete")
	return shutdownErr
}

// shutdown saves plugin status and waits for plugin callbacks. Another
// signal interrupts the wait; tasks still running are then cancelled.
func shutdown(dispatcher *plugins.Dispatcher, tracker *plugins.Tracker, signals <-chan os.Signal) error {
	drainCtx, interrupt := context.WithCancel(context.Background())
	defer interrupt()

	go func() {
		select {
		case sig := <-signals:
			slog.Warn("received second signal, interrupting plugin callbacks", "signal", sig)
			interrupt()
		case <-drainCtx.Done():
		}
	}()

	if err := dispatcher.Shutdown(drainCtx); err != nil {
		errutil.LogError(slog.Default(), "plugins did not stop cleanly", err)
		tracker.CancelAll()
		return err
	}
	return nil
}
