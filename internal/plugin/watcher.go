// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package plugin

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/shenbot/shenbot/pkg/errutil"
)

// DefaultDebounce is how long the watcher waits for a file to settle.
const DefaultDebounce = 300 * time.Millisecond

// Watcher reloads plugins as soon as their files change instead of waiting
// for the next event's refresh. Content hashes still decide whether
// anything is reloaded.
type Watcher struct {
	registry *Registry
	debounce time.Duration
	backoff  func() retry.Backoff

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher over the registry's plugin directory.
func NewWatcher(registry *Registry, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		registry: registry,
		debounce: debounce,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewConstant(200*time.Millisecond))
		},
		timers: make(map[string]*time.Timer),
	}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return oops.Wrapf(err, "create plugin watcher")
	}
	defer func() { _ = fw.Close() }()

	dir := w.registry.PluginDir()
	if err := fw.Add(dir); err != nil {
		return oops.With("dir", dir).Wrapf(err, "watch plugin directory")
	}
	slog.Info("plugin hot reload enabled", "dir", dir)

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.schedule(ctx, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("plugin watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, event fsnotify.Event) {
	if !strings.EqualFold(filepath.Ext(event.Name), SourceExt) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[event.Name]; ok && timer.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	w.timers[event.Name] = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		delete(w.timers, event.Name)
		w.mu.Unlock()
		w.apply(ctx, event)
	})
}

// apply reloads a known file in place, retrying while it looks half
// written; anything else (new, removed, renamed files) goes through Refresh.
func (w *Watcher) apply(ctx context.Context, event fsnotify.Event) {
	if ctx.Err() != nil {
		return
	}
	if _, known := w.registry.FindByPath(event.Name); known && event.Has(fsnotify.Write) {
		err := retry.Do(ctx, w.backoff(), func(ctx context.Context) error {
			res, err := w.registry.CheckAndReload(ctx, event.Name)
			if err != nil {
				switch errutil.Code(err) {
				case CodeReadPluginFailed, CodeInterpreterError:
					return retry.RetryableError(err)
				}
				return err
			}
			if res == Reloaded {
				slog.Info("plugin file changed, reloaded", "path", event.Name)
			}
			return nil
		})
		if err != nil {
			errutil.LogError(slog.Default(), "plugin hot reload failed", err)
		}
		return
	}

	if res := w.registry.Refresh(ctx); !res.Empty() {
		slog.Info("plugin directory changed",
			"added", res.Added,
			"reloaded", res.Reloaded,
			"removed", res.Removed,
			"failed", res.Failed,
		)
	}
}

// stop cancels pending timers and waits for running ones.
func (w *Watcher) stop() {
	w.mu.Lock()
	for name, timer := range w.timers {
		if timer.Stop() {
			w.wg.Done()
		}
		delete(w.timers, name)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
