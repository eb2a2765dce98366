// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Reload outcome labels.
const (
	reloadOK     = "reloaded"
	reloadFailed = "failed"
)

// Plugin runtime metrics. Use RegisterMetrics to expose them.
var (
	pluginsLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shenbot_plugins_loaded",
		Help: "Number of plugins currently loaded",
	})

	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shenbot_plugin_dispatch_total",
			Help: "Total number of events dispatched to plugins by event kind",
		},
		[]string{"event_kind"},
	)

	callbackErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shenbot_plugin_callback_errors_total",
			Help: "Total number of plugin callbacks that raised, by plugin and event kind",
		},
		[]string{"plugin", "event_kind"},
	)

	pluginReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shenbot_plugin_reloads_total",
			Help: "Total number of plugin reload attempts by result",
		},
		[]string{"result"},
	)

	tasksInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shenbot_plugin_tasks_inflight",
		Help: "Number of plugin callback tasks currently running",
	})
)

// RegisterMetrics registers plugin runtime metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(pluginsLoaded)
	reg.MustRegister(dispatchTotal)
	reg.MustRegister(callbackErrors)
	reg.MustRegister(pluginReloads)
	reg.MustRegister(tasksInflight)
}
