// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package command

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status constants for command execution metrics.
const (
	StatusSuccess          = "success"
	StatusNoChange         = "no_change"
	StatusError            = "error"
	StatusPermissionDenied = "permission_denied"
	StatusRateLimited      = "rate_limited"
)

// CommandExecutions is the counter for admin command executions.
// Use RegisterMetrics to register this with a Prometheus registry.
var CommandExecutions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shenbot_admin_command_executions_total",
		Help: "Total number of admin chat command executions",
	},
	[]string{"command", "backend", "status"},
)

// CommandDuration is the histogram for admin command execution duration.
// Use RegisterMetrics to register this with a Prometheus registry.
var CommandDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "shenbot_admin_command_duration_seconds",
		Help:    "Admin chat command execution duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"command", "backend"},
)

// RegisterMetrics registers command package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(CommandExecutions)
	reg.MustRegister(CommandDuration)
}

// metricsRecorder tracks metrics for a single command.
type metricsRecorder struct {
	start   time.Time
	command string
	backend string
	status  string
}

func newMetricsRecorder(command, backend string) *metricsRecorder {
	return &metricsRecorder{start: time.Now(), command: command, backend: backend, status: StatusSuccess}
}

func (m *metricsRecorder) setStatus(status string) { m.status = status }

func (m *metricsRecorder) record() {
	CommandExecutions.WithLabelValues(m.command, m.backend, m.status).Inc()
	CommandDuration.WithLabelValues(m.command, m.backend).Observe(time.Since(m.start).Seconds())
}
