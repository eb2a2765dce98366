// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

// Package observability exposes the bot's Prometheus metrics and health
// endpoints over HTTP.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// shutdownGrace bounds how long Run waits for in-flight scrapes.
const shutdownGrace = 5 * time.Second

// ReadinessChecker returns whether the bot has finished loading plugins.
type ReadinessChecker func() bool

// RegisterFunc registers a package's collectors with the server registry.
type RegisterFunc func(prometheus.Registerer)

// Collectors fed by the event pipeline and the chat backends. They are
// package-level so callers record without a Server, even when metrics are
// not served.
var (
	eventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shenbot_events_received_total",
			Help: "Total number of inbound chat events by kind",
		},
		[]string{"event_kind"},
	)
	eventsInvalid = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shenbot_events_invalid_total",
			Help: "Total number of inbound event lines that could not be parsed",
		},
	)
	backendActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shenbot_backend_actions_total",
			Help: "Total number of outbound chat actions by backend and action",
		},
		[]string{"backend", "action"},
	)
)

// RecordEvent counts one inbound event of kind.
func RecordEvent(kind string) { eventsReceived.WithLabelValues(kind).Inc() }

// RecordInvalidEvent counts one inbound line that was not an event.
func RecordInvalidEvent() { eventsInvalid.Inc() }

// RecordBackendAction counts one outbound chat action.
func RecordBackendAction(backend, action string) {
	backendActions.WithLabelValues(backend, action).Inc()
}

// Server serves /metrics, /healthz and /readyz on one listener.
type Server struct {
	listener net.Listener
	registry *prometheus.Registry
	http     *http.Server
}

// Listen binds addr ("127.0.0.1:9100", ":0") and prepares a server over a
// private registry holding the Go and process collectors, this package's
// collectors and whatever register adds. Nothing is served until Run.
func Listen(addr string, ready ReadinessChecker, register ...RegisterFunc) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		eventsReceived,
		eventsInvalid,
		backendActions,
	)
	for _, fn := range register {
		fn(registry)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, oops.Code("METRICS_LISTEN_FAILED").With("addr", addr).Wrapf(err, "listen for metrics")
	}

	s := &Server{listener: listener, registry: registry}
	s.http = &http.Server{
		Handler:           s.routes(ready),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Registry accepts collectors created after Listen.
func (s *Server) Registry() prometheus.Registerer { return s.registry }

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Run serves until ctx ends, then shuts down. It returns an error only if
// serving fails on its own.
func (s *Server) Run(ctx context.Context) error {
	served := make(chan error, 1)
	go func() { served <- s.http.Serve(s.listener) }()
	slog.Info("metrics endpoint listening", "addr", s.Addr())

	select {
	case err := <-served:
		return oops.With("addr", s.Addr()).Wrapf(err, "serve metrics")
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := s.http.Shutdown(stopCtx); err != nil {
		slog.Warn("metrics endpoint did not shut down cleanly", "error", err)
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return oops.With("addr", s.Addr()).Wrapf(err, "serve metrics")
	}
	return nil
}

func (s *Server) routes(ready ReadinessChecker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "alive")
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			writeStatus(w, http.StatusServiceUnavailable, "loading plugins")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	return mux
}

func writeStatus(w http.ResponseWriter, code int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(text + "\n"))
}
