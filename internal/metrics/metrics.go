// Package metrics exposes the Prometheus collectors the supervisor
// instruments at the same call sites it already touches for its own
// bookkeeping: session counts, hook-event throughput, WebSocket client
// count and tmux subprocess latency. Nothing here changes control flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Sessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "supervisor_sessions",
		Help: "Current number of supervised sessions by kind and status.",
	}, []string{"kind", "status"})

	HookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supervisor_hook_events_total",
		Help: "Total hook events processed by agent and event type.",
	}, []string{"agent", "type"})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "supervisor_ws_clients",
		Help: "Current number of connected WebSocket clients.",
	})

	TmuxCommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "supervisor_tmux_command_duration_seconds",
		Help:    "Duration of tmux subprocess invocations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})
)
