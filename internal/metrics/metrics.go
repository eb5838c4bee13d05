package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProcessStarts counts spawn attempts by result
	ProcessStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procdeck_process_starts_total",
		Help: "Process spawn attempts by result",
	}, []string{"result"})

	// ProcessExits counts process exits by final status
	ProcessExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procdeck_process_exits_total",
		Help: "Process exits by final status",
	}, []string{"status"})

	// HookRuns counts lifecycle hook runs by phase and outcome
	HookRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procdeck_hook_runs_total",
		Help: "Lifecycle hook runs by phase and outcome",
	}, []string{"phase", "outcome"})

	// StopDuration tracks how long a stop takes, hooks included
	StopDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "procdeck_stop_duration_seconds",
		Help:    "Stop duration in seconds, including hooks",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	// Processes reports the number of processes per status
	Processes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "procdeck_processes",
		Help: "Supervised processes by status",
	}, []string{"status"})
)
