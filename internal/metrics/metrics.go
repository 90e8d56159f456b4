package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	polls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskpilot",
			Subsystem: "monitor",
			Name:      "polls_total",
			Help:      "Number of poll cycles by result (ok, failed).",
		}, []string{"result"},
	)
	pollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "taskpilot",
			Subsystem: "monitor",
			Name:      "poll_duration_seconds",
			Help:      "Time spent taking a process snapshot and updating statuses.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	statusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskpilot",
			Subsystem: "monitor",
			Name:      "status_changes_total",
			Help:      "Number of liveness transitions per program.",
		}, []string{"name", "to"},
	)
	programActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "taskpilot",
			Subsystem: "monitor",
			Name:      "program_active",
			Help:      "Current liveness per program (1 = active, 0 = inactive).",
		}, []string{"name"},
	)
	restartDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskpilot",
			Subsystem: "restart",
			Name:      "decisions_total",
			Help:      "Restart attempts by decision (launched, cooldown, disabled, ...).",
		}, []string{"name", "decision"},
	)
	launchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskpilot",
			Subsystem: "launcher",
			Name:      "failures_total",
			Help:      "Number of failed launches by strategy.",
		}, []string{"strategy"},
	)
	stops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskpilot",
			Subsystem: "launcher",
			Name:      "killed_total",
			Help:      "Number of processes killed by stop requests.",
		}, []string{"name"},
	)
	windowOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskpilot",
			Subsystem: "window",
			Name:      "operations_total",
			Help:      "Window operations by kind and result.",
		}, []string{"op", "result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{polls, pollDuration, statusChanges, programActive, restartDecisions, launchFailures, stops, windowOps}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves the given gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Helpers below no-op until Register succeeds.

func ObservePoll(d time.Duration, err error) {
	if !regOK.Load() {
		return
	}
	if err != nil {
		polls.WithLabelValues("failed").Inc()
		return
	}
	polls.WithLabelValues("ok").Inc()
	pollDuration.Observe(d.Seconds())
}

func RecordStatusChange(name string, active bool) {
	if !regOK.Load() {
		return
	}
	to, v := "inactive", 0.0
	if active {
		to, v = "active", 1.0
	}
	statusChanges.WithLabelValues(name, to).Inc()
	programActive.WithLabelValues(name).Set(v)
}

// ForgetProgram drops the liveness gauge for a program that is no longer monitored.
func ForgetProgram(name string) {
	if regOK.Load() {
		programActive.DeleteLabelValues(name)
	}
}

func IncRestartDecision(name, decision string) {
	if regOK.Load() {
		restartDecisions.WithLabelValues(name, decision).Inc()
	}
}

func IncLaunchFailure(strategy string) {
	if regOK.Load() {
		launchFailures.WithLabelValues(strategy).Inc()
	}
}

func AddKilled(name string, n int) {
	if regOK.Load() && n > 0 {
		stops.WithLabelValues(name).Add(float64(n))
	}
}

func IncWindowOp(op string, ok bool) {
	if !regOK.Load() {
		return
	}
	result := "miss"
	if ok {
		result = "ok"
	}
	windowOps.WithLabelValues(op, result).Inc()
}
