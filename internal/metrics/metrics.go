// Package metrics exposes Prometheus collectors for the crawl engine.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	unitsTotal          *prometheus.CounterVec
	unitRetriesTotal    prometheus.Counter
	unitDurationSeconds prometheus.Histogram
	flushesTotal        *prometheus.CounterVec
	checkpointBytes     prometheus.Gauge
	queueRemaining      prometheus.Gauge
	budgetState         *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		unitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "areacrawl_units_total",
				Help: "Total number of work units finished, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		unitRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "areacrawl_unit_retries_total",
				Help: "Total number of transient retries across all units.",
			},
		)

		unitDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "areacrawl_unit_duration_seconds",
				Help:    "Histogram of per-unit fetch latencies.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
		)

		flushesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "areacrawl_checkpoint_flushes_total",
				Help: "Total checkpoint flushes, labeled by result.",
			},
			[]string{"result"},
		)

		checkpointBytes = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "areacrawl_checkpoint_bytes",
				Help: "Size of the last encoded checkpoint artifact.",
			},
		)

		queueRemaining = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "areacrawl_queue_remaining",
				Help: "Work units remaining in the current execution's queue.",
			},
		)

		budgetState = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "areacrawl_budget_state",
				Help: "Current time-budget supervisor state (1 for active state).",
			},
			[]string{"state"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUnit records one finished unit with its outcome ("done"/"failed").
func ObserveUnit(outcome string, durationSeconds float64) {
	if unitsTotal == nil {
		return
	}
	unitsTotal.WithLabelValues(outcome).Inc()
	unitDurationSeconds.Observe(durationSeconds)
}

// ObserveRetry counts one transient retry.
func ObserveRetry() {
	if unitRetriesTotal == nil {
		return
	}
	unitRetriesTotal.Inc()
}

// ObserveFlush records a checkpoint flush attempt.
func ObserveFlush(ok bool, bytes int) {
	if flushesTotal == nil {
		return
	}
	if ok {
		flushesTotal.WithLabelValues("ok").Inc()
		checkpointBytes.Set(float64(bytes))
		return
	}
	flushesTotal.WithLabelValues("error").Inc()
}

// SetQueueRemaining publishes how many units the current queue still holds.
func SetQueueRemaining(n int) {
	if queueRemaining == nil {
		return
	}
	queueRemaining.Set(float64(n))
}

// SetBudgetState marks the active supervisor state.
func SetBudgetState(state string) {
	if budgetState == nil {
		return
	}
	for _, s := range []string{"running", "grace_window", "stopped"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		budgetState.WithLabelValues(s).Set(v)
	}
}
