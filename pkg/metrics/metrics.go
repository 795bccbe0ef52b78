// Package metrics provides Prometheus instrumentation for projection runs.
//
// Metrics exposed:
//   - solarconsumer_runs_total: Counter of finished runs by status
//   - solarconsumer_errors_total: Counter of failed runs by error kind
//   - solarconsumer_simulate_seconds: Histogram of PV simulator latency
//   - solarconsumer_compute_seconds: Histogram of projection compute time
//   - solarconsumer_runs_in_flight: Gauge of runs currently executing
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/raterudder/solarconsumer/pkg/types"
)

// Metrics holds all Prometheus metrics for runs.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	SimulateSeconds prometheus.Histogram
	ComputeSeconds  prometheus.Histogram
	RunsInFlight    prometheus.Gauge
}

// New creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "solarconsumer_runs_total",
			Help: "Total number of finished runs by status",
		}, []string{"status"}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "solarconsumer_errors_total",
			Help: "Total number of failed runs by error kind",
		}, []string{"kind"}),

		SimulateSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "solarconsumer_simulate_seconds",
			Help:    "Time spent waiting on the PV simulator",
			Buckets: prometheus.DefBuckets,
		}),

		ComputeSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "solarconsumer_compute_seconds",
			Help:    "Time spent computing the projection",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),

		RunsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "solarconsumer_runs_in_flight",
			Help: "Number of runs currently executing",
		}),
	}
}

// RecordSimulate records the time spent simulating.
func (m *Metrics) RecordSimulate(d time.Duration) {
	m.SimulateSeconds.Observe(d.Seconds())
}

// RecordCompute records the time spent computing.
func (m *Metrics) RecordCompute(d time.Duration) {
	m.ComputeSeconds.Observe(d.Seconds())
}

// RecordStart marks a run as started.
func (m *Metrics) RecordStart() {
	m.RunsInFlight.Inc()
}

// RecordFinish marks a run as finished with status. err is the run's error,
// if any.
func (m *Metrics) RecordFinish(status types.RunStatus, err error) {
	m.RunsInFlight.Dec()
	m.RunsTotal.WithLabelValues(string(status)).Inc()
	if err != nil {
		m.ErrorsTotal.WithLabelValues(string(types.KindOf(err))).Inc()
	}
}
