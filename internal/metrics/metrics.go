// Package metrics provides Prometheus instrumentation for the SDK.
//
// All metrics are registered in a custom [prometheus.Registry] (not the global
// default) so that only splitz metrics appear when the host application
// exposes them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors used by the SDK.
type Metrics struct {
	Registry *prometheus.Registry

	EvaluationsTotal      *prometheus.CounterVec
	EvaluationDuration    prometheus.Histogram
	ConfigRefreshesTotal  *prometheus.CounterVec
	ConfigRefreshDuration prometheus.Histogram
	TrackingFlushesTotal  *prometheus.CounterVec
	TrackingEventsSent    prometheus.Counter
	TrackingQueueSize     prometheus.Gauge
	VisitorsTracked       prometheus.Gauge
}

// New creates and registers all splitz metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitz_evaluations_total",
			Help: "Total number of flag and experiment evaluations.",
		}, []string{"kind", "result"}),

		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "splitz_evaluation_duration_seconds",
			Help:    "Evaluation latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),

		ConfigRefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitz_config_refreshes_total",
			Help: "Total number of configuration refresh attempts.",
		}, []string{"outcome"}),

		ConfigRefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "splitz_config_refresh_duration_seconds",
			Help:    "Configuration refresh latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		TrackingFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitz_tracking_flushes_total",
			Help: "Total number of tracking flush attempts.",
		}, []string{"outcome"}),

		TrackingEventsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "splitz_tracking_events_sent_total",
			Help: "Total number of tracking events delivered.",
		}),

		TrackingQueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "splitz_tracking_queue_size",
			Help: "Number of tracking events waiting to be flushed.",
		}),

		VisitorsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "splitz_visitors_tracked",
			Help: "Number of visitors held in the in-memory registry.",
		}),
	}

	reg.MustRegister(
		m.EvaluationsTotal,
		m.EvaluationDuration,
		m.ConfigRefreshesTotal,
		m.ConfigRefreshDuration,
		m.TrackingFlushesTotal,
		m.TrackingEventsSent,
		m.TrackingQueueSize,
		m.VisitorsTracked,
	)

	return m
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordEvaluation records one evaluation with its kind ("feature_flag" or
// "experiment") and outcome.
func (m *Metrics) RecordEvaluation(kind string, active bool, elapsed time.Duration) {
	m.EvaluationsTotal.WithLabelValues(kind, strconv.FormatBool(active)).Inc()
	m.EvaluationDuration.Observe(elapsed.Seconds())
}

// RecordConfigRefresh records one configuration refresh attempt. Outcomes
// are "updated", "not_modified", and "error".
func (m *Metrics) RecordConfigRefresh(outcome string, elapsed time.Duration) {
	m.ConfigRefreshesTotal.WithLabelValues(outcome).Inc()
	m.ConfigRefreshDuration.Observe(elapsed.Seconds())
}

// RecordTrackingFlush records one tracking flush attempt.
func (m *Metrics) RecordTrackingFlush(sent int, err error) {
	if err != nil {
		m.TrackingFlushesTotal.WithLabelValues("error").Inc()
		return
	}
	m.TrackingFlushesTotal.WithLabelValues("ok").Inc()
	m.TrackingEventsSent.Add(float64(sent))
}

// SetTrackingQueueSize updates the tracking queue gauge.
func (m *Metrics) SetTrackingQueueSize(size int) {
	m.TrackingQueueSize.Set(float64(size))
}

// SetVisitorsTracked updates the visitor registry gauge.
func (m *Metrics) SetVisitorsTracked(count int) {
	m.VisitorsTracked.Set(float64(count))
}
