// Copyright 2026 b2bgate
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package metrics exposes the Prometheus surface for the ingestion
// pipeline: terminal ProcessedFile outcomes, circuit breaker transitions,
// the adaptive batch size, queue depth, and persistence latency.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type pipelineMetrics struct {
	once sync.Once

	filesProcessed *prometheus.CounterVec // labels: status ("SUCCESS"/"ERROR"), interface_type
	filesErrored   *prometheus.CounterVec // labels: error_kind

	breakerTrips    *prometheus.CounterVec // labels: dependency
	breakerRecovers *prometheus.CounterVec // labels: dependency
	breakerState    *prometheus.GaugeVec   // labels: dependency; 0=closed 1=half-open 2=open

	batchSize  prometheus.Gauge
	queueDepth *prometheus.GaugeVec // labels: priority

	persistDuration prometheus.Histogram
	pipelineDuration *prometheus.HistogramVec // labels: status
}

var m pipelineMetrics

func (m *pipelineMetrics) init() {
	m.once.Do(func() {
		m.filesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xmlgate_files_processed_total", Help: "Processed files by terminal status and interface type",
		}, []string{"status", "interface_type"})

		m.filesErrored = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xmlgate_files_errored_total", Help: "Errored files by taxonomy kind",
		}, []string{"error_kind"})

		m.breakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xmlgate_breaker_trips_total", Help: "Circuit breaker transitions into OPEN",
		}, []string{"dependency"})
		m.breakerRecovers = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xmlgate_breaker_recovers_total", Help: "Circuit breaker transitions back to CLOSED",
		}, []string{"dependency"})
		m.breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xmlgate_breaker_state", Help: "Current breaker state (0=closed 1=half-open 2=open)",
		}, []string{"dependency"})

		m.batchSize = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xmlgate_batch_size", Help: "Current adaptive batch size",
		})
		m.queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xmlgate_queue_depth", Help: "Observed queue depth by priority",
		}, []string{"priority"})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
		m.persistDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "xmlgate_persist_seconds", Help: "Duration of one persistence chunk write", Buckets: buckets,
		})
		m.pipelineDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "xmlgate_pipeline_seconds", Help: "Duration of one document's full pipeline run", Buckets: buckets,
		}, []string{"status"})

		prometheus.MustRegister(
			m.filesProcessed, m.filesErrored,
			m.breakerTrips, m.breakerRecovers, m.breakerState,
			m.batchSize, m.queueDepth,
			m.persistDuration, m.pipelineDuration,
		)
	})
}

// RecordFileProcessed records one terminal ProcessedFile outcome.
func RecordFileProcessed(status, interfaceType string) {
	m.init()
	m.filesProcessed.WithLabelValues(status, interfaceType).Inc()
}

// RecordFileErrored records one ERROR outcome by taxonomy kind (the prefix
// before ": " in ProcessedFile.ErrorMessage).
func RecordFileErrored(errorKind string) {
	m.init()
	m.filesErrored.WithLabelValues(errorKind).Inc()
}

// RecordBreakerTrip records a breaker's transition into OPEN.
func RecordBreakerTrip(dependency string) {
	m.init()
	m.breakerTrips.WithLabelValues(dependency).Inc()
}

// RecordBreakerRecover records a breaker's transition back to CLOSED.
func RecordBreakerRecover(dependency string) {
	m.init()
	m.breakerRecovers.WithLabelValues(dependency).Inc()
}

// SetBreakerState publishes a breaker's current state as a gauge.
func SetBreakerState(dependency string, state float64) {
	m.init()
	m.breakerState.WithLabelValues(dependency).Set(state)
}

// SetBatchSize publishes the adaptive batch sizer's current value.
func SetBatchSize(size int) {
	m.init()
	m.batchSize.Set(float64(size))
}

// SetQueueDepth publishes the observed depth of one priority queue.
func SetQueueDepth(priority string, depth int) {
	m.init()
	m.queueDepth.WithLabelValues(priority).Set(float64(depth))
}

// ObservePersistDuration records one persistence-chunk write's latency.
func ObservePersistDuration(seconds float64) {
	m.init()
	m.persistDuration.Observe(seconds)
}

// ObservePipelineDuration records one document's end-to-end pipeline
// latency, labeled by its terminal status.
func ObservePipelineDuration(status string, seconds float64) {
	m.init()
	m.pipelineDuration.WithLabelValues(status).Observe(seconds)
}
