// Package metrics provides Prometheus-compatible instrumentation for the
// conversational pipeline, generalizing graph/metrics.go's
// PrometheusMetrics from per-node graph execution counters to per-stage
// pipeline counters.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics collects Prometheus metrics for one pipeline process.
//
// Metrics exposed (all namespaced with "convopipe_"):
//
//  1. stage_latency_ms (histogram): per-stage duration. Labels: stage, status
//     (success/timeout/error).
//  2. active_sessions (gauge): current number of live dialogue sessions.
//  3. clarifications_total (counter): clarifying questions asked. Labels: kind.
//  4. fallbacks_total (counter): fallback responses returned. Labels: reason.
//  5. timeouts_total (counter): stage timeouts. Labels: stage.
//  6. requests_total (counter): completed requests. Labels: action.
type PipelineMetrics struct {
	stageLatency    *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
	clarifications  *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	timeouts        *prometheus.CounterVec
	requests        *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// New creates and registers all pipeline metrics with registry. A nil
// registry uses prometheus.DefaultRegisterer.
func New(registry prometheus.Registerer) *PipelineMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PipelineMetrics{
		enabled: true,
		stageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "convopipe",
			Name:      "stage_latency_ms",
			Help:      "Stage execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 15000},
		}, []string{"stage", "status"}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "convopipe",
			Name:      "active_sessions",
			Help:      "Current number of live dialogue sessions",
		}),
		clarifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convopipe",
			Name:      "clarifications_total",
			Help:      "Clarifying questions asked, by kind",
		}, []string{"kind"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convopipe",
			Name:      "fallbacks_total",
			Help:      "Fallback responses returned, by reason",
		}, []string{"reason"}),
		timeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convopipe",
			Name:      "timeouts_total",
			Help:      "Stage timeouts, by stage",
		}, []string{"stage"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convopipe",
			Name:      "requests_total",
			Help:      "Completed requests, by final action",
		}, []string{"action"}),
	}
}

// RecordStageLatency observes one stage's execution duration.
func (m *PipelineMetrics) RecordStageLatency(stage string, latency time.Duration, status string) {
	if !m.isEnabled() {
		return
	}
	m.stageLatency.WithLabelValues(stage, status).Observe(float64(latency.Milliseconds()))
}

// SetActiveSessions sets the current live-session gauge.
func (m *PipelineMetrics) SetActiveSessions(count int) {
	if !m.isEnabled() {
		return
	}
	m.activeSessions.Set(float64(count))
}

// IncrementClarifications records one clarifying question of the given kind.
func (m *PipelineMetrics) IncrementClarifications(kind string) {
	if !m.isEnabled() {
		return
	}
	m.clarifications.WithLabelValues(kind).Inc()
}

// IncrementFallbacks records one fallback response for the given reason.
func (m *PipelineMetrics) IncrementFallbacks(reason string) {
	if !m.isEnabled() {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

// IncrementTimeouts records one stage timeout.
func (m *PipelineMetrics) IncrementTimeouts(stage string) {
	if !m.isEnabled() {
		return
	}
	m.timeouts.WithLabelValues(stage).Inc()
}

// IncrementRequests records one completed request's final action.
func (m *PipelineMetrics) IncrementRequests(action string) {
	if !m.isEnabled() {
		return
	}
	m.requests.WithLabelValues(action).Inc()
}

func (m *PipelineMetrics) isEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Disable stops metric recording (useful for benchmarks and tests).
func (m *PipelineMetrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable resumes metric recording after Disable.
func (m *PipelineMetrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}
