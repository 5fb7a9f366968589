// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "meeting_sync"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram

	// Merge metrics
	SegmentsMerged    prometheus.Counter
	DuplicatesDropped prometheus.Counter

	// Push channel metrics
	PushConnects      prometheus.Counter
	PushConnectErrors prometheus.Counter
	PushReconnects    prometheus.Counter
	PushMessages      *prometheus.CounterVec
	PushFallbacks     prometheus.Counter

	// Poll metrics
	PollCycles  prometheus.Counter
	PollErrors  *prometheus.CounterVec
	PollLatency prometheus.Histogram

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sync sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active sync sessions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of sync sessions in seconds",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		}),

		// Merge metrics
		SegmentsMerged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_merged_total",
			Help:      "Total number of new segments merged into transcripts",
		}),
		DuplicatesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_dropped_total",
			Help:      "Total number of already-known segments dropped on merge",
		}),

		// Push channel metrics
		PushConnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_connects_total",
			Help:      "Total number of push channel connections established",
		}),
		PushConnectErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_connect_errors_total",
			Help:      "Total number of failed push channel connection attempts",
		}),
		PushReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_reconnects_total",
			Help:      "Total number of push channel reconnection attempts",
		}),
		PushMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_messages_total",
			Help:      "Total number of push channel messages received",
		}, []string{"type"}),
		PushFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_fallbacks_total",
			Help:      "Total number of sessions that fell back from push to polling",
		}),

		// Poll metrics
		PollCycles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Total number of transcript snapshot fetches",
		}),
		PollErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Total number of failed transcript snapshot fetches",
		}, []string{"category"}),
		PollLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_latency_seconds",
			Help:      "Transcript snapshot fetch latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStart records a new sync session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a sync session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordMerge records the outcome of merging one incoming batch.
func (m *Metrics) RecordMerge(added, dropped int) {
	m.SegmentsMerged.Add(float64(added))
	m.DuplicatesDropped.Add(float64(dropped))
}

// RecordPushConnect records a push connection attempt outcome.
func (m *Metrics) RecordPushConnect(err error) {
	if err != nil {
		m.PushConnectErrors.Inc()
		return
	}
	m.PushConnects.Inc()
}

// RecordPushReconnect records a scheduled reconnection attempt.
func (m *Metrics) RecordPushReconnect() {
	m.PushReconnects.Inc()
}

// RecordPushMessage records one received push channel message by type.
func (m *Metrics) RecordPushMessage(msgType string) {
	m.PushMessages.WithLabelValues(msgType).Inc()
}

// RecordPushFallback records a session falling back to polling.
func (m *Metrics) RecordPushFallback() {
	m.PushFallbacks.Inc()
}

// RecordPollCycle records one snapshot fetch attempt.
func (m *Metrics) RecordPollCycle(category string, err error, latencySeconds float64) {
	m.PollCycles.Inc()
	m.PollLatency.Observe(latencySeconds)
	if err != nil {
		m.PollErrors.WithLabelValues(category).Inc()
	}
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
