// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_order"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsStarted    *prometheus.CounterVec
	SessionsActive     prometheus.Gauge
	SessionsTerminated *prometheus.CounterVec
	SessionDuration    prometheus.Histogram

	// Turn metrics
	TurnsTotal    *prometheus.CounterVec
	TurnsRejected *prometheus.CounterVec
	TurnLatency   prometheus.Histogram

	// Capture metrics
	CaptureStops    *prometheus.CounterVec
	CaptureDuration prometheus.Histogram
	CaptureErrors   *prometheus.CounterVec

	// STT metrics
	STTLatency *prometheus.HistogramVec
	STTErrors  *prometheus.CounterVec

	// LLM metrics
	LLMLatency  *prometheus.HistogramVec
	LLMErrors   *prometheus.CounterVec
	LLMDegraded prometheus.Counter

	// Order metrics
	OrdersCreated prometheus.Counter
	OrdersFailed  prometheus.Counter
	OrderValue    prometheus.Histogram

	// Recording archive metrics
	RecordingsUploaded *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// HTTP / gRPC
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of dialogue sessions started",
		}, []string{"channel"}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently live dialogue sessions",
		}),
		SessionsTerminated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_terminated_total",
			Help:      "Total number of dialogue sessions terminated",
		}, []string{"reason"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of dialogue sessions in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}),

		TurnsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of dialogue turns by resolved intent",
		}, []string{"intent"}),
		TurnsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_rejected_total",
			Help:      "Total number of turns rejected before processing",
		}, []string{"reason"}),
		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_seconds",
			Help:      "Time from end of capture to reply in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}),

		CaptureStops: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_stops_total",
			Help:      "Total number of utterance captures by stop reason",
		}, []string{"reason"}),
		CaptureDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_duration_seconds",
			Help:      "Captured utterance audio duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 4, 6, 8, 10, 12, 15},
		}),
		CaptureErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_errors_total",
			Help:      "Total number of capture failures",
		}, []string{"error_type"}),

		STTLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_latency_seconds",
			Help:      "Speech-to-text request latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider"}),
		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT errors",
		}, []string{"provider", "error_type"}),

		LLMLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_seconds",
			Help:      "Language model reply latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider"}),
		LLMErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_errors_total",
			Help:      "Total number of language model errors",
		}, []string{"provider", "error_type"}),
		LLMDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_degraded_replies_total",
			Help:      "Total number of turns answered with the fallback reply",
		}),

		OrdersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Total number of orders persisted",
		}),
		OrdersFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_failed_total",
			Help:      "Total number of confirmed orders that failed to persist",
		}),
		OrderValue: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_value",
			Help:      "Order totals in the menu currency",
			Buckets:   []float64{5, 10, 15, 20, 30, 50, 100},
		}),

		RecordingsUploaded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_uploaded_total",
			Help:      "Total number of archived utterance recordings",
		}, []string{"status"}),

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

		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP and gRPC requests",
		}, []string{"transport", "route", "code"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport", "route"}),
	}
}

// RecordSessionStart records a new dialogue session.
func (m *Metrics) RecordSessionStart(channel string) {
	m.SessionsStarted.WithLabelValues(channel).Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session reaching the terminated state.
func (m *Metrics) RecordSessionEnd(reason string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionsTerminated.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordTurn records a processed turn and its latency.
func (m *Metrics) RecordTurn(intent string, latencySeconds float64) {
	m.TurnsTotal.WithLabelValues(intent).Inc()
	m.TurnLatency.Observe(latencySeconds)
}

// RecordTurnRejected records a turn refused before processing.
func (m *Metrics) RecordTurnRejected(reason string) {
	m.TurnsRejected.WithLabelValues(reason).Inc()
}

// RecordCapture records a completed utterance capture.
func (m *Metrics) RecordCapture(reason string, durationSeconds float64) {
	m.CaptureStops.WithLabelValues(reason).Inc()
	m.CaptureDuration.Observe(durationSeconds)
}

// RecordCaptureError records a capture failure.
func (m *Metrics) RecordCaptureError(errorType string) {
	m.CaptureErrors.WithLabelValues(errorType).Inc()
}

// RecordSTT records a transcription attempt.
func (m *Metrics) RecordSTT(provider string, err error, latencySeconds float64) {
	m.STTLatency.WithLabelValues(provider).Observe(latencySeconds)
	if err != nil {
		m.STTErrors.WithLabelValues(provider, ErrorType(err)).Inc()
	}
}

// RecordLLM records a reply generation attempt.
func (m *Metrics) RecordLLM(provider string, err error, latencySeconds float64) {
	m.LLMLatency.WithLabelValues(provider).Observe(latencySeconds)
	if err != nil {
		m.LLMErrors.WithLabelValues(provider, ErrorType(err)).Inc()
	}
}

// RecordDegradedReply records a turn answered without a generated reply.
func (m *Metrics) RecordDegradedReply() {
	m.LLMDegraded.Inc()
}

// RecordOrder records the outcome of an order write.
func (m *Metrics) RecordOrder(total float64, err error) {
	if err != nil {
		m.OrdersFailed.Inc()
		return
	}
	m.OrdersCreated.Inc()
	m.OrderValue.Observe(total)
}

// RecordRecording records a recording upload attempt.
func (m *Metrics) RecordRecording(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RecordingsUploaded.WithLabelValues(status).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordRequest records an HTTP or gRPC request.
func (m *Metrics) RecordRequest(transport, route, code string, durationSeconds float64) {
	m.RequestsTotal.WithLabelValues(transport, route, code).Inc()
	m.RequestDuration.WithLabelValues(transport, route).Observe(durationSeconds)
}
