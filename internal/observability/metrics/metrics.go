// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "call_assist"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Call metrics
	CallsTotal   prometheus.Counter
	CallsActive  prometheus.Gauge
	CallsFailed  *prometheus.CounterVec
	CallDuration prometheus.Histogram

	// Audio metrics
	AudioFramesSent    prometheus.Counter
	AudioBytesSent     prometheus.Counter
	AudioFramesDropped *prometheus.CounterVec
	AudioSilentFrames  prometheus.Counter

	// Transcript metrics
	STTMessages  prometheus.Counter
	TokensTotal  *prometheus.CounterVec
	BlocksSealed prometheus.Counter
	STTErrors    *prometheus.CounterVec

	// Analysis metrics
	Triggers         *prometheus.CounterVec
	AnalysisRequests *prometheus.CounterVec
	AnalysisErrors   *prometheus.CounterVec
	AnalysisLatency  *prometheus.HistogramVec
	NotesAdded       *prometheus.CounterVec
	NotesDuplicate   prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// gRPC metrics
	RPCTotal *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		CallsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of live calls started",
		}),
		CallsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Number of calls currently live",
		}),
		CallsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_failed_total",
			Help:      "Total number of calls ended by a fatal error",
		}, []string{"reason"}),
		CallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Duration of live calls in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),

		AudioFramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_sent_total",
			Help:      "Total audio frames sent to the STT stream",
		}),
		AudioBytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Total audio bytes sent to the STT stream",
		}),
		AudioFramesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Total audio frames dropped before sending",
		}, []string{"reason"}),
		AudioSilentFrames: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_silent_frames_total",
			Help:      "Total audio frames below the silence threshold",
		}),

		STTMessages: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_messages_total",
			Help:      "Total token messages received from the STT stream",
		}),
		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_tokens_total",
			Help:      "Total tokens received from the STT stream",
		}, []string{"state"}),
		BlocksSealed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_blocks_sealed_total",
			Help:      "Total transcript blocks sealed into history",
		}),
		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT errors",
		}, []string{"provider", "error_type"}),

		Triggers: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_triggers_total",
			Help:      "Total analysis triggers fired",
		}, []string{"kind"}),
		AnalysisRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_requests_total",
			Help:      "Total analysis requests issued",
		}, []string{"pass"}),
		AnalysisErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_errors_total",
			Help:      "Total analysis requests that failed",
		}, []string{"pass", "kind"}),
		AnalysisLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_latency_seconds",
			Help:      "Analysis request latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"pass"}),
		NotesAdded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notes_added_total",
			Help:      "Total notes accepted into a call",
		}, []string{"category"}),
		NotesDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notes_duplicate_total",
			Help:      "Total candidate notes rejected as duplicates",
		}),

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

		RPCTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total gRPC calls served",
		}, []string{"method", "code"}),
	}
}

// RecordCallStart records a call going live.
func (m *Metrics) RecordCallStart() {
	m.CallsTotal.Inc()
	m.CallsActive.Inc()
}

// RecordCallEnd records a live call ending.
func (m *Metrics) RecordCallEnd(durationSeconds float64) {
	m.CallsActive.Dec()
	m.CallDuration.Observe(durationSeconds)
}

// RecordCallFailed records a fatal session error.
func (m *Metrics) RecordCallFailed(reason string) {
	m.CallsFailed.WithLabelValues(reason).Inc()
}

// RecordAudioSent records one frame sent to the STT stream.
func (m *Metrics) RecordAudioSent(bytes int) {
	m.AudioBytesSent.Add(float64(bytes))
	m.AudioFramesSent.Inc()
}

// RecordFrameDropped records a frame that was not sent.
func (m *Metrics) RecordFrameDropped(reason string) {
	m.AudioFramesDropped.WithLabelValues(reason).Inc()
}

// RecordSilentFrame records a frame below the silence threshold.
func (m *Metrics) RecordSilentFrame() {
	m.AudioSilentFrames.Inc()
}

// RecordTokens records one STT message and its tokens.
func (m *Metrics) RecordTokens(final, provisional int) {
	m.STTMessages.Inc()
	m.TokensTotal.WithLabelValues("final").Add(float64(final))
	m.TokensTotal.WithLabelValues("provisional").Add(float64(provisional))
}

// RecordBlocksSealed records newly sealed transcript blocks.
func (m *Metrics) RecordBlocksSealed(n int) {
	m.BlocksSealed.Add(float64(n))
}

// RecordSTTError records an STT error.
func (m *Metrics) RecordSTTError(provider, errorType string) {
	m.STTErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordTrigger records an analysis trigger.
func (m *Metrics) RecordTrigger(kind string) {
	m.Triggers.WithLabelValues(kind).Inc()
}

// RecordAnalysis records the outcome of one analysis request.
func (m *Metrics) RecordAnalysis(pass string, errKind string, latencySeconds float64) {
	m.AnalysisRequests.WithLabelValues(pass).Inc()
	m.AnalysisLatency.WithLabelValues(pass).Observe(latencySeconds)
	if errKind != "" {
		m.AnalysisErrors.WithLabelValues(pass, errKind).Inc()
	}
}

// RecordNotes records accepted notes for a category and rejected duplicates.
func (m *Metrics) RecordNotes(category string, added, duplicates int) {
	if added > 0 {
		m.NotesAdded.WithLabelValues(category).Add(float64(added))
	}
	if duplicates > 0 {
		m.NotesDuplicate.Add(float64(duplicates))
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

// RecordRPC records a served gRPC call.
func (m *Metrics) RecordRPC(method, code string) {
	m.RPCTotal.WithLabelValues(method, code).Inc()
}
