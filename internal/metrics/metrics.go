// Package metrics holds the Prometheus collectors for the interview engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector. Each instance owns its registry, so tests
// can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions   prometheus.Gauge
	SessionsStarted  prometheus.Counter
	SessionsExpired  prometheus.Counter
	SessionsUnusable prometheus.Counter
	InterviewsSaved  prometheus.Counter

	PhaseTransitions *prometheus.CounterVec
	Rejections       *prometheus.CounterVec

	ChunksReceived prometheus.Counter
	ChunksDropped  prometheus.Counter

	Transcriptions        *prometheus.CounterVec
	TranscriptionDuration *prometheus.HistogramVec
	Evaluations           *prometheus.CounterVec
	Questions             *prometheus.CounterVec
	FinalizeDuration      prometheus.Histogram
	AnswerScore           prometheus.Histogram
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "teleinterview_active_sessions",
			Help: "Current number of live interview sessions",
		}),
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "teleinterview_sessions_started_total",
			Help: "Total number of interviews started",
		}),
		SessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "teleinterview_sessions_expired_total",
			Help: "Total number of sessions removed by the idle reaper",
		}),
		SessionsUnusable: f.NewCounter(prometheus.CounterOpts{
			Name: "teleinterview_sessions_unusable_total",
			Help: "Total number of sessions that failed an invariant check",
		}),
		InterviewsSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "teleinterview_interviews_saved_total",
			Help: "Total number of completed interviews handed off to the archive",
		}),

		PhaseTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "teleinterview_phase_transitions_total",
			Help: "Phase transitions by destination phase",
		}, []string{"phase"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "teleinterview_rejections_total",
			Help: "Operations rejected by policy",
		}, []string{"operation", "reason"}),

		ChunksReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "teleinterview_audio_chunks_received_total",
			Help: "Audio chunks appended to a recording",
		}),
		ChunksDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "teleinterview_audio_chunks_dropped_total",
			Help: "Audio chunks discarded because no recording was active",
		}),

		Transcriptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "teleinterview_transcriptions_total",
			Help: "Transcription attempts by kind and outcome",
		}, []string{"kind", "outcome"}),
		TranscriptionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "teleinterview_transcription_duration_seconds",
			Help:    "Duration of transcription calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}, []string{"kind"}),
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "teleinterview_evaluations_total",
			Help: "Answer evaluations by outcome",
		}, []string{"outcome"}),
		Questions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "teleinterview_questions_generated_total",
			Help: "Question generations by outcome",
		}, []string{"outcome"}),
		FinalizeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "teleinterview_finalize_duration_seconds",
			Help:    "Time from finalize claim to commit",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		AnswerScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "teleinterview_answer_score",
			Help:    "Distribution of committed answer scores",
			Buckets: prometheus.LinearBuckets(0, 1, 11), // 0 to 10
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeStale    = "stale"
	OutcomeFallback = "fallback"
)

// RecordTranscription counts a transcription attempt and its latency.
func (m *Metrics) RecordTranscription(kind, outcome string, seconds float64) {
	m.Transcriptions.WithLabelValues(kind, outcome).Inc()
	m.TranscriptionDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordRejection counts a policy rejection.
func (m *Metrics) RecordRejection(op, reason string) {
	m.Rejections.WithLabelValues(op, reason).Inc()
}

// RecordPhase counts a transition into phase.
func (m *Metrics) RecordPhase(phase string) {
	m.PhaseTransitions.WithLabelValues(phase).Inc()
}
