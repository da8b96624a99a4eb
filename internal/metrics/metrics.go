// Package metrics holds the prometheus collectors of the assistant.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voicetrader"

// Metrics groups every collector exported by the process.
type Metrics struct {
	realtimeEvents        *prometheus.CounterVec
	stageFailures         *prometheus.CounterVec
	transcriptionAttempts *prometheus.CounterVec
	intentParses          *prometheus.CounterVec
	ordersSubmitted       *prometheus.CounterVec
	validations           *prometheus.CounterVec
	activeSessions        prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		realtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Inbound real-time events by type.",
		}, []string{"type"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_failures_total",
			Help:      "Pipeline stage failures by stage.",
		}, []string{"stage"}),
		transcriptionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_attempts_total",
			Help:      "Speech-to-text attempts by backend and outcome.",
		}, []string{"backend", "outcome"}),
		intentParses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_parses_total",
			Help:      "Parsed intents by the strategy that produced them.",
		}, []string{"strategy"}),
		ordersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Orders submitted to the brokerage gateway.",
		}, []string{"side", "simulated"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_validations_total",
			Help:      "Order validations by verdict.",
		}, []string{"valid"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open real-time sessions.",
		}),
	}

	collectors := []prometheus.Collector{
		m.realtimeEvents, m.stageFailures, m.transcriptionAttempts,
		m.intentParses, m.ordersSubmitted, m.validations, m.activeSessions,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) RealtimeEvent(eventType string) {
	if m == nil {
		return
	}
	m.realtimeEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) StageFailure(stage string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) TranscriptionAttempt(backend string, ok bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.transcriptionAttempts.WithLabelValues(backend, outcome).Inc()
}

func (m *Metrics) IntentParsed(strategy string) {
	if m == nil {
		return
	}
	m.intentParses.WithLabelValues(strategy).Inc()
}

func (m *Metrics) OrderSubmitted(side string, simulated bool) {
	if m == nil {
		return
	}
	m.ordersSubmitted.WithLabelValues(side, strconv.FormatBool(simulated)).Inc()
}

func (m *Metrics) Validation(valid bool) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
