package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RealtimeEvent("ping")
	m.RealtimeEvent("ping")
	m.TranscriptionAttempt("deepgram", false)
	m.OrderSubmitted("buy", true)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.realtimeEvents.WithLabelValues("ping")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transcriptionAttempts.WithLabelValues("deepgram", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersSubmitted.WithLabelValues("buy", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
}

func TestMetrics_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RealtimeEvent("ping")
		m.StageFailure("parse")
		m.TranscriptionAttempt("whisper", true)
		m.IntentParsed("rules")
		m.OrderSubmitted("sell", false)
		m.Validation(true)
		m.SessionOpened()
		m.SessionClosed()
	})
}
