package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.IncEventsSubmitted()
	m.IncEventsSubmitted()
	m.IncEventsPublished()
	m.IncError("publish")
	m.AddEventsDropped(3)
	m.AddEventsDropped(0)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.eventsSubmitted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventsPublished))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.eventsDropped))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.errors.WithLabelValues("publish")))
}

func TestNew_DuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilMetrics_IsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncEventsSubmitted()
		m.IncEventsDropped()
		m.AddEventsDropped(2)
		m.IncEventsPublished()
		m.IncHeartbeatsPublished()
		m.IncDeliveriesConsumed()
		m.IncError("handler")
	})
}
