package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersAgainstRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("studiopay", reg)

	m.JobsProcessed.WithLabelValues("gift_card_delivery", "completed").Inc()
	m.CapacityOverdrawn.WithLabelValues("course").Inc()
	m.PaymentsExpired.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["studiopay_jobs_processed_total"])
	assert.True(t, names["studiopay_capacity_overdrawn_total"])
	assert.True(t, names["studiopay_payments_expired_total"])

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CapacityOverdrawn.WithLabelValues("course")))
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics("dup", reg)
	assert.Panics(t, func() { NewMetrics("dup", reg) })
}

func TestNewNopMetrics_Independent(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNopMetrics()
		NewNopMetrics()
	})
}
