package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementCommitted("SUBMITTED", "UNDER_SCRUTINY")
	m.IncrementCommitted("SUBMITTED", "UNDER_SCRUTINY")
	m.IncrementGuardRejected("GUARD_INTAKE_COMPLETE")
	m.IncrementConflict()
	m.IncrementClearance("BCA", "CLEAR")
	m.ObserveTransition(time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransitionsCommitted.WithLabelValues("SUBMITTED", "UNDER_SCRUTINY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GuardRejections.WithLabelValues("GUARD_INTAKE_COMPLETE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClearancesRecorded.WithLabelValues("BCA", "CLEAR")))

	count, err := testutil.GatherAndCount(reg, "transferdesk_transition_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewOnSeparateRegistriesDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
