package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounterVecsAcceptLabels(t *testing.T) {
	assert.NotPanics(t, func() {
		FOVsCapturedTotal.WithLabelValues("A").Inc()
		JobsDispatchedTotal.WithLabelValues("save").Inc()
		JobFailuresTotal.WithLabelValues("qc").Inc()
		JobDurationSeconds.WithLabelValues("save").Observe(0.05)
	})
}

func TestGaugesAcceptSet(t *testing.T) {
	assert.NotPanics(t, func() {
		TimepointStatus.Set(TimepointStatusPaused)
		CurrentTimepoint.Set(3)
	})
}

func TestPlainCountersIncrement(t *testing.T) {
	assert.NotPanics(t, func() {
		QCPolicyPausesTotal.Inc()
		QCFlaggedFOVsTotal.Add(2)
	})
}

func TestTimepointStatusConstantsOrdering(t *testing.T) {
	assert.Less(t, TimepointStatusAcquiring, TimepointStatusPaused)
	assert.Less(t, TimepointStatusPaused, TimepointStatusRetaking)
	assert.Less(t, TimepointStatusRetaking, TimepointStatusCaptured)
}
