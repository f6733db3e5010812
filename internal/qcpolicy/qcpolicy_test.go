package qcpolicy

import (
	"testing"

	"firestige.xyz/acquisitiond/internal/acqtypes"
	"firestige.xyz/acquisitiond/internal/metricsstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestCheckTimepointDisabledReturnsEmptyDecision(t *testing.T) {
	store := metricsstore.New(1)
	store.Add(acqtypes.FOVMetrics{FOV: acqtypes.FOVID{RegionID: "A", Index: 0}, FocusScore: f(0.1)})

	d := CheckTimepoint(store, Config{Enabled: false, FocusScoreMin: f(10)})
	assert.Empty(t, d.Flagged)
	assert.False(t, d.ShouldPause)
}

func TestFocusScoreMinFlagsBelowThreshold(t *testing.T) {
	store := metricsstore.New(1)
	low := acqtypes.FOVID{RegionID: "A", Index: 0}
	high := acqtypes.FOVID{RegionID: "A", Index: 1}
	store.Add(acqtypes.FOVMetrics{FOV: low, FocusScore: f(1.0)})
	store.Add(acqtypes.FOVMetrics{FOV: high, FocusScore: f(9.0)})

	d := CheckTimepoint(store, Config{Enabled: true, FocusScoreMin: f(5.0), PauseIfAnyFlagged: true})
	require.Len(t, d.Flagged, 1)
	assert.Equal(t, low, d.Flagged[0])
	assert.True(t, d.ShouldPause)
}

func TestZDriftMaxFlagsAbsoluteDrift(t *testing.T) {
	store := metricsstore.New(1)
	fov := acqtypes.FOVID{RegionID: "A", Index: 0}
	store.Add(acqtypes.FOVMetrics{FOV: fov, ZDiffFromLastTimepoint: f(-20)})

	d := CheckTimepoint(store, Config{Enabled: true, ZDriftMaxUM: f(10)})
	assert.Len(t, d.Flagged, 1, "negative drift beyond threshold")
}

func TestPauseIfAnyFlaggedFalseNeverPauses(t *testing.T) {
	store := metricsstore.New(1)
	fov := acqtypes.FOVID{RegionID: "A", Index: 0}
	store.Add(acqtypes.FOVMetrics{FOV: fov, FocusScore: f(0)})

	d := CheckTimepoint(store, Config{Enabled: true, FocusScoreMin: f(100), PauseIfAnyFlagged: false})
	assert.Len(t, d.Flagged, 1)
	assert.False(t, d.ShouldPause)
}

func TestOutlierDetectionRequiresAtLeastThreeValues(t *testing.T) {
	store := metricsstore.New(1)
	store.Add(acqtypes.FOVMetrics{FOV: acqtypes.FOVID{RegionID: "A", Index: 0}, FocusScore: f(1)})
	store.Add(acqtypes.FOVMetrics{FOV: acqtypes.FOVID{RegionID: "A", Index: 1}, FocusScore: f(1000)})

	d := CheckTimepoint(store, Config{
		Enabled:        true,
		DetectOutliers: &OutlierRule{MetricName: "focus_score", StdThreshold: 0.01},
	})
	assert.Empty(t, d.Flagged, "fewer than 3 values")
}

func TestOutlierDetectionFlagsFarValue(t *testing.T) {
	store := metricsstore.New(1)
	outlier := acqtypes.FOVID{RegionID: "A", Index: 3}
	store.Add(acqtypes.FOVMetrics{FOV: acqtypes.FOVID{RegionID: "A", Index: 0}, FocusScore: f(10)})
	store.Add(acqtypes.FOVMetrics{FOV: acqtypes.FOVID{RegionID: "A", Index: 1}, FocusScore: f(11)})
	store.Add(acqtypes.FOVMetrics{FOV: acqtypes.FOVID{RegionID: "A", Index: 2}, FocusScore: f(9)})
	store.Add(acqtypes.FOVMetrics{FOV: outlier, FocusScore: f(500)})

	d := CheckTimepoint(store, Config{
		Enabled:        true,
		DetectOutliers: &OutlierRule{MetricName: "focus_score", StdThreshold: 1.0},
	})
	assert.Contains(t, d.Flagged, outlier)
}

func TestFlagAccumulatesMultipleReasonsInOrder(t *testing.T) {
	store := metricsstore.New(1)
	fov := acqtypes.FOVID{RegionID: "A", Index: 0}
	store.Add(acqtypes.FOVMetrics{FOV: fov, FocusScore: f(0), ZDiffFromLastTimepoint: f(100)})

	d := CheckTimepoint(store, Config{
		Enabled:       true,
		FocusScoreMin: f(10),
		ZDriftMaxUM:   f(1),
	})
	require.Len(t, d.Flagged, 1, "exactly one FOV flagged once")
	assert.Len(t, d.Reasons[fov], 2, "reasons accumulated")
}

func TestCheckTimepointIsPure(t *testing.T) {
	store := metricsstore.New(1)
	fov := acqtypes.FOVID{RegionID: "A", Index: 0}
	store.Add(acqtypes.FOVMetrics{FOV: fov, FocusScore: f(1)})

	before := store.GetAll()
	CheckTimepoint(store, Config{Enabled: true, FocusScoreMin: f(100)})
	after := store.GetAll()

	assert.Equal(t, before, after, "CheckTimepoint mutated the store")
}
