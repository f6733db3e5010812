// Package qcpolicy implements the QC Policy half of spec.md §4.D: a pure
// function evaluating threshold and outlier rules over a metrics-store
// snapshot. It never mutates the store and never touches the state
// machine directly — the Worker propagates should_pause itself.
package qcpolicy

import (
	"fmt"
	"math"

	"firestige.xyz/acquisitiond/internal/acqtypes"
	"firestige.xyz/acquisitiond/internal/metricsstore"
)

// Config enumerates the policy rule set (spec.md §3 "Policy
// configuration"). A nil pointer field disables the corresponding rule.
type Config struct {
	Enabled           bool
	FocusScoreMin     *float64
	ZDriftMaxUM       *float64
	DetectOutliers    *OutlierRule
	PauseIfAnyFlagged bool
}

// OutlierRule names the metric to test for outliers and the population
// standard-deviation multiplier beyond which a value is flagged.
type OutlierRule struct {
	MetricName   string
	StdThreshold float64
}

// Decision is the result of evaluating a Config over a Store snapshot
// (spec.md §3 "Policy decision").
type Decision struct {
	Flagged     []acqtypes.FOVID
	Reasons     map[acqtypes.FOVID][]string
	ShouldPause bool
}

// flag records fov as flagged with reason, preserving first-flagging
// insertion order and accumulating reasons for repeat flags (spec.md §4.D
// step 3).
func (d *Decision) flag(fov acqtypes.FOVID, reason string) {
	if _, seen := d.Reasons[fov]; !seen {
		d.Flagged = append(d.Flagged, fov)
		d.Reasons[fov] = nil
	}
	d.Reasons[fov] = append(d.Reasons[fov], reason)
}

// CheckTimepoint evaluates cfg over store and returns a PolicyDecision. It
// is a pure function: store is only read via its snapshot accessors.
func CheckTimepoint(store *metricsstore.Store, cfg Config) Decision {
	d := Decision{Reasons: make(map[acqtypes.FOVID][]string)}
	if !cfg.Enabled {
		return d
	}

	rows := store.GetAll()

	// Step 1: threshold rules, single pass.
	for _, m := range rows {
		if cfg.FocusScoreMin != nil && m.FocusScore != nil && *m.FocusScore < *cfg.FocusScoreMin {
			d.flag(m.FOV, fmt.Sprintf("focus_score=%.2f < %.1f", *m.FocusScore, *cfg.FocusScoreMin))
		}
		if cfg.ZDriftMaxUM != nil && m.ZDiffFromLastTimepoint != nil && math.Abs(*m.ZDiffFromLastTimepoint) > *cfg.ZDriftMaxUM {
			d.flag(m.FOV, fmt.Sprintf("z_drift=%.2f um > %.1f", *m.ZDiffFromLastTimepoint, *cfg.ZDriftMaxUM))
		}
	}

	// Step 2: outlier detection over the named metric, population stddev.
	if cfg.DetectOutliers != nil {
		values := store.GetMetricValues(cfg.DetectOutliers.MetricName)
		if len(values) >= 3 {
			mean, stddev := meanStddev(values)
			thresh := cfg.DetectOutliers.StdThreshold * stddev
			for _, m := range rows {
				v, ok := values[m.FOV]
				if !ok {
					continue
				}
				if math.Abs(v-mean) > thresh {
					d.flag(m.FOV, fmt.Sprintf("outlier in %s", cfg.DetectOutliers.MetricName))
				}
			}
		}
	}

	d.ShouldPause = cfg.PauseIfAnyFlagged && len(d.Flagged) > 0
	return d
}

// meanStddev returns the arithmetic mean and population standard
// deviation of values.
func meanStddev(values map[acqtypes.FOVID]float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	stddev = math.Sqrt(sumSq / float64(len(values)))
	return mean, stddev
}
