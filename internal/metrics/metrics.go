// Package metrics implements Prometheus metrics for the acquisition
// daemon, grounded on the teacher's promauto-at-package-init style
// (internal/metrics/metrics.go), re-labeled for the acquisition domain.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FOVsCapturedTotal counts FOV captures completed per region.
	FOVsCapturedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acquisitiond_fovs_captured_total",
			Help: "Total number of FOVs captured",
		},
		[]string{"region"},
	)

	// JobsDispatchedTotal counts jobs dispatched to the Job Runner by kind.
	JobsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acquisitiond_jobs_dispatched_total",
			Help: "Total number of jobs dispatched to the job runner",
		},
		[]string{"kind"},
	)

	// JobFailuresTotal counts job failures by kind.
	JobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acquisitiond_job_failures_total",
			Help: "Total number of job failures",
		},
		[]string{"kind"},
	)

	// JobDurationSeconds measures job execution latency by kind.
	JobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acquisitiond_job_duration_seconds",
			Help:    "Job execution latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
		[]string{"kind"},
	)

	// TimepointStatus tracks the current state-machine state (0..3,
	// TimepointStatus* constants below).
	TimepointStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "acquisitiond_timepoint_status",
			Help: "Current timepoint state machine status (0=acquiring,1=paused,2=retaking,3=captured)",
		},
	)

	// QCPolicyPausesTotal counts timepoints where policy evaluation
	// requested a pause.
	QCPolicyPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "acquisitiond_qc_policy_pauses_total",
			Help: "Total number of timepoints where QC policy requested a pause",
		},
	)

	// QCFlaggedFOVsTotal counts FOVs flagged by QC policy.
	QCFlaggedFOVsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "acquisitiond_qc_flagged_fovs_total",
			Help: "Total number of FOVs flagged by QC policy across all timepoints",
		},
	)

	// CurrentTimepoint tracks the run's current timepoint index.
	CurrentTimepoint = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "acquisitiond_current_timepoint",
			Help: "Current timepoint index (0-based) for the active run",
		},
	)
)

// TimepointStatus values, matching internal/statemachine.State ordering.
const (
	TimepointStatusAcquiring = 0
	TimepointStatusPaused    = 1
	TimepointStatusRetaking  = 2
	TimepointStatusCaptured  = 3
)
