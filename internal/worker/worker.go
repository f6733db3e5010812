// Package worker implements the Acquisition Worker (spec.md §4.E): it
// owns the per-FOV loop and mediates between the hardware interface, the
// Timepoint State Machine, the Job Runner, and the Metrics Store. It runs
// on a single dedicated goroutine, grounded on the teacher's
// internal/task/task.go Start()/Stop() phased-orchestration discipline
// (ordered phase sequencing, slog at every boundary) generalized from
// "start N pipeline goroutines" to "drive one FOV at a time to
// completion before considering the next."
package worker

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"firestige.xyz/acquisitiond/internal/acqcontext"
	"firestige.xyz/acquisitiond/internal/acqerrors"
	"firestige.xyz/acquisitiond/internal/acqtypes"
	"firestige.xyz/acquisitiond/internal/config"
	"firestige.xyz/acquisitiond/internal/events"
	"firestige.xyz/acquisitiond/internal/hardware"
	"firestige.xyz/acquisitiond/internal/jobrunner"
	"firestige.xyz/acquisitiond/internal/metrics"
	"firestige.xyz/acquisitiond/internal/metricsstore"
	"firestige.xyz/acquisitiond/internal/qcpolicy"
	"firestige.xyz/acquisitiond/internal/statemachine"
)

// Worker drives one acquisition run end-to-end. It satisfies
// internal/command.WorkerControl.
type Worker struct {
	hw     hardware.Interface
	cfg    config.RunConfig
	runCtx *acqcontext.Context
	bus    *events.Bus
	log    *slog.Logger

	runner *jobrunner.Runner

	mu           sync.Mutex
	sm           *statemachine.StateMachine
	store        *metricsstore.Store
	prevZByFOV   map[acqtypes.FOVID]float64
	lastDecision qcpolicy.Decision
	haveDecision bool
	proceedCh    chan struct{}
}

// New constructs a Worker for one run. hw is exclusively owned by the
// Worker goroutine from this point on (spec.md §5 "Shared-resource
// policy").
func New(hw hardware.Interface, cfg config.RunConfig, bus *events.Bus, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	policy := acqcontext.Auto
	switch cfg.ProgressionPolicy {
	case "manual":
		policy = acqcontext.Manual
	case "qc_gated":
		policy = acqcontext.QCGated
	}

	return &Worker{
		hw:         hw,
		cfg:        cfg,
		runCtx:     acqcontext.New(cfg.TotalTimepoints, policy),
		bus:        bus,
		log:        log,
		runner:     jobrunner.New(jobrunner.Options{Workers: cfg.Runner.Workers, Max: cfg.Runner.Max, QueueSize: cfg.Runner.QueueSize}),
		prevZByFOV: make(map[acqtypes.FOVID]float64),
		proceedCh:  make(chan struct{}, 1),
	}
}

// plannedFOVs returns the fixed per-timepoint FOV visiting order: region
// ascending, then fov_index ascending (spec.md §4.E "Ordering
// guarantees").
func (w *Worker) plannedFOVs() []acqtypes.FOVID {
	var out []acqtypes.FOVID
	for _, r := range w.cfg.Plan.Regions {
		for i := range r.FOVs {
			out = append(out, acqtypes.FOVID{RegionID: r.ID, Index: i})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (w *Worker) fovPosition(fov acqtypes.FOVID) (config.FOVPlanConfig, bool) {
	for _, r := range w.cfg.Plan.Regions {
		if r.ID != fov.RegionID {
			continue
		}
		if fov.Index < 0 || fov.Index >= len(r.FOVs) {
			return config.FOVPlanConfig{}, false
		}
		return r.FOVs[fov.Index], true
	}
	return config.FOVPlanConfig{}, false
}

// Run drives the full multi-timepoint acquisition loop until the context
// is aborted or exhausted (spec.md §4.E "Per-run outline").
func (w *Worker) Run() error {
	plan := w.plannedFOVs()

	for !w.runCtx.Done() {
		t := w.runCtx.CurrentTimepoint()
		sm := statemachine.New(len(plan))
		store := metricsstore.New(t)

		w.mu.Lock()
		w.sm = sm
		w.store = store
		w.mu.Unlock()

		metrics.CurrentTimepoint.Set(float64(t))
		w.log.Info("timepoint started", "timepoint", t, "fovs", len(plan))

		w.runTimepoint(sm, store, plan)

		if w.runCtx.IsAborted() {
			break
		}

		if err := w.saveTimepoint(t, store); err != nil {
			w.log.Error("failed to save timepoint metrics", "timepoint", t, "error", err)
		}

		if !w.awaitProgression(sm, store) {
			break
		}
		w.runCtx.Advance()
	}

	w.runner.Shutdown()
	return nil
}

// runTimepoint iterates planned FOVs in order, handling pause/retake
// inline, then evaluates QC policy at timepoint end.
func (w *Worker) runTimepoint(sm *statemachine.StateMachine, store *metricsstore.Store, plan []acqtypes.FOVID) {
	for _, fov := range plan {
		if w.runCtx.IsAborted() {
			return
		}

		if sm.PauseRequested() {
			w.handlePause(sm, store)
			if sm.State() == statemachine.Captured || w.runCtx.IsAborted() {
				return
			}
		}

		if err := w.captureFOV(fov, sm, store); err != nil {
			w.log.Error("fov capture failed", "fov", fov, "error", err)
			return
		}
	}

	if sm.State() == statemachine.Acquiring {
		sm.MarkAllCaptured()
	}
	w.evaluatePolicyAndMaybePause(sm, store)
}

// handlePause drains outstanding jobs, completes the pause, then waits
// for resume — looping through any number of retake passes before a real
// resume (spec.md §4.E step b's pause branch). An abort of the whole run
// leaves the state machine in Paused, so the wait re-checks the run's
// abort flag at a fixed interval and returns once it is set.
func (w *Worker) handlePause(sm *statemachine.StateMachine, store *metricsstore.Store) {
	const abortPollInterval = 50 * time.Millisecond
	w.runner.Drain()
	sm.CompletePause()
	w.bus.Publish(events.Event{Kind: events.KindPaused, At: now()})
	w.log.Info("timepoint paused")

	for {
		if !sm.WaitForResume(abortPollInterval) {
			if w.runCtx.IsAborted() {
				return
			}
			continue
		}
		switch sm.State() {
		case statemachine.Captured:
			return
		case statemachine.Retaking:
			w.runRetakes(sm, store)
			continue
		case statemachine.Acquiring:
			w.bus.Publish(events.Event{Kind: events.KindResumed, At: now()})
			return
		default:
			return
		}
	}
}

// runRetakes re-captures the FOVs named in the state machine's retake
// list, in the order provided, overwriting prior outputs. Checks context
// abort at each iteration (spec.md §4.E "Retake subroutine").
func (w *Worker) runRetakes(sm *statemachine.StateMachine, store *metricsstore.Store) {
	fovs := sm.GetRetakeList()
	w.bus.Publish(events.Event{Kind: events.KindRetakeStarted, At: now(), Payload: events.RetakeStartedPayload{FOVs: fovs}})

	for _, fov := range fovs {
		if w.runCtx.IsAborted() {
			break
		}
		if sm.State() != statemachine.Retaking {
			// Externally aborted mid-retake: state already returned to
			// Paused by StateMachine.Abort(); stop without double-completing.
			return
		}
		if err := w.captureFOV(fov, sm, store); err != nil {
			w.log.Error("retake capture failed", "fov", fov, "error", err)
			continue
		}
		w.bus.Publish(events.Event{Kind: events.KindRetakeFOVComplete, At: now(), Payload: events.FOVPayload{FOV: fov}})
	}

	if sm.State() == statemachine.Retaking {
		sm.CompleteRetakes()
		w.bus.Publish(events.Event{Kind: events.KindRetakesComplete, At: now()})
	}
}

// captureFOV commands the hardware to move to fov, triggers one capture
// per configured channel, and dispatches Save (then QC) jobs for each
// frame. Save is always dispatched before QC for the same frame (spec.md
// §4.E "Ordering guarantees").
func (w *Worker) captureFOV(fov acqtypes.FOVID, sm *statemachine.StateMachine, store *metricsstore.Store) error {
	pos, ok := w.fovPosition(fov)
	if !ok {
		err := acqerrors.Hardware("move_to", fov, true, fmt.Errorf("no planned position for %s", fov))
		w.runCtx.RequestAbort()
		return err
	}
	if err := w.hw.MoveTo(pos.XMM, pos.YMM, pos.ZMM); err != nil {
		w.runCtx.RequestAbort()
		return acqerrors.Hardware("move_to", fov, true, err)
	}

	for _, channel := range w.cfg.Plan.Channels {
		if err := w.hw.SetChannel(channel); err != nil {
			w.runCtx.RequestAbort()
			return acqerrors.Hardware("set_channel", fov, true, err)
		}

		img, err := w.hw.TriggerCapture()
		if err != nil {
			w.runCtx.RequestAbort()
			return acqerrors.Hardware("trigger_capture", fov, true, err)
		}

		piezo, _ := w.hw.PiezoZUM()
		info := acqtypes.CaptureInfo{
			FOV:        fov,
			Timepoint:  store.Timepoint(),
			CapturedAt: now(),
			Stage:      acqtypes.StagePosition{XMM: pos.XMM, YMM: pos.YMM, ZMM: pos.ZMM},
			PiezoZUM:   piezo,
			ChannelID:  channel,
		}

		w.dispatchJobs(img, info)
	}

	sm.MarkFOVCaptured()
	metrics.FOVsCapturedTotal.WithLabelValues(fov.RegionID).Inc()
	w.drainReadyResults(store)
	w.bus.Publish(events.Event{Kind: events.KindFOVCaptured, At: now(), Payload: events.FOVPayload{FOV: fov}})
	return nil
}

// dispatchJobs wraps img in a ref-counted SharedImage and dispatches Save
// (always) and QC (if enabled), so each job releases its own share on
// completion (spec.md §9 "Shared image ownership").
func (w *Worker) dispatchJobs(img *acqtypes.CapturedImage, info acqtypes.CaptureInfo) {
	holders := 1 // Save
	if w.cfg.QC.Enabled {
		holders++
	}
	shared := jobrunner.NewSharedImage(img, holders, nil)

	baseDir := filepath.Join(w.cfg.ExperimentPath, fmt.Sprintf("%03d", info.Timepoint), "images")
	if _, err := w.runner.Dispatch(&jobrunner.SaveImageJob{Image: shared, Info: info, BaseDir: baseDir}); err != nil {
		w.log.Error("save dispatch failed", "fov", info.FOV, "error", err)
	}
	metrics.JobsDispatchedTotal.WithLabelValues("save_image").Inc()

	if w.cfg.QC.Enabled {
		var prevZ *float64
		w.mu.Lock()
		if v, ok := w.prevZByFOV[info.FOV]; ok {
			prevZ = &v
		}
		w.mu.Unlock()

		qcCfg := jobrunner.QCConfig{
			Enabled:           true,
			ComputeFocusScore: w.cfg.QC.ComputeFocusScore,
			ComputeLaserAF:    w.cfg.QC.ComputeLaserAF,
			ComputeZDiff:      w.cfg.QC.ComputeZDiff,
			FocusScoreMethod:  focusMethodFromString(w.cfg.QC.FocusScoreMethod),
		}
		if _, err := w.runner.Dispatch(&jobrunner.QCMetricsJob{Image: shared, Info: info, Config: qcCfg, PrevZUM: prevZ, LaserAFDisp: info.PiezoZUM}); err != nil {
			w.log.Error("qc dispatch failed", "fov", info.FOV, "error", err)
		}
		metrics.JobsDispatchedTotal.WithLabelValues("qc_metrics").Inc()
	}
}

// drainReadyResults feeds any currently-completed job results into store
// without blocking (spec.md §4.E step b "Collect any newly ready
// results").
func (w *Worker) drainReadyResults(store *metricsstore.Store) {
	for _, res := range w.runner.PollResults() {
		w.applyResult(res, store)
	}
}

func (w *Worker) applyResult(res jobrunner.JobResult, store *metricsstore.Store) {
	switch res.Kind {
	case jobrunner.KindSaveImage:
		if res.Err != nil {
			metrics.JobFailuresTotal.WithLabelValues("save_image").Inc()
			w.log.Error("save job failed", "error", res.Err)
			w.runCtx.RequestAbort()
		}
	case jobrunner.KindQCMetrics:
		m, ok := res.Payload.(acqtypes.FOVMetrics)
		if !ok {
			return
		}
		if res.Err != nil {
			metrics.JobFailuresTotal.WithLabelValues("qc_metrics").Inc()
		}
		store.Add(m)
		w.mu.Lock()
		w.prevZByFOV[m.FOV] = m.ZPositionUM
		w.mu.Unlock()
		w.bus.Publish(events.Event{Kind: events.KindQCMetricsUpdated, At: now(), Payload: events.QCMetricsPayload{Metrics: m}})
	}
}

// evaluatePolicyAndMaybePause drains remaining results, evaluates the QC
// policy over the completed store, and requests a pause if warranted
// (spec.md §4.E step d).
func (w *Worker) evaluatePolicyAndMaybePause(sm *statemachine.StateMachine, store *metricsstore.Store) {
	w.runner.Drain()
	w.drainReadyResults(store)

	if !w.cfg.Policy.Enabled {
		sm.MarkAllCaptured()
		return
	}

	decision := qcpolicy.CheckTimepoint(store, policyConfigFrom(w.cfg.Policy))
	w.mu.Lock()
	w.lastDecision = decision
	w.haveDecision = true
	w.mu.Unlock()

	metrics.QCFlaggedFOVsTotal.Add(float64(len(decision.Flagged)))
	w.bus.Publish(events.Event{Kind: events.KindQCPolicyDecision, At: now(), Payload: events.QCPolicyDecisionPayload{
		Flagged: decision.Flagged, Reasons: decision.Reasons, ShouldPause: decision.ShouldPause,
	}})

	if decision.ShouldPause {
		metrics.QCPolicyPausesTotal.Inc()
		sm.RequestPause()
		w.bus.Publish(events.Event{Kind: events.KindPauseRequested, At: now()})
		w.handlePause(sm, store)
		return
	}
	sm.MarkAllCaptured()
}

// saveTimepoint persists store to the timepoint's qc_metrics.csv and
// publishes the timepoint_captured event.
func (w *Worker) saveTimepoint(t int, store *metricsstore.Store) error {
	dir := filepath.Join(w.cfg.ExperimentPath, fmt.Sprintf("%03d", t))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	if err := store.Save(filepath.Join(dir, "qc_metrics.csv")); err != nil {
		return err
	}
	w.bus.Publish(events.Event{Kind: events.KindTimepointCaptured, At: now(), Payload: events.TimepointCapturedPayload{Timepoint: t}})
	return nil
}

// awaitProgression implements the progression-policy branch of spec.md
// §4.E step f, plus the QCGated resolution recorded in SPEC_FULL.md §6.
// Returns false if the run should stop (aborted while waiting).
func (w *Worker) awaitProgression(sm *statemachine.StateMachine, store *metricsstore.Store) bool {
	switch w.runCtx.ProgressionPolicy() {
	case acqcontext.Auto:
		return true
	case acqcontext.Manual:
		return w.waitForProceed(sm, store, func() bool { return true })
	case acqcontext.QCGated:
		return w.waitForProceed(sm, store, func() bool {
			w.mu.Lock()
			blocked := w.haveDecision && w.lastDecision.ShouldPause
			w.mu.Unlock()
			// The gate opens only when the most recent policy decision
			// did not ask for a pause. No new decision is made within
			// the timepoint, so after a policy pause (already serviced
			// by handlePause before this wait) proceed() is accepted
			// but does not advance the run; only an abort ends the wait.
			return !blocked
		})
	}
	return true
}

// waitForProceed blocks until a proceed() signal satisfies ready, or the
// run is aborted. sm sits in Captured for the whole wait, but
// RequestPause is valid from Captured (statemachine.go), so a
// control-plane Pause() landing mid-wait only sets the flag — nothing
// drains it unless something is watching. This loop polls for that flag
// between proceed waits and, when set, drives the same
// Paused -> Retaking* -> Paused -> resume cycle handlePause drives
// mid-acquisition, so scenario "Captured -> Paused -> Retaking -> Paused"
// is serviceable here too, not just during the Acquiring FOV loop.
func (w *Worker) waitForProceed(sm *statemachine.StateMachine, store *metricsstore.Store, ready func() bool) bool {
	const pollInterval = 50 * time.Millisecond
	for {
		select {
		case <-w.proceedCh:
			if w.runCtx.IsAborted() {
				return false
			}
			if ready() {
				return true
			}
		case <-time.After(pollInterval):
			if w.runCtx.IsAborted() {
				return false
			}
			if sm.PauseRequested() {
				w.handlePause(sm, store)
				if w.runCtx.IsAborted() {
					return false
				}
			}
		}
	}
}

// --- command.WorkerControl ---

// Pause requests a pause at the next FOV-loop boundary.
func (w *Worker) Pause() bool {
	sm := w.currentSM()
	if sm == nil {
		return false
	}
	ok := sm.RequestPause()
	if ok {
		w.bus.Publish(events.Event{Kind: events.KindPauseRequested, At: now()})
	}
	return ok
}

// Resume resumes a paused timepoint.
func (w *Worker) Resume() bool {
	sm := w.currentSM()
	if sm == nil {
		return false
	}
	return sm.Resume()
}

// Retake requests a retake pass over fovs.
func (w *Worker) Retake(fovs []acqtypes.FOVID) bool {
	sm := w.currentSM()
	if sm == nil {
		return false
	}
	return sm.Retake(fovs)
}

// Abort requests the run stop. If the state machine is mid-retake, the
// abort is absorbed there and the run itself is not aborted (spec.md
// §4.E "Abort from Retaking preserves run").
func (w *Worker) Abort() {
	sm := w.currentSM()
	if sm == nil {
		w.runCtx.RequestAbort()
		return
	}
	_, abortWholeRun := sm.Abort()
	if abortWholeRun {
		w.runCtx.RequestAbort()
	}
	select {
	case w.proceedCh <- struct{}{}:
	default:
	}
}

// Proceed signals the progression gate (Manual/QCGated policies).
func (w *Worker) Proceed() bool {
	if w.runCtx.ProgressionPolicy() == acqcontext.Auto {
		return false
	}
	select {
	case w.proceedCh <- struct{}{}:
	default:
	}
	return true
}

// Status reports a snapshot of run progress for the "status" command.
func (w *Worker) Status() any {
	sm := w.currentSM()
	state := "idle"
	fovsRemaining := 0
	if sm != nil {
		state = sm.State().String()
		fovsRemaining = sm.FOVsRemaining()
	}

	w.mu.Lock()
	decision := w.lastDecision
	haveDecision := w.haveDecision
	w.mu.Unlock()

	status := map[string]any{
		"timepoint":        w.runCtx.CurrentTimepoint(),
		"total_timepoints": w.runCtx.TotalTimepoints(),
		"aborted":          w.runCtx.IsAborted(),
		"state":            state,
		"fovs_remaining":   fovsRemaining,
		"progression":      w.runCtx.ProgressionPolicy().String(),
	}
	if haveDecision {
		status["last_qc_flagged"] = decision.Flagged
		status["last_qc_should_pause"] = decision.ShouldPause
	}
	return status
}

func (w *Worker) currentSM() *statemachine.StateMachine {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sm
}

func policyConfigFrom(c config.PolicyConfig) qcpolicy.Config {
	var outlier *qcpolicy.OutlierRule
	if c.DetectOutliers != nil {
		outlier = &qcpolicy.OutlierRule{MetricName: c.DetectOutliers.MetricName, StdThreshold: c.DetectOutliers.StdThreshold}
	}
	return qcpolicy.Config{
		Enabled:           c.Enabled,
		FocusScoreMin:     c.FocusScoreMin,
		ZDriftMaxUM:       c.ZDriftMaxUM,
		DetectOutliers:    outlier,
		PauseIfAnyFlagged: c.PauseIfAnyFlagged,
	}
}

func focusMethodFromString(s string) metricsstore.FocusScoreMethod {
	switch s {
	case "normalized_variance":
		return metricsstore.NormalizedVariance
	case "gradient_magnitude":
		return metricsstore.GradientMagnitude
	case "fft_high_freq":
		return metricsstore.FFTHighFreq
	default:
		return metricsstore.LaplacianVariance
	}
}

// now stamps events and capture records. Isolated in one place so a
// future deterministic clock injection only touches this function.
func now() time.Time {
	return time.Now()
}
