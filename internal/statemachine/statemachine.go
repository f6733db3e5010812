// Package statemachine implements the Timepoint State Machine (spec.md
// §4.B): the four-state variant (Acquiring/Paused/Retaking/Captured) that
// drives pause/resume/retake control within a single timepoint. It is the
// single synchronization point in the acquisition core: one mutex plus one
// condition variable, broadcast on every change that either the
// pause-requested waiter or the resume waiter watches (spec.md §5
// "Shared-resource policy").
package statemachine

import (
	"sync"
	"time"

	"github.com/tevino/abool"

	"firestige.xyz/acquisitiond/internal/acqtypes"
)

// State is one of the four timepoint states.
type State int

const (
	Acquiring State = iota
	Paused
	Retaking
	Captured
)

func (s State) String() string {
	switch s {
	case Acquiring:
		return "acquiring"
	case Paused:
		return "paused"
	case Retaking:
		return "retaking"
	case Captured:
		return "captured"
	default:
		return "unknown"
	}
}

// StateMachine holds the per-timepoint state variant plus its counters. All
// operations are non-blocking except WaitForPause/WaitForResume.
type StateMachine struct {
	mu   sync.Mutex
	cond *sync.Cond // broadcasts on every state/flag change relevant to waiters

	state         State
	fovsRemaining int
	totalFOVs     int

	pauseRequested abool.AtomicBool
	retakeList     []acqtypes.FOVID
}

// New creates a StateMachine in the Acquiring state for a timepoint with
// totalFOVs planned captures.
func New(totalFOVs int) *StateMachine {
	sm := &StateMachine{
		state:         Acquiring,
		fovsRemaining: totalFOVs,
		totalFOVs:     totalFOVs,
	}
	sm.cond = sync.NewCond(&sm.mu)
	return sm
}

// State returns a snapshot of the current state.
func (sm *StateMachine) State() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// FOVsRemaining returns the number of FOVs not yet captured this timepoint.
func (sm *StateMachine) FOVsRemaining() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.fovsRemaining
}

// RequestPause asks the worker to pause at its next opportunity. Accepted
// only from Acquiring or Captured; idempotent; does not itself change
// state. Returns whether the request was accepted.
func (sm *StateMachine) RequestPause() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != Acquiring && sm.state != Captured {
		return false
	}
	sm.pauseRequested.Set()
	sm.cond.Broadcast()
	return true
}

// PauseRequested reports whether the pause flag is currently set, without
// blocking. The Worker polls this at FOV-loop boundaries (spec.md §4.E).
func (sm *StateMachine) PauseRequested() bool {
	return sm.pauseRequested.IsSet()
}

// WaitForPause blocks the caller until the pause flag is set or timeout
// elapses (0 means no timeout). Returns whether the flag was observed set.
func (sm *StateMachine) WaitForPause(timeout time.Duration) bool {
	return sm.waitFor(timeout, func() bool { return sm.pauseRequested.IsSet() })
}

// CompletePause atomically transitions to Paused iff the pause flag is set;
// clears the flag. Returns whether the transition occurred. This is the
// only entry into Paused from Acquiring.
func (sm *StateMachine) CompletePause() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.pauseRequested.IsSet() {
		return false
	}
	sm.pauseRequested.UnSet()
	sm.state = Paused
	sm.cond.Broadcast()
	return true
}

// Resume transitions out of Paused: to Acquiring if FOVs remain, otherwise
// to Captured. Valid only from Paused. Returns whether it occurred.
func (sm *StateMachine) Resume() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != Paused {
		return false
	}
	if sm.fovsRemaining > 0 {
		sm.state = Acquiring
	} else {
		sm.state = Captured
	}
	sm.cond.Broadcast()
	return true
}

// Retake stores fovs and transitions to Retaking. Valid only from Paused
// and with a non-empty fovs list.
func (sm *StateMachine) Retake(fovs []acqtypes.FOVID) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != Paused || len(fovs) == 0 {
		return false
	}
	sm.retakeList = append([]acqtypes.FOVID(nil), fovs...)
	sm.state = Retaking
	sm.cond.Broadcast()
	return true
}

// GetRetakeList returns a snapshot copy of the current retake list.
func (sm *StateMachine) GetRetakeList() []acqtypes.FOVID {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return append([]acqtypes.FOVID(nil), sm.retakeList...)
}

// CompleteRetakes clears the retake list and transitions back to Paused.
// Valid only from Retaking.
func (sm *StateMachine) CompleteRetakes() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != Retaking {
		return false
	}
	sm.retakeList = nil
	sm.state = Paused
	sm.cond.Broadcast()
	return true
}

// MarkFOVCaptured decrements fovsRemaining, saturating at 0. No state
// transition effect.
func (sm *StateMachine) MarkFOVCaptured() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.fovsRemaining > 0 {
		sm.fovsRemaining--
	}
}

// MarkAllCaptured transitions Acquiring -> Captured. Valid only from
// Acquiring.
func (sm *StateMachine) MarkAllCaptured() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != Acquiring {
		return false
	}
	sm.state = Captured
	sm.cond.Broadcast()
	return true
}

// Abort reports whether the abort was accepted and whether it should
// propagate to the whole run. From Retaking: clears the retake list,
// transitions to Paused, and does NOT propagate (abort_whole_run=false).
// From any other state: accepted and propagates.
func (sm *StateMachine) Abort() (accepted bool, abortWholeRun bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state == Retaking {
		sm.retakeList = nil
		sm.state = Paused
		sm.cond.Broadcast()
		return true, false
	}
	return true, true
}

// waitFor blocks until cond returns true or timeout elapses (0 = forever).
// Returns the value of cond at wake time.
func (sm *StateMachine) waitFor(timeout time.Duration, cond func() bool) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if cond() {
		return true
	}
	if timeout <= 0 {
		for !cond() {
			sm.cond.Wait()
		}
		return true
	}

	deadline := time.Now().Add(timeout)
	done := make(chan struct{})
	timedOut := abool.New()

	// sync.Cond has no timed wait; a watcher goroutine broadcasts once the
	// deadline passes so the waiter can re-check cond() and give up.
	go func() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			remaining = time.Nanosecond
		}
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		select {
		case <-timer.C:
			timedOut.Set()
			sm.mu.Lock()
			sm.cond.Broadcast()
			sm.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	for !cond() {
		if timedOut.IsSet() {
			return false
		}
		sm.cond.Wait()
	}
	return true
}

// WaitForResume blocks until the state machine leaves Paused (via resume
// or retake) or timeout elapses (0 means no timeout). Returns whether the
// state had left Paused. An abort never ends the wait: from Retaking it
// returns to Paused, and from Paused it leaves the state unchanged.
func (sm *StateMachine) WaitForResume(timeout time.Duration) bool {
	return sm.waitFor(timeout, func() bool { return sm.state != Paused })
}
