// Package events implements the observer interface emitted by the
// Worker, State Machine, and Metrics Store (spec.md §6): a best-effort
// notification stream that never blocks the emitter, grounded on the
// teacher's partitioned non-blocking event bus (internal/eventbus/bus.go)
// but simplified to one queue per subscriber, since ordering across
// distinct FOVs is not a spec guarantee.
package events

import (
	"sync"
	"time"

	"firestige.xyz/acquisitiond/internal/acqtypes"
)

// Kind tags the recognized event variants.
type Kind int

const (
	KindStateTransition Kind = iota
	KindPauseRequested
	KindPaused
	KindResumed
	KindRetakeStarted
	KindRetakeFOVComplete
	KindRetakesComplete
	KindFOVCaptured
	KindTimepointCaptured
	KindQCMetricsUpdated
	KindQCPolicyDecision
)

func (k Kind) String() string {
	switch k {
	case KindStateTransition:
		return "state_transition"
	case KindPauseRequested:
		return "pause_requested"
	case KindPaused:
		return "paused"
	case KindResumed:
		return "resumed"
	case KindRetakeStarted:
		return "retake_started"
	case KindRetakeFOVComplete:
		return "retake_fov_complete"
	case KindRetakesComplete:
		return "retakes_complete"
	case KindFOVCaptured:
		return "fov_captured"
	case KindTimepointCaptured:
		return "timepoint_captured"
	case KindQCMetricsUpdated:
		return "qc_metrics_updated"
	case KindQCPolicyDecision:
		return "qc_policy_decision"
	default:
		return "unknown"
	}
}

// Event is one observer notification. Payload is one of the *Payload
// types below, selected by Kind.
type Event struct {
	Kind    Kind
	At      time.Time
	Payload any
}

// StateTransitionPayload carries an (old, new) state-machine transition.
// Old/New are rendered as strings so this package does not import
// statemachine (it is a leaf: of the internal packages it imports only
// acqtypes).
type StateTransitionPayload struct {
	Old, New string
}

// RetakeStartedPayload carries the FOV list a retake pass will process.
type RetakeStartedPayload struct {
	FOVs []acqtypes.FOVID
}

// FOVPayload carries a single FOV identifier, used by several event
// kinds (RetakeFOVComplete, FOVCaptured).
type FOVPayload struct {
	FOV acqtypes.FOVID
}

// TimepointCapturedPayload carries the completed timepoint index.
type TimepointCapturedPayload struct {
	Timepoint int
}

// QCMetricsPayload carries one newly-stored FOVMetrics record.
type QCMetricsPayload struct {
	Metrics acqtypes.FOVMetrics
}

// QCPolicyDecisionPayload carries a policy evaluation result, rendered
// loosely (Flagged/Reasons/ShouldPause) to avoid an import of qcpolicy.
type QCPolicyDecisionPayload struct {
	Flagged     []acqtypes.FOVID
	Reasons     map[acqtypes.FOVID][]string
	ShouldPause bool
}

// Bus fans out Events to subscribers without ever blocking the emitter: a
// subscriber whose queue is full silently drops the event.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	queueSize   int
}

// NewBus creates a Bus whose per-subscriber queues hold queueSize
// pending events before dropping.
func NewBus(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Bus{subscribers: make(map[int]chan Event), queueSize: queueSize}
}

// Subscription is a handle returned by Subscribe. Unsubscribe stops
// delivery and closes C, which ends a range over C; the Bus itself has no
// Close.
type Subscription struct {
	id  int
	bus *Bus
	C   <-chan Event
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.queueSize)
	b.subscribers[id] = ch
	return &Subscription{id: id, bus: b, C: ch}
}

// Unsubscribe removes sub's channel from the fan-out set.
func (sub *Subscription) Unsubscribe() {
	sub.bus.mu.Lock()
	defer sub.bus.mu.Unlock()
	if ch, ok := sub.bus.subscribers[sub.id]; ok {
		delete(sub.bus.subscribers, sub.id)
		close(ch)
	}
}

// Publish fans e out to every current subscriber without blocking; a
// subscriber with a full queue misses the event (spec.md §6 "best-effort
// notifications, never block the emitter").
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}
