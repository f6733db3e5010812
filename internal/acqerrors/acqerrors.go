// Package acqerrors defines the error taxonomy from spec.md §7. Every
// surfaced error carries a Kind tag, a message, and the FOV identifier
// when applicable, following the teacher's practice of wrapping
// collaborator failures in a small typed error rather than bare
// fmt.Errorf (see internal/task/task.go's transition-rejection errors).
package acqerrors

import (
	"fmt"

	"firestige.xyz/acquisitiond/internal/acqtypes"
)

// Kind classifies an Error by the taxonomy in spec.md §7.
type Kind int

const (
	// KindIllegalTransition: a state-machine operation invoked in a state
	// that does not accept it. Non-fatal; returned to the caller.
	KindIllegalTransition Kind = iota
	// KindHardwareError: move/trigger/channel failure. Fatal; propagates
	// abort via Context.
	KindHardwareError
	// KindJobError: failure inside a background job. Save failures are
	// fatal; QC failures are recorded at the metric level only.
	KindJobError
	// KindConfigError: invalid configuration at run construction.
	// Prevents the run from starting.
	KindConfigError
)

func (k Kind) String() string {
	switch k {
	case KindIllegalTransition:
		return "illegal_transition"
	case KindHardwareError:
		return "hardware_error"
	case KindJobError:
		return "job_error"
	case KindConfigError:
		return "config_error"
	default:
		return "unknown"
	}
}

// Error is the taxonomy's carrier type. FOV is the zero value when not
// applicable.
type Error struct {
	Kind    Kind
	Message string
	FOV     acqtypes.FOVID
	HasFOV  bool
	Cause   error
}

func (e *Error) Error() string {
	if e.HasFOV {
		return fmt.Sprintf("%s: %s (fov=%s)", e.Kind, e.Message, e.FOV)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IllegalTransition builds a non-fatal Error for a rejected state-machine
// operation.
func IllegalTransition(op string, from fmt.Stringer) *Error {
	return &Error{Kind: KindIllegalTransition, Message: fmt.Sprintf("%s not valid from state %s", op, from)}
}

// Hardware wraps a hardware-interface failure, optionally scoped to fov.
func Hardware(op string, fov acqtypes.FOVID, hasFOV bool, cause error) *Error {
	return &Error{Kind: KindHardwareError, Message: fmt.Sprintf("%s failed", op), FOV: fov, HasFOV: hasFOV, Cause: cause}
}

// Job wraps a background-job failure for fov.
func Job(kind string, fov acqtypes.FOVID, cause error) *Error {
	return &Error{Kind: KindJobError, Message: fmt.Sprintf("%s job failed", kind), FOV: fov, HasFOV: true, Cause: cause}
}

// Config wraps an invalid-configuration failure detected before the run
// starts.
func Config(message string, cause error) *Error {
	return &Error{Kind: KindConfigError, Message: message, Cause: cause}
}
