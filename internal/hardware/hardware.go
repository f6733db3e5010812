// Package hardware defines the external hardware interface consumed by
// the Acquisition Worker (spec.md §6) and a deterministic fake
// implementation used by tests, grounded on the teacher's capturer
// interface/fake split (pkg/plugin/capturer.go).
package hardware

import (
	"firestige.xyz/acquisitiond/internal/acqtypes"
)

// Interface is the synchronous hardware collaborator the Worker drives.
// It is not thread-safe: only the Worker goroutine may call it (spec.md
// §5 "Shared-resource policy").
type Interface interface {
	MoveTo(xMM, yMM, zMM float64) error
	SetChannel(channelID string) error
	TriggerCapture() (*acqtypes.CapturedImage, error)
	CurrentZUM() (float64, error)
	PiezoZUM() (*float64, error)
}

// Error wraps a hardware failure with the name of the operation that
// failed. It carries no kind tag itself; the Worker wraps it in an
// acqerrors HardwareError and aborts the run.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "hardware: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
