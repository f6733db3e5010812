package jobrunner

import (
	"sync/atomic"

	"firestige.xyz/acquisitiond/internal/acqtypes"
)

// SharedImage wraps a CapturedImage with a reference count so that an image
// needed by more than one job (e.g. both Save and QC for the same frame,
// per spec.md §4.C/§9) is released exactly once, when its last holder
// finishes. The acquisition loop counts only the dispatched jobs as holders
// and keeps no reference of its own, so ownership passes wholly to the
// jobs at dispatch.
type SharedImage struct {
	img      *acqtypes.CapturedImage
	refCount int32
	onFree   func()
}

// NewSharedImage wraps img with an initial reference count of holders.
// onFree, if non-nil, runs exactly once when the last reference is
// released.
func NewSharedImage(img *acqtypes.CapturedImage, holders int, onFree func()) *SharedImage {
	return &SharedImage{img: img, refCount: int32(holders), onFree: onFree}
}

// Acquire returns the wrapped image. Callers must call Release exactly once
// per Acquire (or per implicit holder counted at construction).
func (s *SharedImage) Acquire() *acqtypes.CapturedImage {
	return s.img
}

// Release drops one reference. When the last reference is dropped, the
// underlying image is detached and onFree (if set) runs.
func (s *SharedImage) Release() {
	if atomic.AddInt32(&s.refCount, -1) == 0 {
		s.img = nil
		if s.onFree != nil {
			s.onFree()
		}
	}
}
