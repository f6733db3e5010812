// Package acqtypes defines the shared data model for the acquisition core:
// FOV identifiers, capture metadata, image buffers and FOV metrics. These
// types are immutable once constructed and are shared by every other
// internal package instead of each redefining its own copies.
package acqtypes

import (
	"strconv"
	"time"
)

// FOVID identifies a single field of view by region and index within that
// region. Equality and map-key use are by value.
type FOVID struct {
	RegionID string
	Index    int
}

// Less orders FOVIDs by (RegionID asc, Index asc), the fixed capture order
// required by spec.md §4.E.
func (f FOVID) Less(o FOVID) bool {
	if f.RegionID != o.RegionID {
		return f.RegionID < o.RegionID
	}
	return f.Index < o.Index
}

func (f FOVID) String() string {
	return f.RegionID + "/" + strconv.Itoa(f.Index)
}

// StagePosition is the stage's physical (x, y, z) in millimeters.
type StagePosition struct {
	XMM, YMM, ZMM float64
}

// CaptureInfo is the immutable record produced at dispatch time for a single
// captured frame. See spec.md §3 "Capture info".
type CaptureInfo struct {
	FOV           FOVID
	Timepoint     int
	CapturedAt    time.Time
	Stage         StagePosition
	PiezoZUM      *float64 // optional piezo-Z displacement in microns
	ChannelID     string
}

// PixelFormat enumerates the supported raw sample layouts for CapturedImage.
type PixelFormat int

const (
	PixelFormatGray8 PixelFormat = iota
	PixelFormatGray16
)

// CapturedImage is an opaque 2D intensity buffer. Once dispatched to the job
// pipeline it is never touched again by the acquisition loop; see
// internal/jobrunner for the shared-ownership wrapper used when more than one
// job needs the same frame.
type CapturedImage struct {
	Width, Height int
	BitDepth      int
	Format        PixelFormat
	// Pixels holds Height*Width samples, row-major, widened to float64 for
	// use by the focus-score algorithms. Real camera drivers would produce
	// raw integer samples; the acquisition core only ever consumes the
	// widened form, so callers normalize once at capture time.
	Pixels []float64
}

// At returns the sample at (x, y).
func (img *CapturedImage) At(x, y int) float64 {
	return img.Pixels[y*img.Width+x]
}

// FOVMetrics is the per-FOV record produced by a QC job. Optional fields are
// nil when the corresponding metric is disabled or failed to compute; Error
// is non-empty when the QC job itself failed (spec.md §4.C "Failure
// semantics").
type FOVMetrics struct {
	FOV                    FOVID
	Timestamp              time.Time
	ZPositionUM            float64
	FocusScore             *float64
	LaserAFDisplacementUM  *float64
	ZDiffFromLastTimepoint *float64
	Error                  string
}
