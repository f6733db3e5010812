package hardware

import (
	"sync"

	"firestige.xyz/acquisitiond/internal/acqtypes"
)

// Fake is a deterministic, in-memory Interface implementation for tests. It
// records every call and returns the images queued in NextImages (then flat
// synthesized ones), so tests can drive per-capture focus scores for QC
// policy scenarios without a real microscope.
type Fake struct {
	mu sync.Mutex

	Width, Height int
	BitDepth      int

	// NextImages queues images to return from successive TriggerCapture
	// calls, in order; once exhausted, TriggerCapture synthesizes a flat
	// image. Lets tests drive specific focus scores per capture (e.g. the
	// QC-triggered-pause scenario).
	NextImages []*acqtypes.CapturedImage

	MoveErr    error
	ChannelErr error
	CaptureErr error

	moves    []StagePosition
	channels []string
	captures int

	currentZUM float64
	piezoZUM   *float64
}

// StagePosition records one MoveTo call for test assertions.
type StagePosition struct {
	XMM, YMM, ZMM float64
}

// NewFake constructs a Fake producing flat width x height images.
func NewFake(width, height int) *Fake {
	return &Fake{
		Width:    width,
		Height:   height,
		BitDepth: 16,
	}
}

func (f *Fake) MoveTo(xMM, yMM, zMM float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MoveErr != nil {
		return &Error{Op: "move_to", Err: f.MoveErr}
	}
	f.moves = append(f.moves, StagePosition{XMM: xMM, YMM: yMM, ZMM: zMM})
	f.currentZUM = zMM * 1000
	return nil
}

func (f *Fake) SetChannel(channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ChannelErr != nil {
		return &Error{Op: "set_channel", Err: f.ChannelErr}
	}
	f.channels = append(f.channels, channelID)
	return nil
}

func (f *Fake) TriggerCapture() (*acqtypes.CapturedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CaptureErr != nil {
		return nil, &Error{Op: "trigger_capture", Err: f.CaptureErr}
	}
	f.captures++

	if len(f.NextImages) > 0 {
		img := f.NextImages[0]
		f.NextImages = f.NextImages[1:]
		return img, nil
	}

	pixels := make([]float64, f.Width*f.Height)
	for i := range pixels {
		pixels[i] = 128
	}
	return &acqtypes.CapturedImage{
		Width:    f.Width,
		Height:   f.Height,
		BitDepth: f.BitDepth,
		Format:   acqtypes.PixelFormatGray16,
		Pixels:   pixels,
	}, nil
}

func (f *Fake) CurrentZUM() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentZUM, nil
}

func (f *Fake) PiezoZUM() (*float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.piezoZUM, nil
}

// SetPiezoZUM configures the value returned by subsequent PiezoZUM calls.
func (f *Fake) SetPiezoZUM(v *float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.piezoZUM = v
}

// Moves returns a copy of all recorded MoveTo calls.
func (f *Fake) Moves() []StagePosition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]StagePosition(nil), f.moves...)
}

// Captures returns the number of completed TriggerCapture calls.
func (f *Fake) Captures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captures
}
