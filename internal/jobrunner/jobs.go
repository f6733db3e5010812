package jobrunner

import (
	"fmt"
	"os"
	"path/filepath"

	"firestige.xyz/acquisitiond/internal/acqtypes"
	"firestige.xyz/acquisitiond/internal/metricsstore"
)

// SaveImageJob writes a captured image plus its capture info to the
// configured output path. A save failure is fatal to the run (spec.md
// §4.C "Failure semantics").
type SaveImageJob struct {
	Image   *SharedImage
	Info    acqtypes.CaptureInfo
	BaseDir string // {experiment_path}/{timepoint}/images
}

func (j *SaveImageJob) Kind() JobKind { return KindSaveImage }

// Run serializes the image to a deterministic per-FOV filename and releases
// its reference on the shared image regardless of outcome.
func (j *SaveImageJob) Run() (any, error) {
	defer j.Image.Release()

	img := j.Image.Acquire()
	if img == nil {
		return nil, fmt.Errorf("save image: image already released")
	}

	if err := os.MkdirAll(j.BaseDir, 0o750); err != nil {
		return nil, fmt.Errorf("save image: create dir %q: %w", j.BaseDir, err)
	}

	name := fmt.Sprintf("%s_%04d_%s.raw", j.Info.FOV.RegionID, j.Info.FOV.Index, j.Info.ChannelID)
	path := filepath.Join(j.BaseDir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("save image: create %q: %w", path, err)
	}
	defer f.Close()

	if err := writeRawImage(f, img); err != nil {
		return nil, fmt.Errorf("save image: write %q: %w", path, err)
	}

	return path, nil
}

// writeRawImage serializes a CapturedImage as a tiny fixed-header raw
// format: width/height/bitdepth as decimal text on one line, followed by
// one sample per line, also as decimal text. This stands in for the real image I/O codec, which
// spec.md §1 places out of scope.
func writeRawImage(f *os.File, img *acqtypes.CapturedImage) error {
	header := fmt.Sprintf("%d %d %d\n", img.Width, img.Height, img.BitDepth)
	if _, err := f.WriteString(header); err != nil {
		return err
	}
	for _, v := range img.Pixels {
		if _, err := fmt.Fprintf(f, "%g\n", v); err != nil {
			return err
		}
	}
	return nil
}

// QCMetricsJob computes an FOVMetrics record from a captured image. A QC
// failure is recorded as FOVMetrics.Error and never pauses the run by
// itself (spec.md §4.C).
type QCMetricsJob struct {
	Image       *SharedImage
	Info        acqtypes.CaptureInfo
	Config      QCConfig
	PrevZUM     *float64 // same FOV's Z position at the previous timepoint, if any
	LaserAFDisp *float64 // optional laser-AF displacement reading, if available
}

// QCConfig selects which metrics to compute and which focus-score
// algorithm to use (spec.md §3 "QC configuration").
type QCConfig struct {
	Enabled           bool
	ComputeFocusScore bool
	ComputeLaserAF    bool
	ComputeZDiff      bool
	FocusScoreMethod  metricsstore.FocusScoreMethod
}

func (j *QCMetricsJob) Kind() JobKind { return KindQCMetrics }

// Run computes the configured metrics. Z-diff is computed only when
// PrevZUM is non-nil (spec.md §4.D "QC job semantics").
func (j *QCMetricsJob) Run() (any, error) {
	defer j.Image.Release()

	m := acqtypes.FOVMetrics{
		FOV:         j.Info.FOV,
		Timestamp:   j.Info.CapturedAt,
		ZPositionUM: j.Info.Stage.ZMM * 1000,
	}

	img := j.Image.Acquire()
	if img == nil {
		m.Error = "qc: image already released"
		return m, nil
	}

	if j.Config.ComputeFocusScore {
		score, err := metricsstore.ComputeFocusScore(img, j.Config.FocusScoreMethod)
		if err != nil {
			m.Error = err.Error()
			return m, nil
		}
		m.FocusScore = &score
	}

	if j.Config.ComputeLaserAF && j.LaserAFDisp != nil {
		v := *j.LaserAFDisp
		m.LaserAFDisplacementUM = &v
	}

	if j.Config.ComputeZDiff && j.PrevZUM != nil {
		diff := m.ZPositionUM - *j.PrevZUM
		m.ZDiffFromLastTimepoint = &diff
	}

	return m, nil
}
