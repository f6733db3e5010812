package metricsstore

import (
	"fmt"
	"math"

	"firestige.xyz/acquisitiond/internal/acqtypes"
)

// FocusScoreMethod enumerates the selectable focus-score algorithms
// (spec.md §4.D). The method is selected once per run from QC
// configuration.
type FocusScoreMethod int

const (
	LaplacianVariance FocusScoreMethod = iota
	NormalizedVariance
	GradientMagnitude
	FFTHighFreq
)

func (m FocusScoreMethod) String() string {
	switch m {
	case LaplacianVariance:
		return "laplacian_variance"
	case NormalizedVariance:
		return "normalized_variance"
	case GradientMagnitude:
		return "gradient_magnitude"
	case FFTHighFreq:
		return "fft_high_freq"
	default:
		return "unknown"
	}
}

// ComputeFocusScore dispatches to the configured pure focus-score function
// over img.
func ComputeFocusScore(img *acqtypes.CapturedImage, method FocusScoreMethod) (float64, error) {
	switch method {
	case LaplacianVariance:
		return laplacianVariance(img), nil
	case NormalizedVariance:
		return normalizedVariance(img), nil
	case GradientMagnitude:
		return gradientMagnitude(img), nil
	case FFTHighFreq:
		return fftHighFreq(img), nil
	default:
		return 0, fmt.Errorf("metricsstore: unknown focus score method %v", method)
	}
}

// mean returns the arithmetic mean of img's samples.
func mean(img *acqtypes.CapturedImage) float64 {
	if len(img.Pixels) == 0 {
		return 0
	}
	var sum float64
	for _, v := range img.Pixels {
		sum += v
	}
	return sum / float64(len(img.Pixels))
}

// variance returns the population variance of img's samples.
func variance(img *acqtypes.CapturedImage) float64 {
	if len(img.Pixels) == 0 {
		return 0
	}
	mu := mean(img)
	var sumSq float64
	for _, v := range img.Pixels {
		d := v - mu
		sumSq += d * d
	}
	return sumSq / float64(len(img.Pixels))
}

// laplacianVariance is the variance of the discrete Laplacian of img.
func laplacianVariance(img *acqtypes.CapturedImage) float64 {
	w, h := img.Width, img.Height
	if w < 3 || h < 3 {
		return 0
	}
	lap := make([]float64, 0, (w-2)*(h-2))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := -4*img.At(x, y) + img.At(x-1, y) + img.At(x+1, y) + img.At(x, y-1) + img.At(x, y+1)
			lap = append(lap, v)
		}
	}
	return variance(&acqtypes.CapturedImage{Width: w - 2, Height: h - 2, Pixels: lap})
}

// normalizedVariance is the image variance divided by its mean; 0 when the
// mean is 0.
func normalizedVariance(img *acqtypes.CapturedImage) float64 {
	mu := mean(img)
	if mu == 0 {
		return 0
	}
	return variance(img) / mu
}

// gradientMagnitude is the mean of sqrt(gx^2 + gy^2) for first-order Sobel
// derivatives gx, gy.
func gradientMagnitude(img *acqtypes.CapturedImage) float64 {
	w, h := img.Width, img.Height
	if w < 3 || h < 3 {
		return 0
	}
	var sum float64
	var n int
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := (img.At(x+1, y-1) + 2*img.At(x+1, y) + img.At(x+1, y+1)) -
				(img.At(x-1, y-1) + 2*img.At(x-1, y) + img.At(x-1, y+1))
			gy := (img.At(x-1, y+1) + 2*img.At(x, y+1) + img.At(x+1, y+1)) -
				(img.At(x-1, y-1) + 2*img.At(x, y-1) + img.At(x+1, y-1))
			sum += math.Sqrt(gx*gx + gy*gy)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// fftHighFreq is the mean magnitude of the 2D FFT of img after zeroing a
// centered low-frequency square of side min(h,w)/8.
func fftHighFreq(img *acqtypes.CapturedImage) float64 {
	w, h := img.Width, img.Height
	if w == 0 || h == 0 {
		return 0
	}

	re := make([][]float64, h)
	im := make([][]float64, h)
	for y := 0; y < h; y++ {
		re[y] = append([]float64(nil), img.Pixels[y*w:(y+1)*w]...)
		im[y] = make([]float64, w)
	}

	fft2D(re, im)

	side := minInt(h, w) / 8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// DC sits at index 0 of the unshifted spectrum; zero the
			// centered low-frequency square by mapping each bin to its
			// signed frequency offset from DC (as fftshift would) and
			// testing against half the square's side.
			fy := fftShiftIndex(y, h)
			fx := fftShiftIndex(x, w)
			if abs(fy) <= side/2 && abs(fx) <= side/2 {
				re[y][x] = 0
				im[y][x] = 0
			}
		}
	}

	var sum float64
	var n int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum += math.Hypot(re[y][x], im[y][x])
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// fftShiftIndex maps an unshifted FFT bin index to its signed frequency
// offset from DC, as if fftshift had centered the spectrum.
func fftShiftIndex(i, n int) int {
	if i > n/2 {
		return i - n
	}
	return i
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
