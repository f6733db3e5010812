package metricsstore

import "math"

// fft2D computes the 2D discrete Fourier transform of a real-valued image
// in place, via separable 1D transforms (rows, then columns). It uses a
// direct O(n^2) DFT per line rather than a radix-2 FFT so it works for any
// image dimensions, not just powers of two; fftHighFreq is the only caller
// and images are small per-FOV crops, so the O(n^2) cost per line is not a
// bottleneck here.
func fft2D(re, im [][]float64) {
	h := len(re)
	if h == 0 {
		return
	}
	w := len(re[0])

	for y := 0; y < h; y++ {
		dft1D(re[y], im[y])
	}

	col := make([]float64, h)
	colIm := make([]float64, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = re[y][x]
			colIm[y] = im[y][x]
		}
		dft1DComplex(col, colIm)
		for y := 0; y < h; y++ {
			re[y][x] = col[y]
			im[y][x] = colIm[y]
		}
	}
}

// dft1D computes the discrete Fourier transform of a real-valued sequence,
// writing the real and imaginary parts back into reOut/imOut in place.
func dft1D(reOut, imOut []float64) {
	n := len(reOut)
	src := append([]float64(nil), reOut...)
	for k := 0; k < n; k++ {
		var sumRe, sumIm float64
		for t := 0; t < n; t++ {
			theta := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			sumRe += src[t] * math.Cos(theta)
			sumIm += src[t] * math.Sin(theta)
		}
		reOut[k] = sumRe
		imOut[k] = sumIm
	}
}

// dft1DComplex computes the discrete Fourier transform of a complex
// sequence (re, im), in place.
func dft1DComplex(re, im []float64) {
	n := len(re)
	srcRe := append([]float64(nil), re...)
	srcIm := append([]float64(nil), im...)
	for k := 0; k < n; k++ {
		var sumRe, sumIm float64
		for t := 0; t < n; t++ {
			theta := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			c, s := math.Cos(theta), math.Sin(theta)
			sumRe += srcRe[t]*c - srcIm[t]*s
			sumIm += srcRe[t]*s + srcIm[t]*c
		}
		re[k] = sumRe
		im[k] = sumIm
	}
}
