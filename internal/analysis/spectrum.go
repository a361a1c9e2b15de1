package analysis

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// NextPowerOfTwo returns the smallest power of two that is >= n. It returns 1
// for n <= 1.
func NextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

var (
	fftMu    sync.Mutex
	fftCache = map[int]*fourier.FFT{}
)

// Estimate returns the magnitude spectrum of samples. The input is zero padded
// to W = NextPowerOfTwo(len(samples)) and the result holds the W/2 bins from
// DC upwards. Magnitudes are raw, not normalized.
func Estimate(samples []float64) []float64 {
	return EstimateWindow(samples, NextPowerOfTwo(len(samples)))
}

// EstimateWindow is Estimate with an explicit window size. w must be a power
// of two no smaller than len(samples); otherwise the next power of two above
// len(samples) is used.
func EstimateWindow(samples []float64, w int) []float64 {
	if w < len(samples) || w&(w-1) != 0 {
		w = NextPowerOfTwo(len(samples))
	}

	bins := w / 2
	out := make([]float64, bins)
	if bins == 0 || len(samples) == 0 {
		return out
	}

	seq := make([]float64, w)
	copy(seq, samples)

	// The FFT value is not safe for concurrent use.
	fftMu.Lock()
	defer fftMu.Unlock()
	f, ok := fftCache[w]
	if !ok {
		f = fourier.NewFFT(w)
		fftCache[w] = f
	}
	coeffs := f.Coefficients(nil, seq)

	for k := 0; k < bins; k++ {
		out[k] = cmplx.Abs(coeffs[k])
	}
	return out
}

// DFT computes the same spectrum as EstimateWindow by direct summation. It is
// O(w²) and only meant as a reference for small inputs.
func DFT(samples []float64, w int) []float64 {
	if w < len(samples) || w&(w-1) != 0 {
		w = NextPowerOfTwo(len(samples))
	}

	bins := w / 2
	out := make([]float64, bins)
	for k := 0; k < bins; k++ {
		var re, im float64
		for n, x := range samples {
			angle := -2 * math.Pi * float64(k) * float64(n) / float64(w)
			re += x * math.Cos(angle)
			im += x * math.Sin(angle)
		}
		out[k] = math.Sqrt(re*re + im*im)
	}
	return out
}
