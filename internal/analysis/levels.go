package analysis

import (
	"math"
	"time"
)

// Band edges in Hz. Each band is half open: [low, high).
const (
	BassLow   = 0.0
	BassHigh  = 250.0
	MidHigh   = 4000.0
	PCMMaxAbs = 32768.0
)

// Levels is one analysis frame. All level fields are in [0, 1].
type Levels struct {
	Bass      float64
	Mid       float64
	Treble    float64
	Overall   float64
	Spectrum  []float64
	Timestamp time.Time
}

// Silent reports whether every level is zero.
func (l Levels) Silent() bool {
	return l.Bass == 0 && l.Mid == 0 && l.Treble == 0 && l.Overall == 0
}

// Extract reduces a time-domain block and its spectrum to Levels.
func Extract(block, spectrum []float64, sampleRate int) Levels {
	nyquist := float64(sampleRate) / 2

	return Levels{
		Bass:      clamp01(bandLevel(spectrum, BassLow, BassHigh, sampleRate)),
		Mid:       clamp01(bandLevel(spectrum, BassHigh, MidHigh, sampleRate)),
		Treble:    clamp01(bandLevel(spectrum, MidHigh, nyquist, sampleRate)),
		Overall:   clamp01(RMS(block)),
		Spectrum:  spectrum,
		Timestamp: time.Now(),
	}
}

// Analyze runs Estimate and Extract on block.
func Analyze(block []float64, sampleRate int) Levels {
	return Extract(block, Estimate(block), sampleRate)
}

// RMS returns the root mean square of block, or 0 for an empty block.
func RMS(block []float64) float64 {
	if len(block) == 0 {
		return 0
	}

	var sum float64
	for _, x := range block {
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(block)))
}

// Normalize converts signed 16-bit PCM to floats in [-1, 1).
func Normalize(pcm []int16) []float64 {
	out := make([]float64, len(pcm))
	for i, s := range pcm {
		out[i] = float64(s) / PCMMaxAbs
	}
	return out
}

// bandLevel is the mean magnitude of the bins covering [low, high) Hz.
func bandLevel(spectrum []float64, low, high float64, sampleRate int) float64 {
	if len(spectrum) == 0 || sampleRate <= 0 {
		return 0
	}

	binWidth := float64(sampleRate) / float64(2*len(spectrum))
	start := binIndex(low, binWidth, len(spectrum))
	end := binIndex(high, binWidth, len(spectrum))
	if start >= end {
		return 0
	}

	var sum float64
	for _, m := range spectrum[start:end] {
		sum += m
	}
	return sum / float64(end-start)
}

func binIndex(freq, binWidth float64, n int) int {
	i := int(freq / binWidth)
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
