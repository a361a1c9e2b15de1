package analysis_test

import (
	"math"
	"testing"

	"codeberg.org/mutker/lightsync/internal/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n, sampleRate int, freq, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {1024, 1024}, {1025, 2048}, {44100, 65536},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, analysis.NextPowerOfTwo(tt.in), "n=%d", tt.in)
	}
}

func TestEstimateLength(t *testing.T) {
	assert.Empty(t, analysis.Estimate(nil))
	assert.Empty(t, analysis.Estimate([]float64{0.5}))
	assert.Len(t, analysis.Estimate(make([]float64, 3)), 2)
	assert.Len(t, analysis.Estimate(make([]float64, 44100)), 32768)
}

func TestEstimateMatchesDFT(t *testing.T) {
	samples := []float64{0.1, -0.4, 0.9, 0.3, -0.2, 0.0, 0.7, -0.8, 0.25, 0.5, -0.6}

	fast := analysis.Estimate(samples)
	slow := analysis.DFT(samples, analysis.NextPowerOfTwo(len(samples)))
	require.Len(t, fast, len(slow))

	for k := range fast {
		assert.InDelta(t, slow[k], fast[k], 1e-9, "bin %d", k)
	}
}

func TestEstimateWindowPads(t *testing.T) {
	samples := sine(100, 8000, 1000, 1)

	spec := analysis.EstimateWindow(samples, 256)
	assert.Len(t, spec, 128)

	// Invalid windows fall back to the natural size.
	assert.Len(t, analysis.EstimateWindow(samples, 100), 64)
	assert.Len(t, analysis.EstimateWindow(samples, 64), 64)
}

func TestEstimateNonNegative(t *testing.T) {
	for _, m := range analysis.Estimate(sine(1000, 44100, 440, 0.8)) {
		assert.GreaterOrEqual(t, m, 0.0)
	}
}

func TestSilenceIsZero(t *testing.T) {
	block := make([]float64, 2048)
	levels := analysis.Analyze(block, 44100)

	assert.True(t, levels.Silent())
	assert.Zero(t, levels.Bass)
	assert.Zero(t, levels.Mid)
	assert.Zero(t, levels.Treble)
	assert.Zero(t, levels.Overall)
}

func TestLowToneLandsInBass(t *testing.T) {
	block := sine(44100, 44100, 100, 0.5)
	levels := analysis.Analyze(block, 44100)

	assert.Greater(t, levels.Bass, 0.3)
	assert.Less(t, levels.Mid, levels.Bass)
	assert.Less(t, levels.Treble, levels.Bass)
	assert.InDelta(t, 0.5/math.Sqrt2, levels.Overall, 1e-3)
	assert.Len(t, levels.Spectrum, 32768)
	assert.False(t, levels.Timestamp.IsZero())
}

func TestLevelsClamped(t *testing.T) {
	block := make([]float64, 4096)
	for i := range block {
		block[i] = 4
	}
	levels := analysis.Analyze(block, 44100)

	for _, v := range []float64{levels.Bass, levels.Mid, levels.Treble, levels.Overall} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, 1.0, levels.Overall)
}

func TestExtractEmptySpectrum(t *testing.T) {
	levels := analysis.Extract([]float64{0.5}, nil, 44100)

	assert.Zero(t, levels.Bass)
	assert.Zero(t, levels.Mid)
	assert.Zero(t, levels.Treble)
	assert.InDelta(t, 0.5, levels.Overall, 1e-12)
}

func TestExtractEmptyBand(t *testing.T) {
	// With 4 bins at 8 kHz each bin is 1 kHz wide, so bass [0, 250) maps to [0, 0).
	levels := analysis.Extract(nil, []float64{0.5, 0.5, 0.5, 0.5}, 8000)

	assert.Zero(t, levels.Bass)
	assert.InDelta(t, 0.5, levels.Mid, 1e-12)
	assert.Zero(t, levels.Treble)
	assert.Zero(t, levels.Overall)
}

func TestNormalize(t *testing.T) {
	out := analysis.Normalize([]int16{0, 16384, -32768, 32767})

	assert.InDelta(t, 0.0, out[0], 1e-12)
	assert.InDelta(t, 0.5, out[1], 1e-12)
	assert.InDelta(t, -1.0, out[2], 1e-12)
	assert.Less(t, out[3], 1.0)
}
