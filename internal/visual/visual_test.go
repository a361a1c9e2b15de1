package visual_test

import (
	"math"
	"testing"
	"time"

	"codeberg.org/mutker/lightsync/internal/analysis"
	"codeberg.org/mutker/lightsync/internal/led"
	"codeberg.org/mutker/lightsync/internal/visual"
	"github.com/stretchr/testify/assert"
)

var epoch = time.Unix(0, 0)

func TestSpectrumMode(t *testing.T) {
	levels := analysis.Levels{Bass: 1, Mid: 0.5, Treble: 0.2}

	c := visual.Map(levels, visual.ModeSpectrum, 1, epoch)
	assert.Equal(t, led.Color{R: 51, G: 128, B: 255}, c)
}

func TestBassOnlyMode(t *testing.T) {
	levels := analysis.Levels{Bass: 0.4, Mid: 1, Treble: 1}

	c := visual.Map(levels, visual.ModeBassOnly, 2, epoch)
	assert.Equal(t, led.Color{R: 0, G: 0, B: 204}, c)
}

func TestBreathingMode(t *testing.T) {
	c := visual.Map(analysis.Levels{}, visual.ModeBreathing, 1, epoch)
	// I = 0.3 -> R = round(76.5) = 77
	assert.Equal(t, led.Color{R: 77, G: 38, B: 19}, c)

	c = visual.Map(analysis.Levels{Overall: 1}, visual.ModeBreathing, 3, epoch)
	assert.Equal(t, led.Color{R: 255, G: 127, B: 63}, c)
}

func TestRainbowMode(t *testing.T) {
	levels := analysis.Levels{Overall: 1}

	// t = 0: sin(0) = 0, sin(2π/3) = 0.866, sin(4π/3) = -0.866
	c := visual.Map(levels, visual.ModeRainbow, 1, epoch)
	assert.Equal(t, led.Color{R: 128, G: 238, B: 17}, c)

	now := time.Unix(1700000000, 250_000_000)
	assert.Equal(t, visual.Map(levels, visual.ModeRainbow, 1, now), visual.Map(levels, visual.ModeRainbow, 1, now))

	assert.Equal(t, led.Color{}, visual.Map(analysis.Levels{}, visual.ModeRainbow, 1, now))
}

func TestSilenceMapsToBlack(t *testing.T) {
	for _, m := range []visual.Mode{visual.ModeSpectrum, visual.ModeBassOnly, visual.ModeRainbow} {
		assert.Equal(t, led.Color{}, visual.Map(analysis.Levels{}, m, 3, epoch), m.String())
	}
}

// scaled is the channel value expected for a level multiplied by sensitivity.
func scaled(v float64) uint8 {
	return uint8(math.Round(math.Min(math.Max(v, 0), 1) * 255))
}

func TestOutputAcrossSensitivities(t *testing.T) {
	values := []float64{0, 0.01, 0.5, 0.99, 1}
	sens := []float64{0.1, 0.5, 1, 2, 3}
	times := []time.Time{epoch, time.Unix(12345, 678), time.Unix(99, 0)}

	for _, v := range values {
		for _, s := range sens {
			levels := analysis.Levels{Bass: v, Mid: 1 - v, Treble: v / 2, Overall: v}

			c := visual.Map(levels, visual.ModeSpectrum, s, epoch)
			assert.Equal(t, led.Color{R: scaled(v / 2 * s), G: scaled((1 - v) * s), B: scaled(v * s)}, c)

			c = visual.Map(levels, visual.ModeBassOnly, s, epoch)
			assert.Equal(t, led.Color{B: scaled(v * s)}, c)

			c = visual.Map(levels, visual.ModeBreathing, s, epoch)
			assert.GreaterOrEqual(t, c.R, uint8(77))
			assert.Equal(t, c.R/2, c.G)
			assert.Equal(t, c.R/4, c.B)
			if v*s >= 1 {
				assert.Equal(t, uint8(255), c.R)
			}

			for _, now := range times {
				c = visual.Map(levels, visual.ModeRainbow, s, now)
				limit := scaled(v * s)
				assert.LessOrEqual(t, c.R, limit)
				assert.LessOrEqual(t, c.G, limit)
				assert.LessOrEqual(t, c.B, limit)
			}
		}
	}
}

func TestFullBassSaturates(t *testing.T) {
	levels := analysis.Levels{Bass: 1}

	assert.Equal(t, uint8(255), visual.Map(levels, visual.ModeSpectrum, 3, epoch).B)
	assert.Equal(t, led.Color{B: 255}, visual.Map(levels, visual.ModeBassOnly, 3, epoch))
	assert.Equal(t, uint8(77), visual.Map(levels, visual.ModeBreathing, 3, epoch).R)
}

func TestClampSensitivity(t *testing.T) {
	assert.InDelta(t, 0.1, visual.ClampSensitivity(0), 1e-12)
	assert.InDelta(t, 3.0, visual.ClampSensitivity(10), 1e-12)
	assert.InDelta(t, 1.5, visual.ClampSensitivity(1.5), 1e-12)
	assert.InDelta(t, 1.0, visual.ClampSensitivity(math.NaN()), 1e-12)
}

func TestParseMode(t *testing.T) {
	for _, m := range visual.Modes() {
		parsed, ok := visual.ParseMode(m.String())
		assert.True(t, ok)
		assert.Equal(t, m, parsed)
	}

	_, ok := visual.ParseMode("strobe")
	assert.False(t, ok)
}
