package visual

import (
	"math"
	"time"

	"codeberg.org/mutker/lightsync/internal/analysis"
	"codeberg.org/mutker/lightsync/internal/led"
)

// Mode selects how audio levels become a color.
type Mode int

const (
	ModeSpectrum Mode = iota
	ModeBassOnly
	ModeRainbow
	ModeBreathing
)

const (
	MinSensitivity = 0.1
	MaxSensitivity = 3.0

	breathingFloor = 0.3
	breathingGain  = 0.7
)

var modeNames = map[Mode]string{
	ModeSpectrum:  "spectrum",
	ModeBassOnly:  "bass_only",
	ModeRainbow:   "rainbow",
	ModeBreathing: "breathing",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseMode parses a mode name as printed by String.
func ParseMode(s string) (Mode, bool) {
	for m, name := range modeNames {
		if name == s {
			return m, true
		}
	}
	return ModeSpectrum, false
}

// Modes lists every mode in display order.
func Modes() []Mode {
	return []Mode{ModeSpectrum, ModeBassOnly, ModeRainbow, ModeBreathing}
}

// ClampSensitivity limits s to [MinSensitivity, MaxSensitivity].
func ClampSensitivity(s float64) float64 {
	if math.IsNaN(s) {
		return 1
	}
	return min(max(s, MinSensitivity), MaxSensitivity)
}

// Map converts levels to a color for the given mode. now only matters for
// ModeRainbow.
func Map(levels analysis.Levels, mode Mode, sensitivity float64, now time.Time) led.Color {
	s := sensitivity

	switch mode {
	case ModeBassOnly:
		return led.Color{B: channel(levels.Bass * s * 255)}

	case ModeRainbow:
		t := float64(now.UnixNano()) / float64(time.Second)
		k := clamp01(levels.Overall * s)
		third := 2 * math.Pi / 3
		return led.Color{
			R: channel((math.Sin(t)*127.5 + 127.5) * k),
			G: channel((math.Sin(t+third)*127.5 + 127.5) * k),
			B: channel((math.Sin(t+2*third)*127.5 + 127.5) * k),
		}

	case ModeBreathing:
		i := clamp01(breathingFloor + levels.Overall*s*breathingGain)
		r := channel(i * 255)
		return led.Color{R: r, G: r / 2, B: r / 4}

	default:
		return led.Color{
			R: channel(levels.Treble * s * 255),
			G: channel(levels.Mid * s * 255),
			B: channel(levels.Bass * s * 255),
		}
	}
}

// channel rounds v and clamps it to [0, 255].
func channel(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 1)
}
