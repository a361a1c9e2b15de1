package led

import (
	"fmt"
	"strconv"
	"strings"

	"codeberg.org/mutker/lightsync/internal/errors"
)

// Color is an 8-bit RGB triple.
type Color struct {
	R, G, B uint8
}

var (
	Black = Color{}
	White = Color{255, 255, 255}
)

// Hex returns the color as upper-case RRGGBB.
func (c Color) Hex() string {
	return fmt.Sprintf("%02X%02X%02X", c.R, c.G, c.B)
}

// CSV returns the color as "r,g,b" in decimal.
func (c Color) CSV() string {
	return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B)
}

// ARGB packs the color with a fully opaque alpha channel.
func (c Color) ARGB() uint32 {
	return 0xFF<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

func (c Color) String() string {
	return "#" + c.Hex()
}

// ParseColor accepts RRGGBB with an optional leading '#'.
func ParseColor(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return Color{}, errors.New().WithData(errors.ErrInvalidColor, s)
	}

	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, errors.New().Wrap(errors.ErrInvalidColor, err)
	}

	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// Brightness is a percentage in [0, 100].
type Brightness int

const MaxBrightness Brightness = 100

// Clamp limits b to [0, 100].
func (b Brightness) Clamp() Brightness {
	return min(max(b, 0), MaxBrightness)
}

// Raw scales b to the 0..255 range used by LED class devices.
func (b Brightness) Raw() int {
	return int(b.Clamp()) * 255 / 100
}

// PatternKind names a built-in lighting pattern. The numeric values are the
// codes used by the native API and the settings store.
type PatternKind int

const (
	PatternStatic PatternKind = iota
	PatternBreathing
	PatternStrobe
	PatternCharging
	PatternNotification
	PatternDance
	PatternRainbowSweep
)

var patternNames = []string{
	PatternStatic:       "static",
	PatternBreathing:    "breathing",
	PatternStrobe:       "strobe",
	PatternCharging:     "charging",
	PatternNotification: "notification",
	PatternDance:        "dance",
	PatternRainbowSweep: "rainbow-sweep",
}

func (p PatternKind) String() string {
	if p < 0 || int(p) >= len(patternNames) {
		return "unknown"
	}
	return patternNames[p]
}

// Code is the integer stored by the native API and the settings slot.
func (p PatternKind) Code() int {
	return int(p)
}

// PatternFromCode maps a stored code back to a pattern. Unknown codes map to
// PatternStatic.
func PatternFromCode(code int) PatternKind {
	if code < 0 || code >= len(patternNames) {
		return PatternStatic
	}
	return PatternKind(code)
}

// ParsePattern parses a pattern name as printed by String.
func ParsePattern(s string) (PatternKind, bool) {
	for i, name := range patternNames {
		if name == s {
			return PatternKind(i), true
		}
	}
	return PatternStatic, false
}

// Patterns lists every pattern kind.
func Patterns() []PatternKind {
	out := make([]PatternKind, len(patternNames))
	for i := range out {
		out[i] = PatternKind(i)
	}
	return out
}

// Pattern is a pattern request. Color is optional; when nil the pattern's
// default color is used.
type Pattern struct {
	Kind  PatternKind
	Color *Color
}

func (p Pattern) colorOr(def Color) Color {
	if p.Color != nil {
		return *p.Color
	}
	return def
}

// CommandKind tags a Command.
type CommandKind int

const (
	CommandSetColor CommandKind = iota
	CommandSetBrightness
	CommandSetPattern
	CommandOff
)

func (k CommandKind) String() string {
	switch k {
	case CommandSetColor:
		return "set_color"
	case CommandSetBrightness:
		return "set_brightness"
	case CommandSetPattern:
		return "set_pattern"
	case CommandOff:
		return "off"
	default:
		return "unknown"
	}
}

// Command is a single request to the actuator. Only the field matching Kind
// is meaningful.
type Command struct {
	Kind       CommandKind
	Color      Color
	Brightness Brightness
	Pattern    Pattern
}

func SetColorCommand(c Color) Command { return Command{Kind: CommandSetColor, Color: c} }

func SetBrightnessCommand(b Brightness) Command {
	return Command{Kind: CommandSetBrightness, Brightness: b}
}

func SetPatternCommand(p Pattern) Command { return Command{Kind: CommandSetPattern, Pattern: p} }

func OffCommand() Command { return Command{Kind: CommandOff} }

// PresetColors is the palette offered by the CLI.
var PresetColors = []struct {
	Name  string
	Color Color
}{
	{"red", Color{255, 0, 0}},
	{"green", Color{0, 255, 0}},
	{"blue", Color{0, 0, 255}},
	{"yellow", Color{255, 255, 0}},
	{"magenta", Color{255, 0, 255}},
	{"cyan", Color{0, 255, 255}},
	{"white", Color{255, 255, 255}},
	{"orange", Color{255, 165, 0}},
	{"purple", Color{128, 0, 128}},
	{"pink", Color{255, 192, 203}},
	{"dark-green", Color{0, 128, 0}},
	{"indigo", Color{75, 0, 130}},
}

// LookupPreset returns the preset color with the given name.
func LookupPreset(name string) (Color, bool) {
	for _, p := range PresetColors {
		if p.Name == name {
			return p.Color, true
		}
	}
	return Color{}, false
}
