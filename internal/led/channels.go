package led

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/lightsync/internal/errors"
	"codeberg.org/mutker/lightsync/internal/shell"
)

type channel int

const (
	channelRed channel = iota
	channelGreen
	channelBlue
	channelRGB
)

// knownChannels maps LED class device names to the component they drive.
var knownChannels = map[string]channel{
	"red":         channelRed,
	"green":       channelGreen,
	"blue":        channelBlue,
	"nubia_led_r": channelRed,
	"nubia_led_g": channelGreen,
	"nubia_led_b": channelBlue,
	"rgb":         channelRGB,
}

// ledChannels drives individual LED class devices plus an optional property
// command.
type ledChannels struct {
	classRoot string
	names     []string
	runner    shell.Runner
	// property is a command template; {r}, {g} and {b} are substituted.
	property string
}

func (l ledChannels) available() bool {
	return len(l.names) > 0 || (l.property != "" && l.runner != nil)
}

func (l ledChannels) setColor(ctx context.Context, c Color) error {
	if !l.available() {
		return errors.New().New(ErrNoChannels)
	}

	var (
		ok      bool
		lastErr error
	)

	for _, name := range l.names {
		var value string
		switch knownChannels[name] {
		case channelRed:
			value = strconv.Itoa(int(c.R))
		case channelGreen:
			value = strconv.Itoa(int(c.G))
		case channelBlue:
			value = strconv.Itoa(int(c.B))
		case channelRGB:
			if err := writeFile(ctx, filepath.Join(l.classRoot, name, fileRGBColor), c.CSV()); err != nil {
				lastErr = err
				continue
			}
			ok = true
			continue
		}

		if err := writeFile(ctx, filepath.Join(l.classRoot, name, fileBrightness), value); err != nil {
			lastErr = err
			continue
		}
		ok = true
	}

	if l.property != "" && l.runner != nil {
		line := strings.NewReplacer(
			"{r}", strconv.Itoa(int(c.R)),
			"{g}", strconv.Itoa(int(c.G)),
			"{b}", strconv.Itoa(int(c.B)),
		).Replace(l.property)
		if _, err := shell.RunLine(ctx, l.runner, line); err != nil {
			lastErr = err
		} else {
			ok = true
		}
	}

	if ok {
		return nil
	}
	return errors.New().Wrap(errors.ErrOperationFailed, lastErr)
}

func (l ledChannels) setBrightness(ctx context.Context, b Brightness) error {
	if len(l.names) == 0 {
		return errors.New().New(ErrNoChannels)
	}

	var (
		ok      bool
		lastErr error
	)
	for _, name := range l.names {
		if err := writeFile(ctx, filepath.Join(l.classRoot, name, fileBrightness), strconv.Itoa(b.Raw())); err != nil {
			lastErr = err
			continue
		}
		ok = true
	}

	if ok {
		return nil
	}
	return errors.New().Wrap(errors.ErrOperationFailed, lastErr)
}
