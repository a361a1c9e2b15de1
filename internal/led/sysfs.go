package led

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"codeberg.org/mutker/lightsync/internal/errors"
)

// Control files of the vendor LED node.
const (
	fileRGBColor    = "rgb_color"
	fileBrightness  = "brightness"
	fileBreathColor = "breathcolor"
	fileDanceColor  = "dancecolor"
	fileEffect      = "effect"
	fileLEDTest     = "led_test"
	filePattern     = "pattern"
)

// writeFile writes value to an existing file. It never creates files, and it
// gives up when ctx is done even if the kernel write is still blocked.
func writeFile(ctx context.Context, path, value string) error {
	done := make(chan error, 1)
	go func() {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
		if err != nil {
			done <- err
			return
		}
		_, err = f.WriteString(value)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.New().Wrap(ErrWriteTimeout, ctx.Err())
	}
}

// sysfsNode drives the vendor LED directory that exposes rgb_color, effect and
// friends.
type sysfsNode struct {
	root string
}

func (s sysfsNode) path(name string) string {
	return filepath.Join(s.root, name)
}

// available reports whether the node exposes its color file.
func (s sysfsNode) available() bool {
	if s.root == "" {
		return false
	}
	_, err := os.Stat(s.path(fileRGBColor))
	return err == nil
}

// setColor tries the hex encoding, then decimal triplets, then enabling test
// mode before writing hex again.
func (s sysfsNode) setColor(ctx context.Context, c Color) error {
	hex := c.Hex()

	err := writeFile(ctx, s.path(fileRGBColor), hex)
	if err == nil {
		return nil
	}

	if err = writeFile(ctx, s.path(fileRGBColor), c.CSV()); err == nil {
		return nil
	}

	if err = writeFile(ctx, s.path(fileLEDTest), "1"); err != nil {
		return err
	}
	return writeFile(ctx, s.path(fileRGBColor), hex)
}

func (s sysfsNode) setBrightness(ctx context.Context, b Brightness) error {
	return writeFile(ctx, s.path(fileBrightness), strconv.Itoa(b.Raw()))
}

func (s sysfsNode) setPattern(ctx context.Context, p Pattern) error {
	switch p.Kind {
	case PatternBreathing:
		if p.Color == nil {
			return writeFile(ctx, s.path(filePattern), "breathing")
		}
		return s.colorEffect(ctx, fileBreathColor, *p.Color, "breathing")
	case PatternDance:
		return s.colorEffect(ctx, fileDanceColor, p.colorOr(White), "dance")
	case PatternStrobe:
		return writeFile(ctx, s.path(fileEffect), "strobe")
	default:
		return errors.New().WithData(ErrUnsupported, p.Kind.String())
	}
}

func (s sysfsNode) colorEffect(ctx context.Context, colorFile string, c Color, effect string) error {
	if err := writeFile(ctx, s.path(colorFile), c.Hex()); err != nil {
		return err
	}
	return writeFile(ctx, s.path(fileEffect), effect)
}

func (s sysfsNode) testMode(ctx context.Context) error {
	return writeFile(ctx, s.path(fileLEDTest), "1")
}
