package led

import (
	"context"
	"time"

	"github.com/lucasb-eyer/go-colorful"
)

// RainbowColors returns n fully saturated colors with hues spread evenly
// around the wheel, starting at red.
func RainbowColors(n int) []Color {
	if n < 1 {
		return nil
	}

	out := make([]Color, n)
	for i := range out {
		r, g, b := colorful.Hsv(360*float64(i)/float64(n), 1, 1).RGB255()
		out[i] = Color{R: r, G: g, B: b}
	}
	return out
}

// sweep commits each color in turn, holding it for step. It returns early
// with ctx's error when ctx is done.
func sweep(ctx context.Context, colors []Color, step time.Duration, set func(context.Context, Color) error) error {
	for _, c := range colors {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := set(ctx, c); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step):
		}
	}
	return nil
}
