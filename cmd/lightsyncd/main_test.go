package main

import (
	"testing"

	"codeberg.org/mutker/lightsync/internal/led"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	c, err := parseColor("Orange")
	require.NoError(t, err)
	assert.Equal(t, led.Color{R: 255, G: 165}, c)

	c, err = parseColor("#102030")
	require.NoError(t, err)
	assert.Equal(t, led.Color{R: 0x10, G: 0x20, B: 0x30}, c)

	_, err = parseColor("not-a-color")
	assert.Error(t, err)
}

func TestTierOrder(t *testing.T) {
	order := tierOrder([]string{"sysfs", "bogus", "native"})
	assert.Equal(t, []led.Method{led.MethodSysfs, led.MethodNative}, order)
}

func TestRenderStatus(t *testing.T) {
	out := renderStatus("State: initialized\nTier: sysfs_only\nLED interfaces: 1 found\n- /sys/class/leds/red")

	assert.Contains(t, out, "LED status")
	assert.Contains(t, out, "Tier:")
	assert.Contains(t, out, "sysfs_only")
	assert.Contains(t, out, "/sys/class/leds/red")
	assert.NotContains(t, out, "- /sys")
}

func TestRenderList(t *testing.T) {
	out := renderList()

	for _, want := range []string{"spectrum", "bass_only", "rainbow-sweep", "dark-green", "FFA500"} {
		assert.Contains(t, out, want)
	}
}
