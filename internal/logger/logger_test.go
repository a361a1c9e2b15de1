package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"codeberg.org/mutker/lightsync/internal/errors"
	"codeberg.org/mutker/lightsync/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorWithContextFields(t *testing.T) {
	logger.SetLogLevel(logger.DebugLevel)
	var buf bytes.Buffer
	log := logger.New(&buf)

	err := errors.New().New(errors.ErrOperationFailed)
	log.ErrorWithContext(err, "driver", "set_color").Msg("commit failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "driver", entry["component"])
	assert.Equal(t, "set_color", entry["operation"])
	assert.Equal(t, string(errors.ErrOperationFailed), entry["error_code"])
	assert.Equal(t, "commit failed", entry["message"])
}

func TestParseLevel(t *testing.T) {
	lvl, ok := logger.ParseLevel("debug")
	assert.True(t, ok)
	assert.Equal(t, logger.DebugLevel, lvl)

	_, ok = logger.ParseLevel("loud")
	assert.False(t, ok)
}

func TestNopDiscards(t *testing.T) {
	log := logger.Nop()
	assert.NotPanics(t, func() {
		log.Info().Str("k", "v").Msg("dropped")
		log.With("x").Debug().Send()
	})
}
