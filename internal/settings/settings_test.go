package settings_test

import (
	"context"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/lightsync/internal/errors"
	"codeberg.org/mutker/lightsync/internal/logger"
	"codeberg.org/mutker/lightsync/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store settings.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.GetInt(ctx, settings.KeyColor)
	assert.True(t, errors.HasCode(err, settings.ErrNotFound))

	require.NoError(t, store.PutInt(ctx, settings.KeyColor, 0xFF102030))
	require.NoError(t, store.PutInt(ctx, settings.KeyColor, 0xFF405060))
	require.NoError(t, store.PutInt(ctx, settings.KeyBrightness, 75))

	v, err := store.GetInt(ctx, settings.KeyColor)
	require.NoError(t, err)
	assert.Equal(t, 0xFF405060, v)

	v, err = store.GetInt(ctx, settings.KeyBrightness)
	require.NoError(t, err)
	assert.Equal(t, 75, v)
}

func TestSQLiteStore(t *testing.T) {
	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.db"), logger.Nop())
	require.NoError(t, err)

	exerciseStore(t, store)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	err = store.PutInt(context.Background(), settings.KeyPattern, 1)
	assert.True(t, errors.HasCode(err, settings.ErrClosed))
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")

	store, err := settings.Open(path, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, store.PutInt(context.Background(), settings.KeyPattern, 5))
	require.NoError(t, store.Close())

	store, err = settings.Open(path, logger.Nop())
	require.NoError(t, err)
	defer store.Close()

	v, err := store.GetInt(context.Background(), settings.KeyPattern)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, settings.NewMemory())
}
