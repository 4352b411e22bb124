package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"game-house/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFileKeepsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "house.log")
	f, err := openRotatingFile(config.LogConfig{File: path, MaxMB: 1, Backups: 2})
	require.NoError(t, err)
	defer f.Close()

	chunk := make([]byte, 768<<10)
	for i := 0; i < 4; i++ {
		_, err := f.Write(chunk)
		require.NoError(t, err)
	}

	for _, name := range []string{path, path + ".1", path + ".2"} {
		info, err := os.Stat(name)
		require.NoError(t, err, name)
		assert.Equal(t, int64(len(chunk)), info.Size(), name)
	}
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingFileTruncatesWithoutBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "house.log")
	f, err := openRotatingFile(config.LogConfig{File: path, MaxMB: 1})
	require.NoError(t, err)
	defer f.Close()

	chunk := make([]byte, 512<<10)
	for i := 0; i < 3; i++ {
		_, err := f.Write(chunk)
		require.NoError(t, err)
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunk)), info.Size())
	_, err = os.Stat(path + ".1")
	assert.True(t, os.IsNotExist(err))
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "house.log")
	require.NoError(t, Init(config.LogConfig{Level: "debug", File: path, MaxMB: 1}))
	t.Cleanup(func() {
		_ = Close()
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	log.Debug().Str("room_id", "r1").Msg("room created")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `"room_id":"r1"`))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}
