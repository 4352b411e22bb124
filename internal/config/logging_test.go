package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLogDefaults(t *testing.T) {
	cfg, err := LoadLog()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Level)
	assert.False(t, cfg.Pretty)
	assert.Equal(t, 10, cfg.MaxMB)
	assert.Equal(t, 1, cfg.Backups)
}

func TestLoadLogParse(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("LOG_FILE", "/tmp/house.log")

	cfg, err := LoadLog()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.Pretty)
	assert.Equal(t, "/tmp/house.log", cfg.File)
}
