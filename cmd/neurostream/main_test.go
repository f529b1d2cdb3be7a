package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	configPath = ""
	logLevel = ""
	logFormat = ""

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "neurostream.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n  format: json\n"), 0o600))

	configPath = path
	logLevel = "debug"
	logFormat = "text"
	t.Cleanup(func() {
		configPath = ""
		logLevel = ""
		logFormat = ""
	})

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadConfigRejectsBadLevel(t *testing.T) {
	configPath = ""
	logLevel = "loud"
	t.Cleanup(func() { logLevel = "" })

	_, err := loadConfig()
	require.Error(t, err)
}

func TestSetupLogger(t *testing.T) {
	logger := setupLogger("debug", "json")
	require.NotNil(t, logger)
	logger = setupLogger("bogus", "bogus")
	require.NotNil(t, logger)
}
