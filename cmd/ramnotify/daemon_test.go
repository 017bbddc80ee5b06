package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/ramnotify/types"
)

func TestDaemonSavesWorkingSettingsOnExit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	cfg := envConfig{
		LogLevel:    "error",
		ConfigPath:  path,
		HTTPAddr:    "127.0.0.1:0",
		ScanTimeout: time.Second,
		ExitTimeout: time.Second,
	}

	d, err := newDaemon(cfg, quietLogger())
	require.NoError(t, err)
	d.engine.SetThresholdPercent(types.ResourcePhysical, 42)

	assert.Equal(t, types.DefaultPercent, readSettings(t, path).Virtual.Percent, "edits stay in memory until exit")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}

	assert.Equal(t, 42, readSettings(t, path).Virtual.Percent)
}

func readSettings(t *testing.T, path string) types.Config {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg types.Config
	require.NoError(t, json.Unmarshal(data, &cfg))
	return cfg
}

func TestDaemonSaveFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	cfg := envConfig{LogLevel: "error", ConfigPath: filepath.Join(dir, "settings.json"), ExitTimeout: time.Second}

	d, err := newDaemon(cfg, quietLogger())
	require.NoError(t, err)

	// replace the settings file by a directory so the rename fails
	require.NoError(t, os.Remove(cfg.ConfigPath))
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.ConfigPath, "blocker"), 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = d.Run(ctx)
	assert.ErrorContains(t, err, "save settings")
}
