package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeSettings_Validate(t *testing.T) {
	valid := RuntimeSettings{
		BackendURL: "https://backend.example",
		HealthCron: "@every 10s",
		LogLevel:   "info",
	}
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.HealthCron = "bad cron"
	require.Error(t, invalid.Validate())

	invalidURL := valid
	invalidURL.BackendURL = "backend.example"
	require.Error(t, invalidURL.Validate())

	invalidLevel := valid
	invalidLevel.LogLevel = "verbose"
	require.Error(t, invalidLevel.Validate())
}

func TestRuntimeSettingsFile_RoundTrip(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "settings", "runtime.json")
	input := RuntimeSettings{
		BackendURL: "https://backend.example",
		HealthCron: "*/30 * * * * *",
		LogLevel:   "debug",
	}

	require.NoError(t, WriteRuntimeSettingsFile(filePath, input))

	got, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, input, got)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestWithRuntimeSettings_OverridesConfig(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://env.example")
	t.Setenv("HEALTH_CRON", "@every 30s")

	override := RuntimeSettings{
		BackendURL: "https://file.example",
		HealthCron: "@every 5s",
		LogLevel:   "error",
	}

	cfg, err := NewFromEnv(WithRuntimeSettings(override))
	require.NoError(t, err)
	assert.Equal(t, override.BackendURL, cfg.Backend.URL)
	assert.Equal(t, override.HealthCron, cfg.Backend.HealthCron)
	assert.Equal(t, override.LogLevel, cfg.Log.Level)
	assert.Equal(t, override, cfg.RuntimeSettings())
}

func TestRuntimeSettingsStore_UpdatePersistsFile(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "runtime-settings.json")
	initial := RuntimeSettings{
		BackendURL: "https://old.example",
		HealthCron: "@every 10s",
	}

	store, err := NewRuntimeSettingsStore(filePath, initial)
	require.NoError(t, err)

	next := RuntimeSettings{
		BackendURL: "https://new.example",
		HealthCron: "@every 1m",
		LogLevel:   "warn",
	}
	got, err := store.UpdateRuntimeSettings(next)
	require.NoError(t, err)
	assert.Equal(t, next, got)

	loaded, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, next, loaded)
}
