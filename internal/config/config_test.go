package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every setting so the host environment does not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for key := range defaults {
		if _, ok := os.LookupEnv(key); ok {
			t.Setenv(key, "")
			require.NoError(t, os.Unsetenv(key))
		}
	}
	t.Setenv(FileEnv, "")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.DataDir)
	assert.Equal(t, "java -jar Mustang-CLI.jar", cfg.MustangCommand)
	assert.Equal(t, "gs", cfg.GhostscriptPath)
	assert.Equal(t, "EN16931", cfg.DefaultProfile)
	assert.Equal(t, 4, cfg.BatchWorkers)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, "eu", cfg.GoogleCloudLocation)

	lc := cfg.GetLoggerConfig()
	assert.Equal(t, "warn", lc.Level)
	assert.Equal(t, "stderr", lc.Output)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_DIR", "/srv/zugferd")
	t.Setenv("BATCH_WORKERS", "8")
	t.Setenv("TIMEOUT", "30s")
	t.Setenv("DEFAULT_PROFILE", "xrechnung")
	t.Setenv("DOCUMENT_AI_PROCESSOR_ID", "abc123")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/zugferd", cfg.DataDir)
	assert.Equal(t, 8, cfg.BatchWorkers)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "XRECHNUNG", cfg.DefaultProfile)
	assert.Equal(t, "abc123", cfg.DocumentAIProcessorID)
	assert.Equal(t, "debug", cfg.GetLoggerConfig().Level)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "zugferd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("GHOSTSCRIPT_PATH: /opt/gs/bin/gs\nBATCH_WORKERS: 2\n"), 0o600))
	t.Setenv(FileEnv, path)
	t.Setenv("BATCH_WORKERS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/opt/gs/bin/gs", cfg.GhostscriptPath)
	assert.Equal(t, 3, cfg.BatchWorkers, "environment wins over the file")
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"no workers", "BATCH_WORKERS", "0"},
		{"bad timeout", "TIMEOUT", "-1s"},
		{"unknown profile", "DEFAULT_PROFILE", "FANCY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(FileEnv, filepath.Join(t.TempDir(), "absent.yaml"))

		_, err := Load()
		assert.Error(t, err)
	})
}
