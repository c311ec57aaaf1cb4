package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.Capture.BufferSize)
	assert.Equal(t, 0.75, cfg.Matching.MinSimilarity)
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[capture]
buffer_size = 128
flush_interval_ms = 5000

[matching]
min_similarity = 0.8

[logging]
level = "debug"
output = "stderr"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.Capture.BufferSize)
	assert.Equal(t, 5000, cfg.Capture.FlushIntervalMs)
	assert.Equal(t, 0.8, cfg.Matching.MinSimilarity)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset sections keep their defaults.
	assert.Equal(t, 6, cfg.Matching.FuzzyMinLength)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
capture:
  buffer_size: 256
logging:
  level: warn
  output: stdout
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Capture.BufferSize)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero buffer", "[capture]\nbuffer_size = 0\n"},
		{"bad similarity", "[matching]\nmin_similarity = 1.5\n"},
		{"bad level", "[logging]\nlevel = \"loud\"\n"},
		{"bad output", "[logging]\noutput = \"syslog\"\n"},
		{"negative max size", "[logging]\nmax_size_mb = -1\n"},
		{"negative max backups", "[logging]\nmax_backups = -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("REDACTD_VAULT_PATH", "/tmp/v.db")
	t.Setenv("REDACTD_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "/tmp/v.db", cfg.Vault.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestDataDir_EnvOverride(t *testing.T) {
	t.Setenv("REDACTD_DATA_DIR", "/tmp/redactd-test")
	assert.Equal(t, "/tmp/redactd-test", DataDir())
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, cfg.Validate())

	_, created, err = LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := DefaultConfig()
	cfg.Capture.BufferSize = 999
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 999, loaded.Capture.BufferSize)
}
