package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"ERROR", LevelError},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		require.NoError(t, err, "ParseLevel(%q)", tt.input)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatText, ParseFormat("text"))
	assert.Equal(t, FormatText, ParseFormat(""))
}

func TestNew_RedactsSensitiveAttributes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	log, err := New(&Config{
		Level:    LevelInfo,
		Format:   FormatJSON,
		Output:   "file",
		FilePath: path,
	})
	require.NoError(t, err)

	log.Info("vault unlocked", "passphrase", "hunter2", "secret_count", 3)
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "vault unlocked")
}

func TestNew_LevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	log, err := New(&Config{
		Level:    LevelWarn,
		Output:   "file",
		FilePath: path,
	})
	require.NoError(t, err)

	log.Info("below threshold")
	log.Warn("at threshold")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "below threshold")
	assert.Contains(t, string(data), "at threshold")
}

func TestWithComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	log, err := New(&Config{
		Format:    FormatJSON,
		Output:    "file",
		FilePath:  path,
		Component: "redactd",
	})
	require.NoError(t, err)

	log.WithComponent("capture").Info("hello")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"capture"`)
}

func TestFileRotator_RotatesAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "redactd.log")

	r := &fileRotator{path: path, maxBytes: 64, maxBackups: 3}
	require.NoError(t, r.open())

	first := strings.Repeat("a", 40) + "\n"
	second := strings.Repeat("b", 40) + "\n"

	_, err := r.Write([]byte(first))
	require.NoError(t, err)
	_, err = r.Write([]byte(second))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, second, string(current))

	backups, err := filepath.Glob(filepath.Join(dir, "redactd-*.log"))
	require.NoError(t, err)
	require.Len(t, backups, 1)

	rotated, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, first, string(rotated))
}

func TestFileRotator_CleanupKeepsNewestBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "redactd.log")

	base := time.Now().Add(-time.Hour)
	var names []string
	for i := 0; i < 4; i++ {
		stamp := time.Date(2026, 3, 1, 12, 0, i, 0, time.UTC).Format("20060102-150405")
		name := filepath.Join(dir, "redactd-"+stamp+".log")
		require.NoError(t, os.WriteFile(name, []byte("old"), 0600))
		require.NoError(t, os.Chtimes(name, base.Add(time.Duration(i)*time.Minute), base.Add(time.Duration(i)*time.Minute)))
		names = append(names, name)
	}

	r := &fileRotator{path: path, maxBackups: 2}
	r.cleanup()

	remaining, err := filepath.Glob(filepath.Join(dir, "redactd-*.log"))
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Contains(t, remaining, names[2])
	assert.Contains(t, remaining, names[3])
}
