// Package config handles configuration loading, validation, and hot
// reloading for redactd.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the complete daemon configuration.
type Config struct {
	// Capture configuration for the input event buffer.
	Capture CaptureConfig `toml:"capture" json:"capture" yaml:"capture"`

	// Vault configuration for secret storage.
	Vault VaultConfig `toml:"vault" json:"vault" yaml:"vault"`

	// Transcripts configuration for sanitized output.
	Transcripts TranscriptConfig `toml:"transcripts" json:"transcripts" yaml:"transcripts"`

	// Matching configuration for secret detection thresholds.
	Matching MatchingConfig `toml:"matching" json:"matching" yaml:"matching"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// CaptureConfig holds input buffering configuration.
type CaptureConfig struct {
	// BufferSize is the maximum number of events held between cycles.
	// Once full, the oldest events are dropped.
	BufferSize int `toml:"buffer_size" json:"buffer_size" yaml:"buffer_size"`

	// FlushIntervalMs is the processing cycle period in milliseconds.
	FlushIntervalMs int `toml:"flush_interval_ms" json:"flush_interval_ms" yaml:"flush_interval_ms"`
}

// FlushInterval returns the cycle period as a duration.
func (c CaptureConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

// VaultConfig holds secret vault configuration.
type VaultConfig struct {
	// Path is the path to the encrypted vault database.
	Path string `toml:"path" json:"path" yaml:"path"`

	// PassphraseEnv names the environment variable holding the vault
	// passphrase. The passphrase itself never appears in config files.
	PassphraseEnv string `toml:"passphrase_env" json:"passphrase_env" yaml:"passphrase_env"`
}

// TranscriptConfig holds sanitized transcript output configuration.
type TranscriptConfig struct {
	// Dir is the directory for transcript files.
	Dir string `toml:"dir" json:"dir" yaml:"dir"`

	// AutoRescan reprocesses transcripts dropped into Dir by other
	// writers when they settle.
	AutoRescan bool `toml:"auto_rescan" json:"auto_rescan" yaml:"auto_rescan"`
}

// MatchingConfig holds detection threshold configuration.
type MatchingConfig struct {
	// MinSimilarity is the fuzzy match acceptance threshold (0.0-1.0).
	MinSimilarity float64 `toml:"min_similarity" json:"min_similarity" yaml:"min_similarity"`

	// FuzzyMinLength is the minimum secret length eligible for fuzzy
	// matching. Shorter secrets match exactly only.
	FuzzyMinLength int `toml:"fuzzy_min_length" json:"fuzzy_min_length" yaml:"fuzzy_min_length"`

	// ChunkSize is the pre-filter chunk width in runes.
	ChunkSize int `toml:"chunk_size" json:"chunk_size" yaml:"chunk_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", or "file".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB rotates the log file once it exceeds this size in
	// megabytes. Zero disables rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated log files to keep. Zero
	// keeps all of them.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Capture: CaptureConfig{
			BufferSize:      4096,
			FlushIntervalMs: 30000,
		},
		Vault: VaultConfig{
			Path:          filepath.Join(dir, "vault.db"),
			PassphraseEnv: "REDACTD_PASSPHRASE",
		},
		Transcripts: TranscriptConfig{
			Dir:        filepath.Join(dir, "transcripts"),
			AutoRescan: false,
		},
		Matching: MatchingConfig{
			MinSimilarity:  0.75,
			FuzzyMinLength: 6,
			ChunkSize:      64,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(dir, "redactd.log"),
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// DataDir returns the base redactd data directory, honoring the
// REDACTD_DATA_DIR environment override.
func DataDir() string {
	if envDir := os.Getenv("REDACTD_DATA_DIR"); envDir != "" {
		return envDir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".redactd")
	}
	return ".redactd"
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// Load reads configuration from the specified path. A missing file
// yields the defaults. Format follows the file extension; TOML, JSON,
// and YAML are supported.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides. Variables
// are prefixed with REDACTD_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("REDACTD_VAULT_PATH"); v != "" {
		c.Vault.Path = v
	}
	if v := os.Getenv("REDACTD_TRANSCRIPT_DIR"); v != "" {
		c.Transcripts.Dir = v
	}
	if v := os.Getenv("REDACTD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("REDACTD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Capture.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("capture.buffer_size must be positive, got %d", c.Capture.BufferSize))
	}
	if c.Capture.FlushIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("capture.flush_interval_ms must be positive, got %d", c.Capture.FlushIntervalMs))
	}
	if c.Vault.Path == "" {
		errs = append(errs, errors.New("vault.path must be set"))
	}
	if c.Vault.PassphraseEnv == "" {
		errs = append(errs, errors.New("vault.passphrase_env must be set"))
	}
	if c.Transcripts.Dir == "" {
		errs = append(errs, errors.New("transcripts.dir must be set"))
	}
	if c.Matching.MinSimilarity <= 0 || c.Matching.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("matching.min_similarity must be in (0, 1], got %g", c.Matching.MinSimilarity))
	}
	if c.Matching.FuzzyMinLength < 1 {
		errs = append(errs, fmt.Errorf("matching.fuzzy_min_length must be at least 1, got %d", c.Matching.FuzzyMinLength))
	}
	if c.Matching.ChunkSize < 8 {
		errs = append(errs, fmt.Errorf("matching.chunk_size must be at least 8, got %d", c.Matching.ChunkSize))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	switch c.Logging.Output {
	case "stdout", "stderr":
	case "file":
		if c.Logging.FilePath == "" {
			errs = append(errs, errors.New("logging.file_path must be set when output is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("logging.output must be stdout, stderr, or file, got %q", c.Logging.Output))
	}
	if c.Logging.MaxSizeMB < 0 {
		errs = append(errs, fmt.Errorf("logging.max_size_mb must not be negative, got %d", c.Logging.MaxSizeMB))
	}
	if c.Logging.MaxBackups < 0 {
		errs = append(errs, fmt.Errorf("logging.max_backups must not be negative, got %d", c.Logging.MaxBackups))
	}

	return errors.Join(errs...)
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Vault.Path),
		c.Transcripts.Dir,
	}
	if c.Logging.Output == "file" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// SaveConfig writes a configuration to path as TOML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
