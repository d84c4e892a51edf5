// Package config loads the on-disk YAML configuration: store paths,
// the advisory-lock bound, and the index retry caps. Every field has a
// default relative to a base directory, so a config file is optional.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/kbsync/internal/lockd"
)

// Duration wraps time.Duration so YAML accepts "30s" / "500ms" forms.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config holds everything the CLI needs to wire the stores.
type Config struct {
	// RecordsDir is the content-store root.
	RecordsDir string `yaml:"records_dir"`

	// IndexPath is the SQLite database file.
	IndexPath string `yaml:"index_path"`

	// LockPath is the advisory-lock file guarding audit appends.
	LockPath string `yaml:"lock_path"`

	// AuditPath is the append-only JSONL audit trail.
	AuditPath string `yaml:"audit_path"`

	// LockTimeout bounds the wait for the advisory lock.
	LockTimeout Duration `yaml:"lock_timeout"`

	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig caps the index-store retry loop.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
}

// Default returns the configuration rooted at baseDir.
func Default(baseDir string) Config {
	policy := lockd.DefaultRetryPolicy()
	return Config{
		RecordsDir:  filepath.Join(baseDir, "records"),
		IndexPath:   filepath.Join(baseDir, "index.db"),
		LockPath:    filepath.Join(baseDir, ".audit.lock"),
		AuditPath:   filepath.Join(baseDir, "audit.jsonl"),
		LockTimeout: Duration(30 * time.Second),
		Retry: RetryConfig{
			MaxAttempts: policy.MaxAttempts,
			BaseDelay:   Duration(policy.BaseDelay),
			MaxDelay:    Duration(policy.MaxDelay),
		},
	}
}

// Load reads a YAML config file, filling unset fields from the
// defaults for baseDir. A missing file yields pure defaults.
func Load(path, baseDir string) (Config, error) {
	cfg := Default(baseDir)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Relative paths in the file are rooted at baseDir.
	for _, p := range []*string{&cfg.RecordsDir, &cfg.IndexPath, &cfg.LockPath, &cfg.AuditPath} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}

	return cfg, nil
}

// RetryPolicy converts the configured caps into a lockd policy.
func (c Config) RetryPolicy() lockd.RetryPolicy {
	return lockd.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   time.Duration(c.Retry.BaseDelay),
		MaxDelay:    time.Duration(c.Retry.MaxDelay),
	}
}
