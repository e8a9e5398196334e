// Package config loads the YAML configuration shared by the service and the
// CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"receipt-geometry/internal/logging"
	"receipt-geometry/internal/scan"
)

const (
	appDir     = "receipt-geometry"
	configFile = "config.yaml"

	// EnvConfig names a configuration file to load when no path is given.
	EnvConfig = "RECEIPT_GEOMETRY_CONFIG"
	// EnvAddr overrides Server.Addr.
	EnvAddr = "RECEIPT_ADDR"
	// EnvLogLevel overrides Log.Level.
	EnvLogLevel = "RECEIPT_LOG_LEVEL"
	// EnvLogFormat overrides Log.Format.
	EnvLogFormat = "RECEIPT_LOG_FORMAT"
)

// Config is the full application configuration.
type Config struct {
	Scan   scan.Options `yaml:"scan"`
	Server Server       `yaml:"server"`
	Log    Log          `yaml:"log"`

	path string
}

// Server configures the HTTP service.
type Server struct {
	Addr           string        `yaml:"addr"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowedOrigin  string        `yaml:"allowed_origin"`
}

// Log configures logrus output.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Scan: scan.DefaultOptions(),
		Server: Server{
			Addr:           ":8080",
			MaxUploadBytes: 20 << 20,
			RequestTimeout: 30 * time.Second,
			AllowedOrigin:  "*",
		},
		Log: Log{
			Level:  "info",
			Format: logging.FormatText,
		},
	}
}

// DefaultPath returns <UserConfigDir>/receipt-geometry/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, appDir, configFile)
}

// Load reads the configuration from path, or from $RECEIPT_GEOMETRY_CONFIG,
// or from DefaultPath, in that order. Settings missing from the file keep
// their defaults. A missing file is only an error when it was named
// explicitly. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := true
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		path = DefaultPath()
		explicit = false
	}
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(c)
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
}

// Validate rejects nonsensical settings.
func (c *Config) Validate() error {
	if err := c.Scan.Validate(); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return errors.New("server: empty addr")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server: max_upload_bytes %d not positive", c.Server.MaxUploadBytes)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server: request_timeout %s not positive", c.Server.RequestTimeout)
	}
	if _, err := logging.New(c.Log.Level, c.Log.Format, io.Discard); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// Path returns the file the configuration was loaded from, or would be
// saved to.
func (c *Config) Path() string {
	if c.path == "" {
		return DefaultPath()
	}
	return c.path
}

// Save writes the configuration as YAML to path, or to Path() when path is
// empty.
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.Path()
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
