// Package config loads the converter configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/EchoTools/dlcconv/pkg/gp4"
	"github.com/EchoTools/dlcconv/pkg/logging"
)

// Config represents the converter configuration.
type Config struct {
	Region   string  `yaml:"region"`
	TitleID  string  `yaml:"title_id"`
	Version  string  `yaml:"version"`
	Passcode string  `yaml:"passcode"`
	Title    Title   `yaml:"title"`
	Tool     Tool    `yaml:"tool"`
	Workers  int     `yaml:"workers"`
	Catalog  string  `yaml:"catalog_path"`
	Logging  Logging `yaml:"logging"`
	Staging  Staging `yaml:"staging"`
}

// Title controls how over-long titles are handled.
type Title struct {
	MaxBytes int    `yaml:"max_bytes"`
	Policy   string `yaml:"policy"`
	// Prefix is prepended to titles derived from archive names.
	Prefix string `yaml:"prefix"`
}

// Tool configures the external package builder.
type Tool struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

// Logging contains logging configuration.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Staging controls the layout written for the builder.
type Staging struct {
	Compress bool `yaml:"compress"`
	Force    bool `yaml:"force"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Region:   "EP0001",
		TitleID:  "CUSA00745",
		Version:  "01.00",
		Passcode: gp4.DefaultPasscode,
		Title: Title{
			MaxBytes: gp4.DefaultMaxTitleBytes,
			Policy:   gp4.TitleReject.String(),
			Prefix:   "Rocksmith2014",
		},
		Tool: Tool{
			Enabled: true,
		},
		Workers: runtime.NumCPU(),
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Staging: Staging{
			Compress: true,
		},
	}
}

// Load reads configuration from path. Fields missing from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if len(c.Region) != 6 {
		return fmt.Errorf("region must be 6 characters, got %q", c.Region)
	}
	if len(c.TitleID) != 9 {
		return fmt.Errorf("title_id must be 9 characters, got %q", c.TitleID)
	}
	if len(c.Passcode) != 32 {
		return fmt.Errorf("passcode must be 32 characters, got %d", len(c.Passcode))
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Title.MaxBytes < 1 || c.Title.MaxBytes > gp4.DefaultMaxTitleBytes {
		return fmt.Errorf("title.max_bytes must be between 1 and %d, got %d", gp4.DefaultMaxTitleBytes, c.Title.MaxBytes)
	}
	if _, err := gp4.ParseTitlePolicy(c.Title.Policy); err != nil {
		return fmt.Errorf("title.policy: %w", err)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// TitlePolicy returns the parsed title policy.
func (c *Config) TitlePolicy() gp4.TitlePolicy {
	p, _ := gp4.ParseTitlePolicy(c.Title.Policy)
	return p
}

// DefaultPath returns the per-user configuration path.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "dlcconv.yaml"
	}
	return filepath.Join(dir, "dlcconv", "config.yaml")
}
