package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ChIIChI1230/screenshot/client/capture"
	"github.com/ChIIChI1230/screenshot/client/uploading"
)

// Config holds the capture client configuration as read from disk. The core
// packages never see this type; Snapshot converts it into the immutable
// settings value they consume.
type Config struct {
	ServerURL                string `json:"server_url"`
	IntervalSeconds          int    `json:"interval_seconds"`
	ImageFormat              string `json:"image_format"`
	JPEGQuality              int    `json:"jpeg_quality"`
	SaveLocalCopy            bool   `json:"save_local_copy"`
	LocalOutputDir           string `json:"local_output_dir"`
	LocalStorageDir          string `json:"local_storage_dir"`
	MaxLocalFiles            int    `json:"max_local_files"`    // 0 = unbounded
	RetentionSeconds         int    `json:"retention_seconds"`  // 0 = unbounded
	SweepIntervalSeconds     int    `json:"sweep_interval_seconds"`
	ConnectionTimeoutSeconds int    `json:"connection_timeout_seconds"`
	Source                   string `json:"source"` // defaults to the hostname
	LogDir                   string `json:"log_dir"`
	LogLevel                 string `json:"log_level"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		ServerURL:                "http://127.0.0.1:8000",
		IntervalSeconds:          10,
		ImageFormat:              "JPEG",
		JPEGQuality:              85,
		SaveLocalCopy:            false,
		LocalOutputDir:           "screenshots",
		LocalStorageDir:          "pending_screenshots",
		MaxLocalFiles:            1000,
		RetentionSeconds:         24 * 60 * 60,
		SweepIntervalSeconds:     5,
		ConnectionTimeoutSeconds: 10,
		LogDir:                   "logs",
		LogLevel:                 "info",
	}
}

// LoadConfig loads configuration from a JSON file. A missing file is replaced
// with a default one so a fresh install has something to edit.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			if err := saveConfig(filename, cfg); err != nil {
				return nil, fmt.Errorf("failed to create default config file: %w", err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// ConfigOverrides holds potential override values set on the command line.
type ConfigOverrides struct {
	ServerURL       *string
	IntervalSeconds *int
	ImageFormat     *string
	JPEGQuality     *int
	LocalOutputDir  *string
	LocalStorageDir *string
	Source          *string
}

// Override applies non-empty override values to the config.
func (c *Config) Override(overrides ConfigOverrides) {
	if overrides.ServerURL != nil && *overrides.ServerURL != "" {
		c.ServerURL = *overrides.ServerURL
	}
	if overrides.IntervalSeconds != nil && *overrides.IntervalSeconds > 0 {
		c.IntervalSeconds = *overrides.IntervalSeconds
	}
	if overrides.ImageFormat != nil && *overrides.ImageFormat != "" {
		c.ImageFormat = *overrides.ImageFormat
	}
	if overrides.JPEGQuality != nil && *overrides.JPEGQuality > 0 {
		c.JPEGQuality = *overrides.JPEGQuality
	}
	if overrides.LocalOutputDir != nil && *overrides.LocalOutputDir != "" {
		c.LocalOutputDir = *overrides.LocalOutputDir
	}
	if overrides.LocalStorageDir != nil && *overrides.LocalStorageDir != "" {
		c.LocalStorageDir = *overrides.LocalStorageDir
	}
	if overrides.Source != nil && *overrides.Source != "" {
		c.Source = *overrides.Source
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url must be set")
	}
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("interval_seconds must be greater than 0")
	}
	if _, err := capture.ParseFormat(c.ImageFormat); err != nil {
		return err
	}
	if c.JPEGQuality < capture.MinJPEGQuality || c.JPEGQuality > capture.MaxJPEGQuality {
		return fmt.Errorf("jpeg_quality must be in [%d, %d], got %d",
			capture.MinJPEGQuality, capture.MaxJPEGQuality, c.JPEGQuality)
	}
	if c.MaxLocalFiles < 0 {
		return fmt.Errorf("max_local_files must not be negative")
	}
	if c.RetentionSeconds < 0 {
		return fmt.Errorf("retention_seconds must not be negative")
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("sweep_interval_seconds must be greater than 0")
	}
	if c.ConnectionTimeoutSeconds <= 0 {
		return fmt.Errorf("connection_timeout_seconds must be greater than 0")
	}
	return nil
}

// Timeout returns the network timeout for server requests.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutSeconds) * time.Second
}

// Retention returns the local store retention limit.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}

// Snapshot builds the immutable uploader settings for one run. Call it again
// after editing the config and hand the result to the running uploader to
// reload between cycles.
func (c *Config) Snapshot() (uploading.Settings, error) {
	if err := c.Validate(); err != nil {
		return uploading.Settings{}, err
	}

	format, err := capture.ParseFormat(c.ImageFormat)
	if err != nil {
		return uploading.Settings{}, err
	}

	source := c.Source
	if source == "" {
		if hostname, err := os.Hostname(); err == nil {
			source = hostname
		} else {
			source = "unknown"
		}
	}

	return uploading.Settings{
		Interval:      time.Duration(c.IntervalSeconds) * time.Second,
		SweepInterval: time.Duration(c.SweepIntervalSeconds) * time.Second,
		Capture: capture.Settings{
			Format:      format,
			JPEGQuality: c.JPEGQuality,
		},
		SaveLocalCopy: c.SaveLocalCopy,
		OutputDir:     c.LocalOutputDir,
		Source:        source,
	}, nil
}

// saveConfig saves a configuration to a JSON file.
func saveConfig(filename string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
