package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the configuration for the ingest server. It is immutable for
// the lifetime of the process.
type Config struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	StorageDir   string `json:"storage_dir"`
	DatabasePath string `json:"database_path"`
	LogPath      string `json:"log_path"`
	LogLevel     string `json:"log_level"`
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Host:         "0.0.0.0",
		Port:         8000,
		StorageDir:   "received_screenshots",
		DatabasePath: "uploads.db",
		LogPath:      "logs",
		LogLevel:     "info",
	}
}

// LoadConfig loads the configuration from a JSON file. A missing file yields
// the default configuration.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir must be set")
	}
	return nil
}

// SaveConfig saves the configuration to a JSON file.
func (c *Config) SaveConfig(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config file: %w", err)
	}

	return nil
}
