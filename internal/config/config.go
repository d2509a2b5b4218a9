// Package config loads mount configuration from an optional YAML file
// and environment variables. Environment variables win over the file,
// and both fall back to the device's factory defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Factory defaults for a tablet in USB gadget mode.
const (
	DefaultHost         = "10.11.99.1"
	DefaultPort         = 22
	DefaultUser         = "root"
	DefaultDocumentRoot = "/home/root/.local/share/remarkable/xochitl/"
)

// Config holds everything needed to reach the device and run the
// mount.
type Config struct {
	// Device connection
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// Remote document store
	DocumentRoot string `yaml:"document_root"`

	// Local mount
	MountPoint string `yaml:"mount_point"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Metrics (optional — empty disables the listener)
	MetricsAddr string `yaml:"metrics_addr"`
}

// Load builds a Config from defaults, the YAML file at path (if path
// is non-empty), and environment variable overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		User:         DefaultUser,
		DocumentRoot: DefaultDocumentRoot,
		LogLevel:     "info",
		LogFormat:    "console",
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Host = envOr("RMKMOUNT_HOST", cfg.Host)
	cfg.Port = envInt("RMKMOUNT_PORT", cfg.Port)
	cfg.User = envOr("RMKMOUNT_USER", cfg.User)
	cfg.Password = envOr("RMKMOUNT_PASSWORD", cfg.Password)
	cfg.DocumentRoot = envOr("RMKMOUNT_DOCUMENT_ROOT", cfg.DocumentRoot)
	cfg.MountPoint = envOr("RMKMOUNT_MOUNT_POINT", cfg.MountPoint)
	cfg.LogLevel = envOr("RMKMOUNT_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOr("RMKMOUNT_LOG_FORMAT", cfg.LogFormat)
	cfg.MetricsAddr = envOr("RMKMOUNT_METRICS_ADDR", cfg.MetricsAddr)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.DocumentRoot == "" {
		return fmt.Errorf("document_root is required")
	}
	// The descriptor search builds paths as root + name; keep a
	// trailing slash so the two concatenate cleanly.
	if !strings.HasSuffix(c.DocumentRoot, "/") {
		c.DocumentRoot += "/"
	}
	return nil
}

// Addr is the host:port dial target.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
