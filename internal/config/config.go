// Package config handles loading and parsing of videoup configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for videoup.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Storage       StorageConfig       `yaml:"storage"`
	Upload        UploadConfig        `yaml:"upload"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ShutdownTimeout is the graceful shutdown timeout in seconds.
	ShutdownTimeout int `yaml:"shutdown_timeout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig holds object store connection settings. It is injected
// into the storage adapter's constructor and never mutated afterwards.
type StorageConfig struct {
	// Backend is the adapter type: "s3", "minio" or "memory".
	Backend string `yaml:"backend"`
	// Bucket is the single bucket all uploads land in.
	Bucket string `yaml:"bucket"`
	// Endpoint is host[:port] of an S3-compatible service. Empty means AWS.
	// For the memory backend it is the public base URL presigned links point at.
	Endpoint string `yaml:"endpoint"`
	// Region is the signing region.
	Region string `yaml:"region"`
	// AccessKey and SecretKey are static credentials. When empty the s3
	// backend falls back to the default AWS credential chain.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	// UseSSL selects https for Endpoint.
	UseSSL bool `yaml:"use_ssl"`
	// PathStyle forces path-style bucket addressing (required by MinIO).
	PathStyle bool `yaml:"path_style"`
}

// UploadConfig holds upload policy settings.
type UploadConfig struct {
	// PartURLExpiry bounds the validity of per-part upload URLs.
	PartURLExpiry time.Duration `yaml:"part_url_expiry"`
	// SingleShotURLExpiry bounds the validity of whole-object upload URLs.
	SingleShotURLExpiry time.Duration `yaml:"single_shot_url_expiry"`
	// MaxPartNumber is the highest part number a session may authorize.
	MaxPartNumber int `yaml:"max_part_number"`
	// ContentType is recorded on every multipart session.
	ContentType string `yaml:"content_type"`
	// AllowedDirectContentTypes lists content types accepted by the direct upload path.
	AllowedDirectContentTypes []string `yaml:"allowed_direct_content_types"`
	// MaxDirectSize is the largest body accepted by the direct upload path, in bytes.
	MaxDirectSize int64 `yaml:"max_direct_size"`
}

// ObservabilityConfig toggles the operational endpoints.
type ObservabilityConfig struct {
	Metrics     bool `yaml:"metrics"`
	HealthCheck bool `yaml:"health_check"`
}

// Load reads a YAML configuration file from the given path and returns
// a parsed Config. It applies defaults for unset values. A missing file is
// not an error: the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		fallback := filepath.Join(filepath.Dir(path), "videoup.example.yaml")
		data, err = os.ReadFile(fallback)
		if err != nil {
			applyDefaults(cfg)
			return cfg, nil
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Backend: "minio",
			Bucket:  "videos",
			Region:  "us-east-1",
		},
		Upload: UploadConfig{
			PartURLExpiry:             15 * time.Minute,
			SingleShotURLExpiry:       15 * time.Minute,
			MaxPartNumber:             1000,
			ContentType:               "video/mp4",
			AllowedDirectContentTypes: []string{"video/mp4"},
			MaxDirectSize:             5 << 30,
		},
		Observability: ObservabilityConfig{
			Metrics:     true,
			HealthCheck: true,
		},
	}
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = def.Storage.Backend
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = def.Storage.Region
	}
	if cfg.Upload.PartURLExpiry == 0 {
		cfg.Upload.PartURLExpiry = def.Upload.PartURLExpiry
	}
	if cfg.Upload.SingleShotURLExpiry == 0 {
		cfg.Upload.SingleShotURLExpiry = def.Upload.SingleShotURLExpiry
	}
	if cfg.Upload.MaxPartNumber == 0 {
		cfg.Upload.MaxPartNumber = def.Upload.MaxPartNumber
	}
	if cfg.Upload.ContentType == "" {
		cfg.Upload.ContentType = def.Upload.ContentType
	}
	if len(cfg.Upload.AllowedDirectContentTypes) == 0 {
		cfg.Upload.AllowedDirectContentTypes = def.Upload.AllowedDirectContentTypes
	}
	if cfg.Upload.MaxDirectSize == 0 {
		cfg.Upload.MaxDirectSize = def.Upload.MaxDirectSize
	}
}

// Validate reports configuration values the service cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "s3", "minio", "memory":
	default:
		return fmt.Errorf("storage.backend must be one of s3, minio, memory; got %q", c.Storage.Backend)
	}
	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required")
	}
	if c.Storage.Backend == "minio" && c.Storage.Endpoint == "" {
		return errors.New("storage.endpoint is required when backend is 'minio'")
	}
	if c.Upload.PartURLExpiry <= 0 || c.Upload.SingleShotURLExpiry <= 0 {
		return errors.New("upload URL expiries must be positive")
	}
	// S3 presigned URLs cannot outlive seven days.
	if c.Upload.PartURLExpiry > 7*24*time.Hour || c.Upload.SingleShotURLExpiry > 7*24*time.Hour {
		return errors.New("upload URL expiries must not exceed 7 days")
	}
	if c.Upload.MaxPartNumber < 1 || c.Upload.MaxPartNumber > 10000 {
		return fmt.Errorf("upload.max_part_number must be within [1, 10000]; got %d", c.Upload.MaxPartNumber)
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
