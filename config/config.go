// Package config loads pacsnet's server configuration from a YAML file,
// with environment variable overrides loaded via .env and validated with
// struct tags.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	AETitle string       `yaml:"ae_title" validate:"required"`
	Network NetworkConfig `yaml:"network" validate:"required"`
	Archive ArchiveConfig `yaml:"archive" validate:"required"`
	Index   IndexConfig   `yaml:"index" validate:"required"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Admin   AdminConfig   `yaml:"admin"`
	Cache   CacheConfig   `yaml:"cache"`

	Destinations map[string]DestinationConfig `yaml:"destinations"`
}

// NetworkConfig configures the DICOM TCP listener.
type NetworkConfig struct {
	ListenAddress          string   `yaml:"listen_address" validate:"required"`
	MaxAssociations        int      `yaml:"max_associations" validate:"min=0"`
	ReadTimeoutSeconds      int      `yaml:"read_timeout_seconds" validate:"min=0"`
	WriteTimeoutSeconds     int      `yaml:"write_timeout_seconds" validate:"min=0"`
	AllowedCallingAETitles []string `yaml:"allowed_calling_ae_titles"`
}

// ArchiveConfig configures the on-disk instance archive.
type ArchiveConfig struct {
	RootDir         string `yaml:"root_dir" validate:"required"`
	NamingScheme    string `yaml:"naming_scheme" validate:"required,oneof=uid-hierarchical date-hierarchical flat"`
	DuplicatePolicy string `yaml:"duplicate_policy" validate:"required,oneof=reject replace ignore"`
}

// IndexConfig selects and configures the metadata index backend.
type IndexConfig struct {
	Driver           string `yaml:"driver" validate:"required,oneof=memory postgres"`
	PostgresDSN      string `yaml:"postgres_dsn"`
	ScanArchiveAtStart bool `yaml:"scan_archive_at_start"`
}

// LoggingConfig configures the zerolog writer.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig holds the metrics settings. Address is not used by the
// server: /metrics is served only on the admin HTTP router, when the admin
// server is enabled.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// AdminConfig configures the chi-based admin HTTP API.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// CacheConfig configures the Redis-backed C-FIND result cache.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	TTLSeconds int  `yaml:"ttl_seconds" validate:"min=0"`
}

// DestinationConfig is a known C-MOVE destination AE.
type DestinationConfig struct {
	Address string `yaml:"address" validate:"required"`
}

// Default returns a configuration usable for local development: an
// in-memory index, uid-hierarchical archive naming, and no ambient services
// enabled.
func Default() *Config {
	return &Config{
		AETitle: "PACSNET",
		Network: NetworkConfig{
			ListenAddress:       ":11112",
			MaxAssociations:     16,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 30,
		},
		Archive: ArchiveConfig{
			RootDir:         "./data/archive",
			NamingScheme:    "uid-hierarchical",
			DuplicatePolicy: "replace",
		},
		Index: IndexConfig{
			Driver:             "memory",
			ScanArchiveAtStart: true,
		},
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{Enabled: false, Address: ":9090"},
		Admin:   AdminConfig{Enabled: false, Address: ":8080"},
		Cache:   CacheConfig{Enabled: false, TTLSeconds: 60},
	}
}

// Load reads and validates configuration from path. A .env file in the
// current working directory (if present) is loaded into the environment
// first; PACSNET_INDEX_POSTGRES_DSN, when set, overrides index.postgres_dsn
// before validation runs.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if dsn := os.Getenv("PACSNET_INDEX_POSTGRES_DSN"); dsn != "" {
		cfg.Index.PostgresDSN = dsn
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Index.Driver == "postgres" && cfg.Index.PostgresDSN == "" {
		return nil, fmt.Errorf("invalid configuration: index.postgres_dsn is required when index.driver is postgres")
	}

	return cfg, nil
}
