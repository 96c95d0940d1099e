// Package config provides unified configuration loading for namsweep.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultSeed is the base seed runs are numbered from unless configured.
const DefaultSeed = 1437243

// Config contains all namsweep configuration settings.
type Config struct {
	// Logging contains settings for operational logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Plan contains defaults for expanding documents into pool files.
	Plan PlanConfig `json:"plan" yaml:"plan"`
}

// LoggingConfig configures namsweep's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "trace", "debug", "info" (default),
	// "warn" or "error".
	Level string `json:"level" yaml:"level"`
}

// PlanConfig configures the create command.
type PlanConfig struct {
	// PoolSize is the maximum number of points per pool file.
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// OutDir is where pool files are written, relative to the project root.
	OutDir string `json:"out_dir" yaml:"out_dir"`

	// Seed is added to each run index to derive the run's seed.
	Seed int64 `json:"seed" yaml:"seed"`

	// Workers bounds how many pool files are written concurrently.
	Workers int `json:"workers" yaml:"workers"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Plan: PlanConfig{
			PoolSize: 1024,
			OutDir:   "out",
			Seed:     DefaultSeed,
			Workers:  runtime.NumCPU(),
		},
	}
}

// DefaultPath returns ~/.namsweep/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".namsweep", "config.yaml"), nil
}

// Load loads configuration from the default location and environment variables.
// Order: defaults -> ~/.namsweep/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Keys missing
// from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

// Save writes the configuration as YAML to path, creating its directory.
func Save(path string, config *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: trace, debug, info, warn, error, or empty for default)", c.Logging.Level)
	}
	if c.Plan.PoolSize < 1 {
		return fmt.Errorf("pool_size must be positive, got %d", c.Plan.PoolSize)
	}
	if c.Plan.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Plan.Workers)
	}
	if c.Plan.OutDir == "" {
		return fmt.Errorf("out_dir must not be empty")
	}
	return nil
}

// Keys lists every dot-notation key accepted by Get and Set.
func Keys() []string {
	keys := []string{"logging.level", "plan.pool_size", "plan.out_dir", "plan.seed", "plan.workers"}
	sort.Strings(keys)
	return keys
}

// Get retrieves a configuration value by dot-notation key.
func (c *Config) Get(key string) (any, bool) {
	switch key {
	case "logging.level":
		return c.Logging.Level, true
	case "plan.pool_size":
		return c.Plan.PoolSize, true
	case "plan.out_dir":
		return c.Plan.OutDir, true
	case "plan.seed":
		return c.Plan.Seed, true
	case "plan.workers":
		return c.Plan.Workers, true
	default:
		return nil, false
	}
}

// Set sets a configuration value by dot-notation key.
func (c *Config) Set(key, value string) error {
	switch key {
	case "logging.level":
		if !validLevels[value] {
			return fmt.Errorf("invalid log level: %s (valid: trace, debug, info, warn, error)", value)
		}
		c.Logging.Level = value
	case "plan.pool_size":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid pool size: %s (must be a positive integer)", value)
		}
		c.Plan.PoolSize = n
	case "plan.out_dir":
		if value == "" {
			return fmt.Errorf("out_dir must not be empty")
		}
		c.Plan.OutDir = value
	case "plan.seed":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed: %s (must be an integer)", value)
		}
		c.Plan.Seed = n
	case "plan.workers":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid worker count: %s (must be a positive integer)", value)
		}
		c.Plan.Workers = n
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Unparseable numbers are ignored.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("NAMSWEEP_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("NAMSWEEP_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Plan.PoolSize = n
		}
	}

	if v := os.Getenv("NAMSWEEP_OUT_DIR"); v != "" {
		config.Plan.OutDir = v
	}

	if v := os.Getenv("NAMSWEEP_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Plan.Seed = n
		}
	}

	if v := os.Getenv("NAMSWEEP_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Plan.Workers = n
		}
	}
}
