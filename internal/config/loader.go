package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither an explicit path nor DBPEXEC_CONFIG is set.
const DefaultPath = "config.yaml"

// ErrConfigCreated is returned by Load when the config file was missing and a
// placeholder has been written in its place. Callers should exit so the
// operator can edit it.
var ErrConfigCreated = errors.New("config file created with placeholder values")

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, DBPEXEC_CONFIG env, ./config.yaml)
//  3. Environment variable overrides
//  4. Validation
//
// A missing file is bootstrapped with placeholder values and ErrConfigCreated is returned.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	path := Discover(configPath)
	if err := loadYAMLFile(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if werr := Bootstrap(path); werr != nil {
				return nil, fmt.Errorf("creating config file %s: %w", path, werr)
			}
			return nil, fmt.Errorf("%s: %w", path, ErrConfigCreated)
		}
		return nil, fmt.Errorf("loading config file %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// FromEnv returns the defaults with environment overrides applied, for
// tools that run without a config file.
func FromEnv() *Config {
	cfg := Defaults()
	applyEnvOverrides(&cfg)
	return &cfg
}

// Discover returns the config file path: the explicit argument, then
// DBPEXEC_CONFIG, then DefaultPath.
func Discover(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("DBPEXEC_CONFIG"); envPath != "" {
		return envPath
	}
	return DefaultPath
}

// Bootstrap writes the placeholder configuration to path.
func Bootstrap(path string) error {
	data, err := yaml.Marshal(Placeholder())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DBPEXEC_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("DBPEXEC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DBPEXEC_SECRET"); v != "" {
		cfg.Server.Secret = v
	}
	if v := os.Getenv("DBPEXEC_TOOLCHAIN_PATH"); v != "" {
		cfg.Toolchain.Path = v
	}
	if v := os.Getenv("DBPEXEC_COMPILER_TIMEOUT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Toolchain.CompilerTimeout = Seconds(f)
		}
	}
	if v := os.Getenv("DBPEXEC_PROGRAM_TIMEOUT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Toolchain.ProgramTimeout = Seconds(f)
		}
	}
	if v := os.Getenv("DBPEXEC_QUEUE_MODE"); v != "" {
		cfg.Queue.Mode = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Queue.RedisAddr = v
	}
	if v := os.Getenv("DBPEXEC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
}
