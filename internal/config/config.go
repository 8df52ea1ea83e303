// Package config loads the dbpexec configuration.
//
// Configuration is layered:
//  1. Built-in defaults
//  2. YAML config file (auto-created with placeholders when missing)
//  3. Environment variable overrides (DBPEXEC_ prefix)
//  4. Validation
package config

import (
	"log/slog"
	"path/filepath"
	"strconv"
	"time"
)

// PlaceholderPath is written into a freshly bootstrapped config file.
const PlaceholderPath = "<path to Dark Basic Professional (Online) root directory>"

// Config holds all configuration for dbpexec.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Toolchain ToolchainConfig `yaml:"toolchain"`
	Queue     QueueConfig     `yaml:"queue"`
	Worker    WorkerConfig    `yaml:"worker"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string          `yaml:"host"`             // default: 0.0.0.0
	Port            int             `yaml:"port"`             // default: 8014
	Secret          string          `yaml:"secret"`           // empty disables signature checks
	SignatureHeader string          `yaml:"signature_header"` // default: X-Signature-256
	MaxBodyBytes    int64           `yaml:"max_body_bytes"`   // default: 1 MiB
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures the per-IP token bucket.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	Rate    float64 `yaml:"rate"`  // tokens per second
	Burst   float64 `yaml:"burst"` // bucket capacity

	// TrustedProxies are IPs or CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// ToolchainConfig describes the external compiler and how it is driven.
type ToolchainConfig struct {
	Path            string           `yaml:"path"`
	Compiler        string           `yaml:"compiler"`         // default: <path>/Compiler/DBPCompiler.exe
	CompilerTimeout Seconds          `yaml:"compiler_timeout"` // default: 3
	ProgramTimeout  Seconds          `yaml:"program_timeout"`  // default: 5
	GraceInterval   Seconds          `yaml:"grace_interval"`   // default: 1
	WorkspaceRoot   string           `yaml:"workspace_root"`   // default: os temp dir
	Encoding        string           `yaml:"encoding"`         // default: utf-8
	Diagnostic      DiagnosticConfig `yaml:"diagnostic"`
	Launcher        LauncherConfig   `yaml:"launcher"`
}

// CompilerPath resolves the compiler executable.
func (t ToolchainConfig) CompilerPath() string {
	if t.Compiler != "" {
		return t.Compiler
	}
	return filepath.Join(t.Path, "Compiler", "DBPCompiler.exe")
}

// DiagnosticConfig locates the compiler's error message segment.
type DiagnosticConfig struct {
	Kind string `yaml:"kind"` // "shm" or "file"
	Path string `yaml:"path"`
	Size int    `yaml:"size"`
}

// LauncherConfig selects where the compiler and programs run.
type LauncherConfig struct {
	Kind    string   `yaml:"kind"` // "local" or "docker"
	Image   string   `yaml:"image"`
	Command []string `yaml:"command"` // prefix, e.g. ["wine"]
}

// QueueConfig holds job queue settings.
type QueueConfig struct {
	Mode             string  `yaml:"mode"` // "local" or "redis"
	RedisAddr        string  `yaml:"redis_addr"`
	Stream           string  `yaml:"stream"`
	Group            string  `yaml:"group"`
	ResultsChannel   string  `yaml:"results_channel"`
	ResultTimeout    Seconds `yaml:"result_timeout"`
	RecoveryInterval Seconds `yaml:"recovery_interval"`
	MaxIdle          Seconds `yaml:"max_idle"`
}

// WorkerConfig holds cmd/worker settings.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps Level onto slog, falling back to info.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// Seconds is a duration expressed in (possibly fractional) seconds in YAML.
type Seconds float64

// Duration converts to a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8014,
			SignatureHeader: "X-Signature-256",
			MaxBodyBytes:    1 << 20,
			RateLimit: RateLimitConfig{
				Rate:  0.5,
				Burst: 5,
			},
		},
		Toolchain: ToolchainConfig{
			CompilerTimeout: 3,
			ProgramTimeout:  5,
			GraceInterval:   1,
			Encoding:        "utf-8",
			Diagnostic: DiagnosticConfig{
				Kind: "shm",
				Path: "/dev/shm/DBPROEDITORMESSAGE",
				Size: 256,
			},
			Launcher: LauncherConfig{
				Kind: "local",
			},
		},
		Queue: QueueConfig{
			Mode:             "local",
			RedisAddr:        "localhost:6379",
			Stream:           "dbpexec:jobs",
			Group:            "dbpexec:workers",
			ResultsChannel:   "dbpexec:results",
			ResultTimeout:    120,
			RecoveryInterval: 30,
			MaxIdle:          300,
		},
		Worker: WorkerConfig{
			Concurrency: 1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Placeholder returns the config written when no file exists yet.
func Placeholder() Config {
	cfg := Defaults()
	cfg.Toolchain.Path = PlaceholderPath
	return cfg
}
