package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileBootstrapsPlaceholder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := Load(path)
	if !errors.Is(err, ErrConfigCreated) {
		t.Fatalf("expected ErrConfigCreated, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("placeholder not written: %v", err)
	}
	if !strings.Contains(string(data), PlaceholderPath) {
		t.Errorf("placeholder file does not mention toolchain path:\n%s", data)
	}

	// The bootstrapped file loads but still lacks a real toolchain.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading placeholder: %v", err)
	}
	if err := cfg.RequireToolchain(); err == nil {
		t.Error("expected RequireToolchain to reject the placeholder path")
	}
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  secret: s3cret
toolchain:
  path: /opt/dbpro
  compiler_timeout: 2.5
  program_timeout: 7
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host default lost: %q", cfg.Server.Host)
	}
	if got := cfg.Toolchain.CompilerTimeout.Duration(); got != 2500*time.Millisecond {
		t.Errorf("compiler timeout = %v", got)
	}
	if got := cfg.Toolchain.ProgramTimeout.Duration(); got != 7*time.Second {
		t.Errorf("program timeout = %v", got)
	}
	if got, want := cfg.Toolchain.CompilerPath(), filepath.Join("/opt/dbpro", "Compiler", "DBPCompiler.exe"); got != want {
		t.Errorf("compiler path = %q, want %q", got, want)
	}
	if err := cfg.RequireToolchain(); err != nil {
		t.Errorf("RequireToolchain: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "toolchain:\n  path: /opt/dbpro\n")
	t.Setenv("DBPEXEC_PORT", "8100")
	t.Setenv("DBPEXEC_PROGRAM_TIMEOUT", "9")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8100 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Toolchain.ProgramTimeout != 9 {
		t.Errorf("program timeout = %v", cfg.Toolchain.ProgramTimeout)
	}
	if cfg.Queue.RedisAddr != "redis:6380" {
		t.Errorf("redis addr = %q", cfg.Queue.RedisAddr)
	}
}

func TestDiscover(t *testing.T) {
	t.Setenv("DBPEXEC_CONFIG", "")
	if got := Discover(""); got != DefaultPath {
		t.Errorf("Discover() = %q", got)
	}
	t.Setenv("DBPEXEC_CONFIG", "/etc/dbpexec.yaml")
	if got := Discover(""); got != "/etc/dbpexec.yaml" {
		t.Errorf("Discover() with env = %q", got)
	}
	if got := Discover("explicit.yaml"); got != "explicit.yaml" {
		t.Errorf("Discover(explicit) = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"zero compiler timeout", func(c *Config) { c.Toolchain.CompilerTimeout = 0 }, "compiler_timeout"},
		{"negative grace", func(c *Config) { c.Toolchain.GraceInterval = -1 }, "grace_interval"},
		{"unknown diagnostic", func(c *Config) { c.Toolchain.Diagnostic.Kind = "pipe" }, "diagnostic.kind"},
		{"docker without image", func(c *Config) { c.Toolchain.Launcher.Kind = "docker" }, "launcher.image"},
		{"unknown queue", func(c *Config) { c.Queue.Mode = "kafka" }, "queue.mode"},
		{"redis defaults", func(c *Config) { c.Queue.Mode = "redis" }, ""},
		{"redis without stream", func(c *Config) { c.Queue.Mode = "redis"; c.Queue.Stream = "" }, "redis mode"},
		{"redis zero recovery interval", func(c *Config) { c.Queue.Mode = "redis"; c.Queue.RecoveryInterval = 0 }, "recovery_interval"},
		{"redis negative max idle", func(c *Config) { c.Queue.Mode = "redis"; c.Queue.MaxIdle = -1 }, "max_idle"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "queue:6379")
	cfg := FromEnv()
	if cfg.Queue.RedisAddr != "queue:6379" {
		t.Errorf("redis addr = %q", cfg.Queue.RedisAddr)
	}
	if cfg.Queue.Stream != Defaults().Queue.Stream {
		t.Errorf("stream = %q, want default", cfg.Queue.Stream)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := (LogConfig{Level: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
