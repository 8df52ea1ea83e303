package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for consistency.
// It returns all problems joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.Secret != "" && c.Server.SignatureHeader == "" {
		errs = append(errs, errors.New("server.signature_header is required when server.secret is set"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.Rate <= 0 || c.Server.RateLimit.Burst < 1) {
		errs = append(errs, errors.New("server.rate_limit needs rate > 0 and burst >= 1"))
	}

	t := c.Toolchain
	if t.CompilerTimeout <= 0 {
		errs = append(errs, errors.New("toolchain.compiler_timeout must be positive"))
	}
	if t.ProgramTimeout <= 0 {
		errs = append(errs, errors.New("toolchain.program_timeout must be positive"))
	}
	if t.GraceInterval < 0 {
		errs = append(errs, errors.New("toolchain.grace_interval must not be negative"))
	}
	switch t.Diagnostic.Kind {
	case "shm", "file":
	default:
		errs = append(errs, fmt.Errorf("toolchain.diagnostic.kind must be shm or file, got %q", t.Diagnostic.Kind))
	}
	if t.Diagnostic.Path == "" {
		errs = append(errs, errors.New("toolchain.diagnostic.path is required"))
	}
	if t.Diagnostic.Size <= 0 {
		errs = append(errs, errors.New("toolchain.diagnostic.size must be positive"))
	}
	switch t.Launcher.Kind {
	case "local":
	case "docker":
		if t.Launcher.Image == "" {
			errs = append(errs, errors.New("toolchain.launcher.image is required for the docker launcher"))
		}
	default:
		errs = append(errs, fmt.Errorf("toolchain.launcher.kind must be local or docker, got %q", t.Launcher.Kind))
	}

	switch c.Queue.Mode {
	case "local":
	case "redis":
		if c.Queue.RedisAddr == "" || c.Queue.Stream == "" || c.Queue.Group == "" || c.Queue.ResultsChannel == "" {
			errs = append(errs, errors.New("queue.redis_addr, stream, group and results_channel are required in redis mode"))
		}
		if c.Queue.ResultTimeout <= 0 {
			errs = append(errs, errors.New("queue.result_timeout must be positive"))
		}
		if c.Queue.RecoveryInterval <= 0 {
			errs = append(errs, errors.New("queue.recovery_interval must be positive"))
		}
		if c.Queue.MaxIdle <= 0 {
			errs = append(errs, errors.New("queue.max_idle must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("queue.mode must be local or redis, got %q", c.Queue.Mode))
	}

	if c.Worker.Concurrency < 0 {
		errs = append(errs, errors.New("worker.concurrency must not be negative"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

// RequireToolchain reports whether the toolchain location has been configured.
// Only processes that run the compiler call it.
func (c *Config) RequireToolchain() error {
	t := c.Toolchain
	if t.Compiler == "" && (t.Path == "" || t.Path == PlaceholderPath) {
		return errors.New("toolchain.path must point at the toolchain root")
	}
	return nil
}
