package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dontdude/dbpexec/internal/config"
	"github.com/dontdude/dbpexec/internal/domain"
	"github.com/dontdude/dbpexec/internal/platform/docker"
)

// Toolchain is the process-wide compile service: the serialized pipeline
// plus the singleton resources it holds.
type Toolchain struct {
	*Serializer
	Channel domain.DiagnosticChannel
}

// Close releases the diagnostic channel mapping.
func (t *Toolchain) Close() error {
	return t.Channel.Close()
}

// Setup builds the toolchain described by cfg.
func Setup(ctx context.Context, cfg config.ToolchainConfig, logger *slog.Logger) (*Toolchain, error) {
	if logger == nil {
		logger = slog.Default()
	}

	codec, err := NewCodec(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	channel, err := NewDiagnosticChannel(cfg.Diagnostic.Kind, cfg.Diagnostic.Path, cfg.Diagnostic.Size)
	if err != nil {
		return nil, err
	}
	if err := channel.Open(); err != nil {
		return nil, fmt.Errorf("open diagnostic channel: %w", err)
	}

	launcher, err := newLauncher(ctx, cfg, logger)
	if err != nil {
		channel.Close()
		return nil, err
	}

	compilerPath := cfg.CompilerPath()
	if cfg.Launcher.Kind == "local" {
		if abs, err := filepath.Abs(compilerPath); err == nil {
			compilerPath = abs
		}
	}

	grace := cfg.GraceInterval.Duration()
	pipeline := &Pipeline{
		WorkspaceRoot: cfg.WorkspaceRoot,
		Codec:         codec,
		Invoker: &Invoker{
			Path:     compilerPath,
			Launcher: launcher,
			Channel:  channel,
			Codec:    codec,
			Timeout:  cfg.CompilerTimeout.Duration(),
			Grace:    grace,
			Logger:   logger.With("stage", "compile"),
		},
		Runner: &Runner{
			Launcher: launcher,
			Codec:    codec,
			Timeout:  cfg.ProgramTimeout.Duration(),
			Grace:    grace,
			Logger:   logger.With("stage", "execute"),
		},
		Logger: logger,
	}

	logger.Info("Toolchain ready",
		"compiler", compilerPath,
		"launcher", cfg.Launcher.Kind,
		"diagnostic", cfg.Diagnostic.Path,
		"encoding", codec.Name(),
	)
	return &Toolchain{Serializer: NewSerializer(pipeline, logger), Channel: channel}, nil
}

func newLauncher(ctx context.Context, cfg config.ToolchainConfig, logger *slog.Logger) (domain.Launcher, error) {
	switch cfg.Launcher.Kind {
	case "", "local":
		return &LocalLauncher{Prefix: cfg.Launcher.Command, WaitDelay: cfg.GraceInterval.Duration()}, nil
	case "docker":
		// Workspaces are bound per process; only the toolchain needs a static mount.
		mount := cfg.Path
		if cfg.Compiler != "" {
			mount = filepath.Dir(cfg.Compiler)
		}
		return docker.NewLauncher(ctx, docker.Options{
			Image:   cfg.Launcher.Image,
			Command: cfg.Launcher.Command,
			Mounts:  []string{mount},
			Logger:  logger,
		})
	default:
		return nil, fmt.Errorf("unknown launcher kind %q", cfg.Launcher.Kind)
	}
}
