package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dontdude/dbpexec/internal/domain"
)

// Outcome is the result of one compiler invocation.
type Outcome int

const (
	Compiled Outcome = iota
	Failed
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Compiled:
		return "compiled"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ErrCompilerStart is returned when the compiler process could not be launched.
var ErrCompilerStart = errors.New("failed to start compiler")

// Invoker runs the external compiler against a workspace.
type Invoker struct {
	Path     string
	Launcher domain.Launcher
	Channel  domain.DiagnosticChannel
	// Codec decodes the diagnostic; the compiler writes it in the toolchain encoding.
	Codec    *Codec
	Timeout  time.Duration
	Grace    time.Duration
	Logger   *slog.Logger
}

// Invoke compiles the workspace source. The returned diagnostic is set for
// Failed and TimedOut. Under TimedOut it may be empty or left over from an
// earlier run, since the killed compiler may not have written anything.
func (i *Invoker) Invoke(ctx context.Context, ws *Workspace) (Outcome, string, error) {
	logger := i.logger()

	if err := i.Channel.Open(); err != nil {
		logger.Warn("Diagnostic channel unavailable", "error", err)
	}

	proc, err := i.Launcher.Start(ctx, domain.ProcessSpec{
		Path: i.Path,
		Args: []string{SourceName},
		Dir:  ws.Dir,
	})
	if err != nil {
		return Failed, "", fmt.Errorf("%w: %w", ErrCompilerStart, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, i.Timeout)
	defer cancel()

	if err := proc.Wait(waitCtx); err != nil {
		logger.Warn("Compiler did not exit in time, killing it", "timeout", i.Timeout, "dir", ws.Dir)
		if kerr := awaitReleased(proc, i.Grace); kerr != nil {
			logger.Error("Failed to kill compiler", "error", kerr)
		}
		return TimedOut, readDiagnostic(i.Channel, i.Codec), nil
	}

	if ws.HasBinary() {
		return Compiled, "", nil
	}
	return Failed, readDiagnostic(i.Channel, i.Codec), nil
}

func (i *Invoker) logger() *slog.Logger {
	if i.Logger != nil {
		return i.Logger
	}
	return slog.Default()
}
