package compiler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dontdude/dbpexec/internal/domain"
)

// Runner executes a compiled binary and captures its standard output.
type Runner struct {
	Launcher domain.Launcher
	Codec    *Codec
	Timeout  time.Duration
	Grace    time.Duration
	Logger   *slog.Logger
}

// TimeoutMessage is reported when a program outlives timeout.
func TimeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("Executable didn't terminate after %ss", strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64))
}

// Run starts the workspace binary. ok is false when the program could not be
// started or did not exit within the timeout; output then carries the reason.
// The program's exit code does not affect ok.
func (r *Runner) Run(ctx context.Context, ws *Workspace) (ok bool, output string) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var stdout bytes.Buffer
	proc, err := r.Launcher.Start(ctx, domain.ProcessSpec{
		Path:   ws.BinaryPath(),
		Dir:    ws.Dir,
		Stdout: &stdout,
	})
	if err != nil {
		logger.Error("Failed to start executable", "dir", ws.Dir, "error", err)
		return false, fmt.Sprintf("failed to start executable: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	if err := proc.Wait(waitCtx); err != nil {
		logger.Warn("Executable did not exit in time, killing it", "timeout", r.Timeout, "dir", ws.Dir)
		if kerr := awaitReleased(proc, r.Grace); kerr != nil {
			logger.Error("Failed to kill executable", "error", kerr)
		}
		return false, TimeoutMessage(r.Timeout)
	}

	return true, r.Codec.Decode(stdout.Bytes())
}
