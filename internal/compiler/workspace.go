package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Fixed names the toolchain expects inside a workspace.
const (
	SourceName = "source.dba"
	BinaryName = "default.exe"
)

// ErrWorkspace wraps failures to prepare a workspace.
var ErrWorkspace = errors.New("workspace")

// Workspace is an ephemeral directory holding one run's source and binary.
type Workspace struct {
	Dir string

	logger *slog.Logger
	closed bool
}

// OpenWorkspace creates a unique directory under root (the OS temp dir when
// empty) and writes code into SourceName with CRLF line endings.
func OpenWorkspace(root, code string, codec *Codec, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir, err := os.MkdirTemp(root, "dbpexec-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create dir: %w", ErrWorkspace, err)
	}
	ws := &Workspace{Dir: dir, logger: logger}

	src, err := codec.Encode(ToDOS(code))
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("%w: %w", ErrWorkspace, err)
	}
	if err := os.WriteFile(ws.SourcePath(), src, 0o644); err != nil {
		ws.Close()
		return nil, fmt.Errorf("%w: write source: %w", ErrWorkspace, err)
	}
	return ws, nil
}

// SourcePath is the absolute path of the source file.
func (w *Workspace) SourcePath() string { return filepath.Join(w.Dir, SourceName) }

// BinaryPath is where the compiler leaves the executable.
func (w *Workspace) BinaryPath() string { return filepath.Join(w.Dir, BinaryName) }

// HasBinary reports whether the compiler produced an executable.
func (w *Workspace) HasBinary() bool {
	info, err := os.Stat(w.BinaryPath())
	return err == nil && info.Mode().IsRegular()
}

// Close removes the directory recursively. It is safe to call more than once.
func (w *Workspace) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := os.RemoveAll(w.Dir); err != nil {
		w.logger.Error("Failed to remove workspace", "dir", w.Dir, "error", err)
		return fmt.Errorf("%w: remove %s: %w", ErrWorkspace, w.Dir, err)
	}
	return nil
}
