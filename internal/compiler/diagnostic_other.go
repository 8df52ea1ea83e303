//go:build !unix

package compiler

import (
	"errors"

	"github.com/dontdude/dbpexec/internal/domain"
)

// SharedMemory is only available on unix hosts; elsewhere use the file channel.
type SharedMemory struct {
	path string
}

var _ domain.DiagnosticChannel = (*SharedMemory)(nil)

func NewSharedMemory(path string, size int) *SharedMemory {
	return &SharedMemory{path: path}
}

var errNoSharedMemory = errors.New("shared memory diagnostic channel is not supported on this platform")

func (m *SharedMemory) Open() error           { return errNoSharedMemory }
func (m *SharedMemory) Read() ([]byte, error) { return nil, errNoSharedMemory }
func (m *SharedMemory) Close() error          { return nil }
