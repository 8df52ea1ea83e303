//go:build unix

package compiler

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/dontdude/dbpexec/internal/domain"
)

// SharedMemory maps the compiler's named message segment. On Linux the
// segment is a file under /dev/shm; the mapping is created once and kept for
// the life of the process. The segment is never cleared here, so its contents
// are only meaningful right after a compiler run.
type SharedMemory struct {
	path string
	size int

	mu   sync.Mutex
	data []byte
}

var _ domain.DiagnosticChannel = (*SharedMemory)(nil)

// NewSharedMemory returns an unopened channel for the segment at path.
func NewSharedMemory(path string, size int) *SharedMemory {
	if size <= 0 {
		size = DefaultDiagnosticSize
	}
	return &SharedMemory{path: path, size: size}
}

// Open creates the segment if needed and maps it. Existing contents are kept.
func (m *SharedMemory) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data != nil {
		return nil
	}

	f, err := os.OpenFile(m.path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return fmt.Errorf("open shared memory %s: %w", m.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat shared memory %s: %w", m.path, err)
	}
	if info.Size() < int64(m.size) {
		if err := f.Truncate(int64(m.size)); err != nil {
			return fmt.Errorf("size shared memory %s: %w", m.path, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, m.size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap shared memory %s: %w", m.path, err)
	}
	m.data = data
	return nil
}

// Read copies the whole segment.
func (m *SharedMemory) Read() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return nil, fmt.Errorf("shared memory %s is not open", m.path)
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

// Close unmaps the segment. The backing file stays so the compiler can keep using it.
func (m *SharedMemory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}
