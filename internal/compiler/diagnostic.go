package compiler

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dontdude/dbpexec/internal/domain"
)

// DefaultDiagnosticSize is the size of the compiler's message segment.
const DefaultDiagnosticSize = 256

// FileChannel reads the diagnostic from a fixed-path regular file.
// It suits compilers that write their message to a file rather than a
// shared memory segment, and tests.
type FileChannel struct {
	path string
	size int
}

var _ domain.DiagnosticChannel = (*FileChannel)(nil)

// NewFileChannel returns a channel reading at most size bytes from path.
func NewFileChannel(path string, size int) *FileChannel {
	if size <= 0 {
		size = DefaultDiagnosticSize
	}
	return &FileChannel{path: path, size: size}
}

func (c *FileChannel) Open() error { return nil }

func (c *FileChannel) Read() ([]byte, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open diagnostic file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, c.size)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read diagnostic file: %w", err)
	}
	return buf[:n], nil
}

func (c *FileChannel) Close() error { return nil }

// NewDiagnosticChannel builds the channel selected by kind ("shm" or "file").
func NewDiagnosticChannel(kind, path string, size int) (domain.DiagnosticChannel, error) {
	switch kind {
	case "shm":
		return NewSharedMemory(path, size), nil
	case "file":
		return NewFileChannel(path, size), nil
	default:
		return nil, fmt.Errorf("unknown diagnostic channel kind %q", kind)
	}
}

// readDiagnostic returns the channel's message with CR, LF and NUL padding
// removed, decoded with codec (UTF-8 when nil). Read failures are folded
// into the message so the caller always has something to report.
func readDiagnostic(ch domain.DiagnosticChannel, codec *Codec) string {
	raw, err := ch.Read()
	if err != nil {
		return fmt.Sprintf("failed to read compiler diagnostic: %v", err)
	}
	msg := trimDiagnostic(raw)
	if codec == nil {
		return strings.ToValidUTF8(string(msg), "\uFFFD")
	}
	return codec.Decode(msg)
}

func trimDiagnostic(raw []byte) []byte {
	return bytes.Trim(raw, "\r\n\x00")
}
