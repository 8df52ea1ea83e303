package domain

import (
	"context"
	"io"
)

// CompileRequest carries one snippet of source code to be compiled and run.
type CompileRequest struct {
	Code string `json:"code"`
}

// CompileResult is the single outcome of a compile-and-execute run.
// On success Output holds the program's standard output, otherwise a
// human-readable diagnostic.
type CompileResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
}

// Compiler defines the contract for turning a CompileRequest into a CompileResult.
// Implementations either own the toolchain in-process or delegate to a remote worker.
type Compiler interface {
	// Compile returns an error only when no result could be obtained, such as
	// ctx ending first or the job broker being unreachable. Toolchain failures
	// are reported through CompileResult.
	Compile(ctx context.Context, req CompileRequest) (CompileResult, error)
}

// ProcessSpec describes an external process to start.
type ProcessSpec struct {
	Path string
	Args []string
	// Dir is the working directory.
	Dir string
	// Stdout receives the standard output when non-nil.
	Stdout io.Writer
}

// Process is a started external process.
type Process interface {
	// Wait blocks until the process exits (nil, whatever the exit code) or ctx ends (ctx.Err()).
	Wait(ctx context.Context) error
	// Kill force-terminates the process without a cooperative signal.
	Kill() error
}

// Launcher starts external processes, either on the host or inside a container.
type Launcher interface {
	Start(ctx context.Context, spec ProcessSpec) (Process, error)
}

// DiagnosticChannel is the fixed-size region the external compiler writes its
// last error message into.
type DiagnosticChannel interface {
	// Open prepares the channel for reading. It is idempotent.
	Open() error
	// Read returns the raw current contents of the channel.
	Read() ([]byte, error)
	Close() error
}

// Job represents a unit of work submitted through the job queue.
type Job struct {
	ID   string `json:"id"`
	Code string `json:"code"`

	// RawID is the internal Stream ID from Redis (e.g. 1700000-0).
	// We need this to Acknowledge the message later.
	RawID string `json:"-"`
}

// JobResult is the published outcome of a queued job.
type JobResult struct {
	JobID   string `json:"job_id"`
	Success bool   `json:"success"`
	Output  string `json:"output"`
}

// Result converts the job result back into a CompileResult.
func (r JobResult) Result() CompileResult {
	return CompileResult{Success: r.Success, Output: r.Output}
}
