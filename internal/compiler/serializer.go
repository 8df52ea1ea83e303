package compiler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dontdude/dbpexec/internal/domain"
	"github.com/dontdude/dbpexec/internal/platform/metrics"
)

// Stage is a single compile-and-execute run. *Pipeline implements it.
type Stage interface {
	Run(ctx context.Context, code string) domain.CompileResult
}

// Serializer guarantees at most one Stage run is in flight. The compiler,
// its output filename and its diagnostic segment are process-wide, so the
// lock covers the whole compile-through-execute sequence.
type Serializer struct {
	// sem is a one-slot semaphore; holding the slot is holding the lock.
	sem    chan struct{}
	stage  Stage
	logger *slog.Logger
}

var _ domain.Compiler = (*Serializer)(nil)

// NewSerializer wraps stage in a fresh exclusive lock.
func NewSerializer(stage Stage, logger *slog.Logger) *Serializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Serializer{
		sem:    make(chan struct{}, 1),
		stage:  stage,
		logger: logger,
	}
}

// Run waits for the lock, runs code, and releases the lock on every exit
// path. It returns an error only if ctx ends while still waiting; once the
// run has started it always completes, whatever happens to ctx.
func (s *Serializer) Run(ctx context.Context, code string) (result domain.CompileResult, err error) {
	metrics.LockWaiters.Inc()
	defer metrics.LockWaiters.Dec()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return domain.CompileResult{}, ctx.Err()
	}
	defer func() { <-s.sem }()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Pipeline run panicked", "panic", r)
			metrics.PipelineRunsTotal.WithLabelValues(metrics.OutcomeError).Inc()
			result = domain.CompileResult{Output: fmt.Sprintf("internal error: %v", r)}
			err = nil
		}
	}()

	return s.stage.Run(context.WithoutCancel(ctx), code), nil
}

// Compile runs req and returns program output LF-only. The workspace writes
// the source with CRLF endings.
func (s *Serializer) Compile(ctx context.Context, req domain.CompileRequest) (domain.CompileResult, error) {
	result, err := s.Run(ctx, req.Code)
	if err != nil {
		return domain.CompileResult{}, err
	}
	result.Output = ToUnix(result.Output)
	return result, nil
}
