package compiler

import (
	"context"
	"log/slog"
	"time"

	"github.com/dontdude/dbpexec/internal/domain"
	"github.com/dontdude/dbpexec/internal/platform/metrics"
)

// Pipeline runs one compile-then-execute attempt. It is not safe for
// concurrent use; wrap it in a Serializer.
type Pipeline struct {
	WorkspaceRoot string
	Codec         *Codec
	Invoker       *Invoker
	Runner        *Runner
	Logger        *slog.Logger
}

// Run takes code through Compiling and, if a binary was produced, Executing.
// The workspace is removed before Run returns, whatever the outcome.
func (p *Pipeline) Run(ctx context.Context, code string) domain.CompileResult {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ws, err := OpenWorkspace(p.WorkspaceRoot, code, p.Codec, logger)
	if err != nil {
		logger.Error("Failed to prepare workspace", "error", err)
		metrics.PipelineRunsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return domain.CompileResult{Output: err.Error()}
	}
	defer ws.Close()

	start := time.Now()
	outcome, diagnostic, err := p.Invoker.Invoke(ctx, ws)
	compileTime := time.Since(start)
	metrics.StageDuration.WithLabelValues("compile").Observe(compileTime.Seconds())

	if err != nil {
		logger.Error("Compiler could not be started", "error", err)
		metrics.PipelineRunsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return domain.CompileResult{Output: err.Error()}
	}

	switch outcome {
	case Failed:
		logger.Info("Compilation failed", "duration", compileTime, "diagnostic", diagnostic)
		metrics.PipelineRunsTotal.WithLabelValues(metrics.OutcomeCompileFailed).Inc()
		return domain.CompileResult{Output: diagnostic}
	case TimedOut:
		logger.Info("Compilation timed out", "duration", compileTime, "diagnostic", diagnostic)
		metrics.PipelineRunsTotal.WithLabelValues(metrics.OutcomeCompileTimeout).Inc()
		return domain.CompileResult{Output: diagnostic}
	}

	start = time.Now()
	ok, output := p.Runner.Run(ctx, ws)
	execTime := time.Since(start)
	metrics.StageDuration.WithLabelValues("execute").Observe(execTime.Seconds())

	if !ok {
		logger.Info("Execution failed", "compile", compileTime, "execute", execTime, "output", output)
		metrics.PipelineRunsTotal.WithLabelValues(metrics.OutcomeExecTimeout).Inc()
		return domain.CompileResult{Output: output}
	}

	logger.Info("Program ran", "compile", compileTime, "execute", execTime, "outputBytes", len(output))
	metrics.PipelineRunsTotal.WithLabelValues(metrics.OutcomeRan).Inc()
	return domain.CompileResult{Success: true, Output: output}
}
