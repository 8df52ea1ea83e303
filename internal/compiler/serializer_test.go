package compiler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dontdude/dbpexec/internal/domain"
)

type stageFunc func(ctx context.Context, code string) domain.CompileResult

func (f stageFunc) Run(ctx context.Context, code string) domain.CompileResult { return f(ctx, code) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSerializerRunsOneAtATime(t *testing.T) {
	var active, maxActive atomic.Int32
	stage := stageFunc(func(ctx context.Context, code string) domain.CompileResult {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return domain.CompileResult{Success: true, Output: code}
	})
	s := NewSerializer(stage, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Run(context.Background(), "x")
			if err != nil || !res.Success {
				t.Errorf("Run = %+v, %v", res, err)
			}
		}()
	}
	wg.Wait()

	if got := maxActive.Load(); got != 1 {
		t.Errorf("max concurrent runs = %d, want 1", got)
	}
}

func TestSerializerRecoversPanic(t *testing.T) {
	calls := 0
	stage := stageFunc(func(ctx context.Context, code string) domain.CompileResult {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return domain.CompileResult{Success: true, Output: "ok"}
	})
	s := NewSerializer(stage, quietLogger())

	res, err := s.Run(context.Background(), "x")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success || res.Output != "internal error: boom" {
		t.Errorf("panic result = %+v", res)
	}

	// The lock was released.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err = s.Run(ctx, "x")
	if err != nil || !res.Success {
		t.Errorf("second Run = %+v, %v", res, err)
	}
}

func TestSerializerCancelledWhileQueued(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	stage := stageFunc(func(ctx context.Context, code string) domain.CompileResult {
		close(started)
		<-release
		return domain.CompileResult{Success: true}
	})
	s := NewSerializer(stage, quietLogger())

	go s.Run(context.Background(), "holder")
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Run(ctx, "waiter"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("queued Run error = %v, want deadline exceeded", err)
	}
	close(release)
}

func TestSerializerRunIgnoresCancellationOnceStarted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stage := stageFunc(func(runCtx context.Context, code string) domain.CompileResult {
		cancel()
		if runCtx.Err() != nil {
			return domain.CompileResult{Output: "cancelled"}
		}
		return domain.CompileResult{Success: true, Output: "finished"}
	})
	s := NewSerializer(stage, quietLogger())

	res, err := s.Run(ctx, "x")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Errorf("result = %+v, want the run to finish", res)
	}
}

func TestSerializerCompileNormalizesOutput(t *testing.T) {
	var got string
	stage := stageFunc(func(ctx context.Context, code string) domain.CompileResult {
		got = code
		return domain.CompileResult{Success: true, Output: "a\r\nb\r\n"}
	})
	s := NewSerializer(stage, quietLogger())

	res, err := s.Compile(context.Background(), domain.CompileRequest{Code: "x\ny\n"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	// Source conversion belongs to the workspace, so the stage sees the request as sent.
	if got != "x\ny\n" {
		t.Errorf("stage saw %q", got)
	}
	if res.Output != "a\nb\n" {
		t.Errorf("output = %q", res.Output)
	}
}
