package compiler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dontdude/dbpexec/internal/domain"
)

// stuckProcess never exits on its own; Kill makes it exit at once.
type stuckProcess struct {
	mu      sync.Mutex
	dir     string
	kills   int
	waits   int
	killed  time.Time
	exited  chan struct{}
	killErr error
	onKill  func(dir string)
}

func newStuckProcess() *stuckProcess {
	return &stuckProcess{exited: make(chan struct{})}
}

func (p *stuckProcess) Wait(ctx context.Context) error {
	p.mu.Lock()
	p.waits++
	p.mu.Unlock()
	select {
	case <-p.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *stuckProcess) Kill() error {
	p.mu.Lock()
	p.kills++
	first := p.kills == 1
	if first {
		p.killed = time.Now()
		close(p.exited)
	}
	p.mu.Unlock()
	if first && p.onKill != nil {
		p.onKill(p.dir)
	}
	return p.killErr
}

// stuckLauncher hands out one stuckProcess per Start.
type stuckLauncher struct {
	proc *stuckProcess
}

func (l *stuckLauncher) Start(ctx context.Context, spec domain.ProcessSpec) (domain.Process, error) {
	l.proc.dir = spec.Dir
	return l.proc, nil
}

func TestAwaitReleasedWaitsFullGrace(t *testing.T) {
	p := newStuckProcess()

	start := time.Now()
	if err := awaitReleased(p, 100*time.Millisecond); err != nil {
		t.Fatalf("awaitReleased: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 100*time.Millisecond {
		t.Errorf("returned after %v, want at least the grace interval", elapsed)
	}
	if p.kills != 1 {
		t.Errorf("Kill called %d times, want 1", p.kills)
	}
	if p.waits == 0 {
		t.Error("process was never reaped")
	}
}

func TestAwaitReleasedReportsKillError(t *testing.T) {
	p := newStuckProcess()
	p.killErr = errors.New("no such process")

	if err := awaitReleased(p, 10*time.Millisecond); !errors.Is(err, p.killErr) {
		t.Errorf("err = %v, want the kill error", err)
	}
}

func TestPipelineKeepsWorkspaceThroughGrace(t *testing.T) {
	const grace = 200 * time.Millisecond

	codec, err := NewCodec("utf-8")
	if err != nil {
		t.Fatal(err)
	}
	root := t.TempDir()

	var mu sync.Mutex
	var existedAtKill, existedMidGrace bool
	checkedMidGrace := make(chan struct{})
	proc := newStuckProcess()
	proc.onKill = func(dir string) {
		_, err := os.Stat(dir)
		mu.Lock()
		existedAtKill = err == nil
		mu.Unlock()
		go func() {
			defer close(checkedMidGrace)
			time.Sleep(grace / 2)
			_, err := os.Stat(dir)
			mu.Lock()
			existedMidGrace = err == nil
			mu.Unlock()
		}()
	}
	launcher := &stuckLauncher{proc: proc}

	p := &Pipeline{
		WorkspaceRoot: root,
		Codec:         codec,
		Invoker: &Invoker{
			Path:     "compiler.exe",
			Launcher: launcher,
			Channel:  NewFileChannel(filepath.Join(root, "no-diagnostic"), DefaultDiagnosticSize),
			Codec:    codec,
			Timeout:  50 * time.Millisecond,
			Grace:    grace,
			Logger:   quietLogger(),
		},
		Runner: &Runner{Launcher: launcher, Codec: codec, Timeout: time.Second, Grace: grace, Logger: quietLogger()},
		Logger: quietLogger(),
	}

	got := p.Run(context.Background(), "print 1\n")
	returned := time.Now()
	<-checkedMidGrace

	if got.Success {
		t.Fatalf("result = %+v, want a compile timeout", got)
	}
	if proc.kills != 1 {
		t.Errorf("Kill called %d times, want 1", proc.kills)
	}
	if d := returned.Sub(proc.killed); d < grace {
		t.Errorf("workspace released %v after the kill, want at least %v", d, grace)
	}
	mu.Lock()
	defer mu.Unlock()
	if !existedAtKill || !existedMidGrace {
		t.Errorf("workspace removed too early: at kill %v, mid grace %v", existedAtKill, existedMidGrace)
	}
	if _, err := os.Stat(proc.dir); !os.IsNotExist(err) {
		t.Errorf("workspace still present after Run: %v", err)
	}
}
