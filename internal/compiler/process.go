package compiler

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/dontdude/dbpexec/internal/domain"
)

// LocalLauncher starts processes directly on the host.
type LocalLauncher struct {
	// Prefix is prepended to every command, e.g. ["wine"].
	Prefix []string
	// WaitDelay bounds how long Wait keeps copying output after the process
	// has exited, in case a descendant still holds the pipe open.
	WaitDelay time.Duration
}

var _ domain.Launcher = (*LocalLauncher)(nil)

// Start launches the process. The context is not tied to the process
// lifetime; callers enforce timeouts through Process.Wait and Process.Kill.
func (l *LocalLauncher) Start(_ context.Context, spec domain.ProcessSpec) (domain.Process, error) {
	name, args := spec.Path, spec.Args
	if len(l.Prefix) > 0 {
		name = l.Prefix[0]
		args = append(append(append([]string{}, l.Prefix[1:]...), spec.Path), spec.Args...)
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = spec.Stdout
	cmd.WaitDelay = l.WaitDelay

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Path, err)
	}

	p := &localProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		// A non-zero exit is not an error here; only the exit itself matters.
		_ = cmd.Wait()
	}()
	return p, nil
}

type localProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *localProcess) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *localProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return p.cmd.Process.Kill()
}

// awaitReleased force-terminates p and then waits the full grace interval so
// the OS can release the process's file handles before the workspace is
// removed. The process is reaped during the interval when possible.
func awaitReleased(p domain.Process, grace time.Duration) error {
	killErr := p.Kill()

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	_ = p.Wait(ctx)
	<-ctx.Done()

	return killErr
}
