package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/dontdude/dbpexec/internal/domain"
)

// Options configures the container launcher.
type Options struct {
	// Image runs the toolchain, e.g. a Wine image for a Windows compiler.
	Image string
	// Command is prepended to every process, e.g. ["wine"].
	Command []string
	// Mounts are host paths bound read-only at the same path in the container.
	Mounts []string
	Logger *slog.Logger
}

// Launcher runs each process in its own ephemeral container. The process's
// working directory is bound read-write at the same path, and the container
// shares the host IPC namespace so the compiler's shared memory segment is
// the one this service reads.
type Launcher struct {
	cli    *client.Client
	opts   Options
	logger *slog.Logger
}

// Check if Launcher implements domain.Launcher
var _ domain.Launcher = (*Launcher)(nil)

// NewLauncher connects to the Docker daemon, pings it, and pulls the image.
// An unreachable daemon is reported as an error so the service does not
// start in a broken state (Fail-Fast).
func NewLauncher(ctx context.Context, opts Options) (*Launcher, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to connect to docker daemon: %w", err)
	}

	logger.Info("Pulling image", "image", opts.Image)
	reader, err := cli.ImagePull(ctx, opts.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to pull image: %w", err)
	}
	// Drain the response body to ensure the pull completes properly.
	defer reader.Close()
	io.Copy(io.Discard, reader)

	logger.Info("Docker launcher initialized", "image", opts.Image)
	return &Launcher{cli: cli, opts: opts, logger: logger}, nil
}

// Close releases the docker client.
func (l *Launcher) Close() error {
	return l.cli.Close()
}

// containerSpec builds the container and host configuration for spec.
func containerSpec(opts Options, spec domain.ProcessSpec) (*container.Config, *container.HostConfig) {
	cmd := append(append(append([]string{}, opts.Command...), spec.Path), spec.Args...)

	binds := []string{spec.Dir + ":" + spec.Dir}
	for _, m := range opts.Mounts {
		if m != "" && m != spec.Dir {
			binds = append(binds, m+":"+m+":ro")
		}
	}

	return &container.Config{
			Image:        opts.Image,
			Cmd:          cmd,
			WorkingDir:   spec.Dir,
			AttachStdout: spec.Stdout != nil,
		}, &container.HostConfig{
			Binds:   binds,
			IpcMode: container.IpcMode("host"),
		}
}

// Start creates and starts a container for spec.
func (l *Launcher) Start(ctx context.Context, spec domain.ProcessSpec) (domain.Process, error) {
	cfg, hostCfg := containerSpec(l.opts, spec)

	resp, err := l.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	p := &process{cli: l.cli, id: resp.ID, stdout: spec.Stdout, logger: l.logger}

	if err := l.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.remove()
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	// The wait outlives the start request; it is cancelled on removal.
	waitCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancelWait = cancel
	p.statusCh, p.errCh = l.cli.ContainerWait(waitCtx, resp.ID, container.WaitConditionNotRunning)

	l.logger.Debug("Container started", "containerID", resp.ID, "cmd", cfg.Cmd)
	return p, nil
}

type process struct {
	cli    *client.Client
	id     string
	stdout io.Writer
	logger *slog.Logger

	statusCh   <-chan container.WaitResponse
	errCh      <-chan error
	cancelWait context.CancelFunc

	once   sync.Once
	killed atomic.Bool
}

// Wait blocks until the container stops, copies its stdout, and removes it.
func (p *process) Wait(ctx context.Context) error {
	select {
	case <-p.statusCh:
	case err := <-p.errCh:
		if p.killed.Load() {
			return nil
		}
		p.logger.Error("Container wait failed", "containerID", p.id, "error", err)
	case <-ctx.Done():
		return ctx.Err()
	}
	if p.killed.Load() {
		return nil
	}

	if p.stdout != nil {
		if err := p.copyLogs(ctx); err != nil {
			p.logger.Error("Failed to read container output", "containerID", p.id, "error", err)
		}
	}
	p.remove()
	return nil
}

func (p *process) copyLogs(ctx context.Context) error {
	logs, err := p.cli.ContainerLogs(ctx, p.id, container.LogsOptions{ShowStdout: true})
	if err != nil {
		return err
	}
	defer logs.Close()
	_, err = stdcopy.StdCopy(p.stdout, io.Discard, logs)
	return err
}

// Kill force-removes the container, which stops it with SIGKILL.
func (p *process) Kill() error {
	p.killed.Store(true)
	return p.remove()
}

func (p *process) remove() error {
	var err error
	p.once.Do(func() {
		if p.cancelWait != nil {
			defer p.cancelWait()
		}
		err = p.cli.ContainerRemove(context.Background(), p.id, container.RemoveOptions{Force: true})
		if err != nil {
			err = fmt.Errorf("failed to remove container: %w", err)
		}
	})
	return err
}
