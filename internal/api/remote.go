package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dontdude/dbpexec/internal/domain"
	"github.com/google/uuid"
)

// ErrResultTimeout is returned when no worker reported a result in time.
var ErrResultTimeout = errors.New("timed out waiting for a worker result")

// RemoteCompiler hands requests to the worker that owns the toolchain and
// waits for the broadcast result.
type RemoteCompiler struct {
	queue   domain.JobQueue
	hub     *Hub
	timeout time.Duration
}

var _ domain.Compiler = (*RemoteCompiler)(nil)

// NewRemoteCompiler returns a compiler that publishes to queue and collects
// results through hub, giving up after timeout.
func NewRemoteCompiler(queue domain.JobQueue, hub *Hub, timeout time.Duration) *RemoteCompiler {
	return &RemoteCompiler{queue: queue, hub: hub, timeout: timeout}
}

// Compile publishes one job and blocks for its result. The worker already
// applies line-ending conversion.
func (c *RemoteCompiler) Compile(ctx context.Context, req domain.CompileRequest) (domain.CompileResult, error) {
	jobID := uuid.NewString()

	// Watch before publishing so a fast worker cannot beat us.
	results, stop := c.hub.Watch(jobID)
	defer stop()

	if err := c.queue.Publish(ctx, domain.Job{ID: jobID, Code: req.Code}); err != nil {
		return domain.CompileResult{}, fmt.Errorf("submit job: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		return res.Result(), nil
	case <-timer.C:
		return domain.CompileResult{}, fmt.Errorf("job %s: %w", jobID, ErrResultTimeout)
	case <-ctx.Done():
		return domain.CompileResult{}, ctx.Err()
	}
}
