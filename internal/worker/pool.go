package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dontdude/dbpexec/internal/domain"
)

// ResultHandler receives each finished job with its result.
type ResultHandler func(ctx context.Context, job domain.Job, result domain.CompileResult)

// Pool implements a fixed-size worker pool pattern.
// Runs still serialize on the compiler's lock; extra workers only keep the
// next job decoded and waiting.
type Pool struct {
	// workerCount determines how many jobs can be in flight.
	workerCount int
	// tasksCh is the queue for incoming jobs.
	tasksCh chan domain.Job
	// wg tracks active workers to ensure graceful shutdown.
	wg       sync.WaitGroup
	compiler domain.Compiler
	handle   ResultHandler
}

// NewPool initializes the worker pool with a fixed concurrency limit.
func NewPool(concurrency int, compiler domain.Compiler, handle ResultHandler) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		workerCount: concurrency,
		// Buffer the channel to allow non-blocking submission up to a certain point.
		tasksCh:  make(chan domain.Job, concurrency),
		compiler: compiler,
		handle:   handle,
	}
}

// Start spawns the fixed number of worker goroutines.
// It returns immediately.
func (p *Pool) Start(ctx context.Context) {
	slog.Info("Starting worker pool", "concurrency", p.workerCount)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop initiates a graceful shutdown.
// It closes the jobs channel, which signals all workers to finish their current task and exit.
// It blocks until all workers have exited.
func (p *Pool) Stop() {
	slog.Info("Stopping worker pool, waiting for tasks to drain...")
	close(p.tasksCh)
	p.wg.Wait()
	slog.Info("Worker pool stopped")
}

// Submit adds a job to the queue.
// It blocks if the queue (and workers) are fully saturated.
func (p *Pool) Submit(job domain.Job) {
	p.tasksCh <- job
}

// worker is the core logic that runs inside a goroutine.
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	slog.Info("Worker started", "workerID", id)

	// Range over the channel continuously reads jobs until the channel is closed.
	for job := range p.tasksCh {
		slog.Debug("Processing job", "workerID", id, "jobID", job.ID)

		result, err := p.compiler.Compile(ctx, domain.CompileRequest{Code: job.Code})
		if err != nil {
			// Shutting down before the job got the lock; it stays pending
			// and the recovery routine will fail it.
			slog.Warn("Job not run", "workerID", id, "jobID", job.ID, "error", err)
			continue
		}

		p.handle(ctx, job, result)
	}

	slog.Info("Worker stopped", "workerID", id)
}
