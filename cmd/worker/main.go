package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dontdude/dbpexec/internal/compiler"
	"github.com/dontdude/dbpexec/internal/config"
	"github.com/dontdude/dbpexec/internal/domain"
	"github.com/dontdude/dbpexec/internal/platform/queue"
	"github.com/dontdude/dbpexec/internal/worker"
)

// reportTimeout bounds publishing a result after shutdown has begun.
const reportTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if errors.Is(err, config.ErrConfigCreated) {
		fmt.Fprintf(os.Stderr, "%v\nFill in toolchain.path and restart.\n", err)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 1. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)
	slog.Info("Starting dbpexec worker...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Worker failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.RequireToolchain(); err != nil {
		return err
	}

	// 2. The worker owns the single toolchain instance.
	toolchain, err := compiler.Setup(ctx, cfg.Toolchain, logger)
	if err != nil {
		return err
	}
	defer toolchain.Close()

	// 3. Initialize Redis Queue (Consumer Mode)
	redisQ, err := queue.NewRedisQueue(ctx, queue.Options{
		Addr:           cfg.Queue.RedisAddr,
		Stream:         cfg.Queue.Stream,
		Group:          cfg.Queue.Group,
		ResultsChannel: cfg.Queue.ResultsChannel,
	})
	if err != nil {
		return err
	}
	defer redisQ.Close()

	go redisQ.StartRecoveryRoutine(ctx, cfg.Queue.RecoveryInterval.Duration(), cfg.Queue.MaxIdle.Duration())

	// 4. Report each result, then acknowledge the job so it leaves the PEL.
	report := func(ctx context.Context, job domain.Job, result domain.CompileResult) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
		defer cancel()

		res := domain.JobResult{JobID: job.ID, Success: result.Success, Output: result.Output}
		if err := redisQ.Broadcast(ctx, res); err != nil {
			logger.Error("Failed to broadcast result", "jobID", job.ID, "error", err)
			return
		}
		if err := redisQ.Acknowledge(ctx, job.RawID); err != nil {
			logger.Error("Failed to acknowledge job", "jobID", job.ID, "error", err)
			return
		}
		logger.Info("Job finished", "jobID", job.ID, "success", result.Success)
	}

	pool := worker.NewPool(cfg.Worker.Concurrency, toolchain, report)
	pool.Start(ctx)

	jobs, err := redisQ.Subscribe(ctx)
	if err != nil {
		pool.Stop()
		return fmt.Errorf("subscribe to jobs: %w", err)
	}

	logger.Info("Waiting for jobs", "stream", cfg.Queue.Stream, "group", cfg.Queue.Group)
	// Subscribe closes jobs once ctx is done.
	for job := range jobs {
		pool.Submit(job)
	}

	pool.Stop()
	return nil
}
