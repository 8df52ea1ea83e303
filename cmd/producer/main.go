package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/dontdude/dbpexec/internal/config"
	"github.com/dontdude/dbpexec/internal/domain"
	"github.com/dontdude/dbpexec/internal/platform/queue"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] source.dba...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// 1. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// Publishing needs only the queue settings, so a config file is optional.
	cfg := config.FromEnv()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("Failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// 2. Initialize Redis Queue (Producer Mode)
	ctx := context.Background()
	redisQ, err := queue.NewRedisQueue(ctx, queue.Options{
		Addr:           cfg.Queue.RedisAddr,
		Stream:         cfg.Queue.Stream,
		Group:          cfg.Queue.Group,
		ResultsChannel: cfg.Queue.ResultsChannel,
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisQ.Close()

	// 3. Publish one job per source file; job IDs go to stdout.
	for _, path := range flag.Args() {
		code, err := os.ReadFile(path)
		if err != nil {
			slog.Error("Failed to read source", "path", path, "error", err)
			os.Exit(1)
		}

		job := domain.Job{ID: uuid.NewString(), Code: string(code)}
		slog.Info("Publishing job", "jobID", job.ID, "path", path)
		if err := redisQ.Publish(ctx, job); err != nil {
			slog.Error("Failed to publish job", "error", err)
			os.Exit(1)
		}
		fmt.Println(job.ID)
	}

	slog.Info("Successfully published jobs", "count", flag.NArg())
}
