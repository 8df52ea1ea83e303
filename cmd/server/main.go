package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dontdude/dbpexec/internal/api"
	"github.com/dontdude/dbpexec/internal/compiler"
	"github.com/dontdude/dbpexec/internal/config"
	"github.com/dontdude/dbpexec/internal/platform/queue"
	"github.com/dontdude/dbpexec/internal/platform/web"
)

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

	// 1. Initialize logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	opts := api.Options{
		Mode:            cfg.Queue.Mode,
		Secret:          cfg.Server.Secret,
		SignatureHeader: cfg.Server.SignatureHeader,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		Logger:          logger,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}

	// 2. Compile backend: the toolchain in-process, or a worker over Redis.
	switch cfg.Queue.Mode {
	case "redis":
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

		results, err := redisQ.SubscribeLogs(ctx)
		if err != nil {
			return fmt.Errorf("subscribe to results: %w", err)
		}
		hub := api.NewHub(cfg.Queue.ResultTimeout.Duration())
		go hub.Run(ctx, results)

		opts.Queue = redisQ
		opts.Hub = hub
		opts.Compiler = api.NewRemoteCompiler(redisQ, hub, cfg.Queue.ResultTimeout.Duration())
		logger.Info("Delegating compiles to workers", "redis", cfg.Queue.RedisAddr, "stream", cfg.Queue.Stream)
	default:
		if err := cfg.RequireToolchain(); err != nil {
			return err
		}
		toolchain, err := compiler.Setup(ctx, cfg.Toolchain, logger)
		if err != nil {
			return err
		}
		defer toolchain.Close()
		opts.Compiler = toolchain
	}

	// 3. Rate limiter (optional)
	if cfg.Server.RateLimit.Enabled {
		limiter := web.NewRateLimiter(ctx, cfg.Server.RateLimit.Rate, cfg.Server.RateLimit.Burst)
		if err := limiter.TrustProxies(cfg.Server.RateLimit.TrustedProxies); err != nil {
			return fmt.Errorf("server.rate_limit: %w", err)
		}
		opts.RateLimiter = limiter
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewServer(opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server starting", "addr", srv.Addr, "mode", cfg.Queue.Mode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
