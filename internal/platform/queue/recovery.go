package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/dontdude/dbpexec/internal/domain"
	"github.com/redis/go-redis/v9"
)

// AbandonedMessage is broadcast for jobs a worker claimed but never finished.
const AbandonedMessage = "job abandoned by worker"

// StartRecoveryRoutine polls the PEL for stale jobs and fails them.
// Jobs are not retried: each claimed job gets a failure result and is
// acknowledged so it leaves the PEL.
func (r *RedisQueue) StartRecoveryRoutine(ctx context.Context, interval time.Duration, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Unique consumer ID for the recovery agent
	consumerName := "recovery-agent"

	slog.Info("Starting Redis Recovery Routine", "interval", interval, "maxAge", maxAge)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.recoverStale(ctx, consumerName, maxAge)
		}
	}
}

func (r *RedisQueue) recoverStale(ctx context.Context, consumer string, maxAge time.Duration) {
	start := "-" // Start from beginning of stream

	for {
		// XAUTOCLAIM: Finds messages pending for > maxAge and claims them, 10 at a time.
		messages, nextStart, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   r.stream,
			Group:    r.group,
			MinIdle:  maxAge,
			Start:    start,
			Count:    10,
			Consumer: consumer,
		}).Result()
		if err != nil {
			slog.Error("Recovery routine failed", "error", err)
			return
		}

		if len(messages) > 0 {
			slog.Info("Recovered stale jobs", "count", len(messages))
		}

		for _, msg := range messages {
			job, err := decodeJob(msg)
			if err != nil {
				slog.Warn("Stale message is not a job", "msgID", msg.ID, "error", err)
			} else {
				slog.Warn("Failing stale job", "jobID", job.ID, "msgID", msg.ID)
				result := domain.JobResult{JobID: job.ID, Output: AbandonedMessage}
				if err := r.Broadcast(ctx, result); err != nil {
					slog.Error("Failed to broadcast abandoned job", "jobID", job.ID, "error", err)
				}
			}
			r.client.XAck(ctx, r.stream, r.group, msg.ID)
		}

		start = nextStart
		if len(messages) == 0 || start == "0-0" {
			return
		}
	}
}
