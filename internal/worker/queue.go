package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/apperror"
	"github.com/umadex/umadex-backend/internal/metrics"
)

const (
	PollTimeout = 1 * time.Second // Must be >= 1s to satisfy Redis
	MaxRetries  = 3
	// JobTimeout bounds one job, including the AI calls it makes.
	JobTimeout = 3 * time.Minute
	retryDelay = 5 * time.Second
	// pushTimeout bounds the RPush of a requeued job.
	pushTimeout = 5 * time.Second
)

// Job outcomes, used as the metrics result label.
const (
	resultOK      = "ok"
	resultRetried = "retried"
	resultDropped = "dropped"
	resultFailed  = "failed"
	resultInvalid = "invalid"
)

// outcome decides what happens to a job that returned err after retries
// earlier attempts. Only unclassified and conflict errors are retried.
func outcome(err error, retries int) string {
	if err == nil {
		return resultOK
	}
	switch apperror.KindOf(err) {
	case apperror.KindInternal, apperror.KindConflict:
	default:
		return resultDropped
	}
	if retries >= MaxRetries {
		return resultFailed
	}
	return resultRetried
}

// consume pops raw jobs from queue and hands them to handle until ctx is
// cancelled. A job already popped runs to completion on a detached context.
func consume(ctx context.Context, rdb *redis.Client, queue string, log zerolog.Logger, handle func(ctx context.Context, raw string)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, err := rdb.BLPop(ctx, PollTimeout, queue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				log.Error().Err(err).Msg("BLPop error")
				sleepCtx(ctx, time.Second)
			}
			continue
		}
		if len(item) < 2 {
			continue
		}

		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), JobTimeout)
		handle(jobCtx, item[1])
		cancel()
	}
}

// requeue pushes job back after a backoff proportional to its retries. It
// runs detached from ctx, which may already be spent by the failed job.
func requeue(ctx context.Context, rdb redis.Cmdable, queue string, job any, retries int, log zerolog.Logger) {
	ctx = context.WithoutCancel(ctx)
	sleepCtx(ctx, time.Duration(retries)*retryDelay)
	raw, err := json.Marshal(job)
	if err != nil {
		log.Error().Err(err).Msg("Marshal error, job lost")
		return
	}
	pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()
	if err := rdb.RPush(pushCtx, queue, raw).Err(); err != nil {
		log.Error().Err(err).Str("payload", string(raw)).Msg("Requeue failed, job lost")
	}
}

func observe(queue, result string) {
	metrics.WorkerJobs.WithLabelValues(queue, result).Inc()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
