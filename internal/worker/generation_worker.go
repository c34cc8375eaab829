package worker

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/config"
	"github.com/umadex/umadex-backend/internal/model"
)

// QuestionGenerationRunner executes one queued generation task.
type QuestionGenerationRunner interface {
	Run(ctx context.Context, job model.GenerateQuestionsJob) error
}

// GenerationWorker consumes generate_questions_queue.
type GenerationWorker struct {
	runner QuestionGenerationRunner
	rdb    *redis.Client
	log    zerolog.Logger
}

// NewGenerationWorker creates a new GenerationWorker.
func NewGenerationWorker(runner QuestionGenerationRunner, rdb *redis.Client, log zerolog.Logger) *GenerationWorker {
	return &GenerationWorker{
		runner: runner,
		rdb:    rdb,
		log:    log.With().Str("component", "generation_worker").Logger(),
	}
}

// Start runs the worker loop until ctx is cancelled. Call in a goroutine.
func (w *GenerationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")
	consume(ctx, w.rdb, config.WorkerKey.GenerateQuestionsQueue, w.log, w.handle)
	w.log.Info().Msg("Worker stopped")
}

func (w *GenerationWorker) handle(ctx context.Context, raw string) {
	queue := config.WorkerKey.GenerateQuestionsQueue

	var job model.GenerateQuestionsJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil || job.LogID == uuid.Nil {
		w.log.Error().Err(err).Str("payload", raw).Msg("Invalid job payload")
		observe(queue, resultInvalid)
		return
	}

	err := w.runner.Run(ctx, job)
	result := outcome(err, job.Retries)
	observe(queue, result)

	if result == resultRetried {
		w.log.Warn().Err(err).Str("log_id", job.LogID.String()).Int("retries", job.Retries).Msg("Generation failed, retrying")
		job.Retries++
		requeue(ctx, w.rdb, queue, job, job.Retries, w.log)
		return
	}
	if err != nil {
		w.log.Error().Err(err).Str("log_id", job.LogID.String()).Str("result", result).Msg("Generation job abandoned")
	}
}
