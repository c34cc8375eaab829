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

// AttemptGrader grades a submitted attempt.
type AttemptGrader interface {
	GradeAttempt(ctx context.Context, attemptID uuid.UUID) (*model.TestAttempt, error)
}

// GradingWorker consumes grade_attempts_queue. An attempt whose grading
// keeps failing stays submitted until a teacher regenerates it.
type GradingWorker struct {
	grader AttemptGrader
	rdb    *redis.Client
	log    zerolog.Logger
}

// NewGradingWorker creates a new GradingWorker.
func NewGradingWorker(grader AttemptGrader, rdb *redis.Client, log zerolog.Logger) *GradingWorker {
	return &GradingWorker{
		grader: grader,
		rdb:    rdb,
		log:    log.With().Str("component", "grading_worker").Logger(),
	}
}

// Start runs the worker loop until ctx is cancelled. Call in a goroutine.
func (w *GradingWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")
	consume(ctx, w.rdb, config.WorkerKey.GradeAttemptsQueue, w.log, w.handle)
	w.log.Info().Msg("Worker stopped")
}

func (w *GradingWorker) handle(ctx context.Context, raw string) {
	queue := config.WorkerKey.GradeAttemptsQueue

	var job model.GradeAttemptJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil || job.AttemptID == uuid.Nil {
		w.log.Error().Err(err).Str("payload", raw).Msg("Invalid job payload")
		observe(queue, resultInvalid)
		return
	}

	_, err := w.grader.GradeAttempt(ctx, job.AttemptID)
	result := outcome(err, job.Retries)
	observe(queue, result)

	switch result {
	case resultDropped:
		w.log.Warn().Err(err).Str("attempt_id", job.AttemptID.String()).Msg("Grading job dropped")
	case resultFailed:
		w.log.Error().Err(err).Str("attempt_id", job.AttemptID.String()).Int("retries", job.Retries).
			Msg("Grading failed, attempt left pending")
	case resultRetried:
		w.log.Warn().Err(err).Str("attempt_id", job.AttemptID.String()).Int("retries", job.Retries).Msg("Grading failed, retrying")
		job.Retries++
		requeue(ctx, w.rdb, queue, job, job.Retries, w.log)
	}
}
