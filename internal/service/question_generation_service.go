package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/apperror"
	"github.com/umadex/umadex-backend/internal/config"
	"github.com/umadex/umadex-backend/internal/database"
	"github.com/umadex/umadex-backend/internal/evaluator"
	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/repository"
	"github.com/umadex/umadex-backend/internal/rubric"
)

// staleGenerationAfter is how long a generation task may stay unfinished
// before a new trigger fails it.
const staleGenerationAfter = 15 * time.Minute

// QuestionGenerator is the part of the evaluation gateway that writes tests.
type QuestionGenerator interface {
	GenerateTestQuestions(ctx context.Context, r evaluator.TestQuestionsRequest) ([]evaluator.TestQuestion, error)
}

// QuestionGenerationService queues and runs AI generation of a test's
// questions. Progress is tracked in a generation log for polling.
type QuestionGenerationService struct {
	pool      *pgxpool.Pool
	testRepo  *repository.TestRepository
	generator QuestionGenerator
	rdb       *redis.Client
	log       zerolog.Logger
	now       func() time.Time
}

// NewQuestionGenerationService creates a new QuestionGenerationService.
func NewQuestionGenerationService(
	pool *pgxpool.Pool,
	testRepo *repository.TestRepository,
	generator QuestionGenerator,
	rdb *redis.Client,
	log zerolog.Logger,
) *QuestionGenerationService {
	return &QuestionGenerationService{
		pool:      pool,
		testRepo:  testRepo,
		generator: generator,
		rdb:       rdb,
		log:       log.With().Str("component", "question_generation").Logger(),
		now:       time.Now,
	}
}

// Trigger queues generation for a draft test owned by teacherID.
func (s *QuestionGenerationService) Trigger(ctx context.Context, teacherID, testID uuid.UUID) (*model.GenerationLog, error) {
	t, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	if t.TeacherID != teacherID {
		return nil, ErrNotOwner
	}
	if t.Status == model.TestStatusPublished {
		return nil, ErrTestPublished
	}

	expired, err := s.testRepo.ExpireStaleGenerations(ctx, testID, s.now().Add(-staleGenerationAfter))
	if err != nil {
		return nil, fmt.Errorf("expire stale generations: %w", err)
	}
	if expired > 0 {
		s.log.Warn().Str("test_id", testID.String()).Int64("count", expired).Msg("Expired stale generation tasks")
	}

	l, err := s.testRepo.CreateGenerationLog(ctx, testID, teacherID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrGenerationRunning
		}
		return nil, fmt.Errorf("create generation log: %w", err)
	}

	raw, err := json.Marshal(model.GenerateQuestionsJob{LogID: l.ID, TestID: testID})
	if err != nil {
		return nil, err
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.GenerateQuestionsQueue, raw).Err(); err != nil {
		msg := "could not queue generation"
		if ferr := s.testRepo.FinishGeneration(ctx, l.ID, model.GenerationFailed, 0, &msg); ferr != nil {
			s.log.Error().Err(ferr).Str("log_id", l.ID.String()).Msg("Failed to mark generation failed")
		}
		return nil, fmt.Errorf("queue generation: %w", err)
	}

	s.log.Info().Str("test_id", testID.String()).Str("log_id", l.ID.String()).Msg("Question generation queued")
	return l, nil
}

// GetGenerationLog returns a generation task of a test owned by teacherID.
func (s *QuestionGenerationService) GetGenerationLog(ctx context.Context, teacherID, logID uuid.UUID) (*model.GenerationLog, error) {
	l, err := s.testRepo.GetGenerationLog(ctx, logID)
	if err != nil {
		return nil, err
	}
	t, err := s.testRepo.GetByID(ctx, l.TestID)
	if err != nil {
		return nil, err
	}
	if t.TeacherID != teacherID {
		return nil, ErrNotOwner
	}
	return l, nil
}

// Run executes a queued task. A task already picked up by another worker
// is skipped. Once the task is claimed every failure is recorded on the log
// and only an error writing the log itself is returned.
func (s *QuestionGenerationService) Run(ctx context.Context, job model.GenerateQuestionsJob) error {
	ok, err := s.testRepo.MarkGenerationProcessing(ctx, job.LogID)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if !ok {
		s.log.Debug().Str("log_id", job.LogID.String()).Msg("Generation task already taken")
		return nil
	}

	t, err := s.testRepo.GetByID(ctx, job.TestID)
	if errors.Is(err, apperror.ErrNotFound) {
		return s.fail(ctx, job, "test no longer exists")
	}
	if err != nil {
		s.log.Error().Err(err).Str("test_id", job.TestID.String()).Msg("Failed to load test for generation")
		return s.fail(ctx, job, "internal error")
	}

	generated, err := s.generator.GenerateTestQuestions(ctx, evaluator.TestQuestionsRequest{
		Title:   t.Title,
		Content: t.Content,
		Count:   rubric.QuestionsPerTest,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("test_id", t.ID.String()).Msg("Question generation failed")
		return s.fail(ctx, job, "the question generator is unavailable, try again later")
	}

	questions := make([]model.TestQuestion, len(generated))
	for i, q := range generated {
		questions[i] = model.TestQuestion{TestID: t.ID, Index: i, Question: q.Question, AnswerKey: q.AnswerKey}
	}

	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := s.testRepo.WithTx(tx)
		current, err := repo.GetByID(ctx, t.ID)
		if err != nil {
			return err
		}
		if current.Status == model.TestStatusPublished {
			return ErrTestPublished
		}
		if err := repo.ReplaceQuestions(ctx, t.ID, questions); err != nil {
			return err
		}
		return repo.FinishGeneration(ctx, job.LogID, model.GenerationCompleted, len(questions), nil)
	})
	if errors.Is(err, ErrTestPublished) {
		return s.fail(ctx, job, "the test was published while generating")
	}
	if err != nil {
		s.log.Error().Err(err).Str("test_id", t.ID.String()).Msg("Failed to store generated questions")
		return s.fail(ctx, job, "internal error")
	}

	s.log.Info().Str("test_id", t.ID.String()).Int("count", len(questions)).Msg("Questions generated")
	return nil
}

func (s *QuestionGenerationService) fail(ctx context.Context, job model.GenerateQuestionsJob, reason string) error {
	if err := s.testRepo.FinishGeneration(ctx, job.LogID, model.GenerationFailed, 0, &reason); err != nil {
		return fmt.Errorf("mark generation failed: %w", err)
	}
	return nil
}
