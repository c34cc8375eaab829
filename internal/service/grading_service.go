package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/apperror"
	"github.com/umadex/umadex-backend/internal/database"
	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/repository"
	"github.com/umadex/umadex-backend/internal/scoring"
)

// GradingService evaluates submitted attempts and applies teacher overrides.
type GradingService struct {
	pool        *pgxpool.Pool
	testRepo    *repository.TestRepository
	attemptRepo *repository.AttemptRepository
	engine      *scoring.Engine
	monitorSvc  *MonitorService
	log         zerolog.Logger
	now         func() time.Time
}

// NewGradingService creates a new GradingService.
func NewGradingService(
	pool *pgxpool.Pool,
	testRepo *repository.TestRepository,
	attemptRepo *repository.AttemptRepository,
	engine *scoring.Engine,
	monitorSvc *MonitorService,
	log zerolog.Logger,
) *GradingService {
	return &GradingService{
		pool:        pool,
		testRepo:    testRepo,
		attemptRepo: attemptRepo,
		engine:      engine,
		monitorSvc:  monitorSvc,
		log:         log.With().Str("component", "grading").Logger(),
		now:         time.Now,
	}
}

// GradeAttempt grades a submitted attempt. It is called by the grading
// worker.
func (s *GradingService) GradeAttempt(ctx context.Context, attemptID uuid.UUID) (*model.TestAttempt, error) {
	return s.grade(ctx, attemptID, model.AttemptSubmitted)
}

// RegenerateEvaluation re-runs grading for a teacher, replacing any earlier
// evaluations.
func (s *GradingService) RegenerateEvaluation(ctx context.Context, teacherID, attemptID uuid.UUID) (*model.AttemptResult, error) {
	if _, err := s.ownedAttempt(ctx, teacherID, attemptID); err != nil {
		return nil, err
	}
	if _, err := s.grade(ctx, attemptID, model.AttemptSubmitted, model.AttemptGraded); err != nil {
		return nil, err
	}
	return s.result(ctx, attemptID)
}

func (s *GradingService) grade(ctx context.Context, attemptID uuid.UUID, allowed ...model.AttemptStatus) (*model.TestAttempt, error) {
	attempt, err := s.attemptRepo.GetByID(ctx, attemptID, false)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(allowed, attempt.Status) {
		return nil, scoring.ErrInvalidAttemptState.Withf("attempt is %s", attempt.Status)
	}

	rows, err := s.testRepo.GetQuestions(ctx, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}
	questions := make([]scoring.Question, len(rows))
	for i, q := range rows {
		questions[i] = scoring.Question{Index: q.Index, Text: q.Question, AnswerKey: q.AnswerKey, Rubric: q.Rubric}
	}

	// Evaluation runs outside the transaction; it may take several seconds.
	result, err := s.engine.Evaluate(ctx, questions, attempt.Answers)
	if err != nil {
		return nil, err
	}

	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := s.attemptRepo.WithTx(tx)
		a, err := repo.GetByID(ctx, attemptID, true)
		if err != nil {
			return err
		}
		if !slices.Contains(allowed, a.Status) {
			return scoring.ErrInvalidAttemptState.Withf("attempt is %s", a.Status)
		}
		if err := repo.ReplaceEvaluations(ctx, attemptID, result.Evaluations); err != nil {
			return fmt.Errorf("replace evaluations: %w", err)
		}

		now := s.now()
		a.Status = model.AttemptGraded
		a.Score = &result.Score
		a.Passed = &result.Passed
		a.NeedsReview = result.NeedsReview
		a.QualityNotes = result.QualityNotes
		a.EvaluatedAt = &now
		if err := repo.Update(ctx, a); err != nil {
			return err
		}
		attempt = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Float64("score", result.Score).
		Bool("passed", result.Passed).
		Bool("needs_review", result.NeedsReview).
		Strs("quality_notes", result.QualityNotes).
		Msg("Attempt graded")
	s.monitorSvc.Publish(ctx, attempt.TestID, MonitorEvent{
		Type: EventAttemptGraded, AttemptID: attempt.ID, StudentID: attempt.StudentID,
		Data: map[string]any{"score": result.Score, "passed": result.Passed},
	})
	return attempt, nil
}

// ─── Overrides ──────────────────────────────────────────────────────────

// OverrideScore changes one question's score (0-100, mapped onto a rubric
// band) or, without a question index, the attempt total.
func (s *GradingService) OverrideScore(ctx context.Context, teacherID, attemptID uuid.UUID, req model.OverrideScoreRequest) (*model.AttemptResult, error) {
	if _, err := s.ownedAttempt(ctx, teacherID, attemptID); err != nil {
		return nil, err
	}

	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := s.attemptRepo.WithTx(tx)
		a, err := repo.GetByID(ctx, attemptID, true)
		if err != nil {
			return err
		}
		if a.Status != model.AttemptGraded {
			return scoring.ErrInvalidAttemptState.Withf("only graded attempts can be overridden")
		}

		audit := &model.TeacherOverride{
			AttemptID:     attemptID,
			TeacherID:     teacherID,
			QuestionIndex: req.QuestionIndex,
			Reason:        req.Reason,
			Feedback:      req.Feedback,
		}

		if req.QuestionIndex != nil {
			rows, err := repo.ListEvaluations(ctx, attemptID)
			if err != nil {
				return fmt.Errorf("list evaluations: %w", err)
			}
			evals := make([]scoring.Evaluation, len(rows))
			for i, r := range rows {
				evals[i] = r.Evaluation
			}

			res, qo, err := scoring.OverrideQuestion(evals, *req.QuestionIndex, req.Score, req.Feedback)
			if err != nil {
				return err
			}
			for _, e := range res.Evaluations {
				if e.QuestionIndex == qo.QuestionIndex {
					if err := repo.UpsertEvaluation(ctx, attemptID, e); err != nil {
						return fmt.Errorf("update evaluation: %w", err)
					}
				}
			}
			a.Score = &res.Score
			a.Passed = &res.Passed
			a.NeedsReview = res.NeedsReview
			a.QualityNotes = res.QualityNotes
			audit.OriginalScore = qo.OriginalScore
			audit.OverrideScore = float64(qo.NewRubric.Points)
		} else {
			total, passed, err := scoring.OverrideOverall(req.Score)
			if err != nil {
				return err
			}
			if a.Score != nil {
				audit.OriginalScore = *a.Score
			}
			a.Score = &total
			a.Passed = &passed
			audit.OverrideScore = total
		}

		if err := repo.Update(ctx, a); err != nil {
			return err
		}
		if err := repo.UpsertOverride(ctx, audit); err != nil {
			return fmt.Errorf("record override: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Str("teacher_id", teacherID.String()).
		Float64("score", req.Score).
		Msg("Score overridden")
	return s.result(ctx, attemptID)
}

// ─── Results ────────────────────────────────────────────────────────────

// GetResultForStudent returns the student's own attempt with its grading.
func (s *GradingService) GetResultForStudent(ctx context.Context, studentID, attemptID uuid.UUID) (*model.AttemptResult, error) {
	a, err := s.attemptRepo.GetByID(ctx, attemptID, false)
	if err != nil {
		return nil, err
	}
	if a.StudentID != studentID {
		return nil, apperror.ErrForbidden
	}
	return s.result(ctx, attemptID)
}

// GetResultForTeacher returns an attempt on one of the teacher's tests.
func (s *GradingService) GetResultForTeacher(ctx context.Context, teacherID, attemptID uuid.UUID) (*model.AttemptResult, error) {
	if _, err := s.ownedAttempt(ctx, teacherID, attemptID); err != nil {
		return nil, err
	}
	return s.result(ctx, attemptID)
}

func (s *GradingService) ownedAttempt(ctx context.Context, teacherID, attemptID uuid.UUID) (*model.TestAttempt, error) {
	a, err := s.attemptRepo.GetByID(ctx, attemptID, false)
	if err != nil {
		return nil, err
	}
	test, err := s.testRepo.GetByID(ctx, a.TestID)
	if err != nil {
		return nil, err
	}
	if test.TeacherID != teacherID {
		return nil, ErrNotOwner
	}
	return a, nil
}

func (s *GradingService) result(ctx context.Context, attemptID uuid.UUID) (*model.AttemptResult, error) {
	a, err := s.attemptRepo.GetByID(ctx, attemptID, false)
	if err != nil {
		return nil, err
	}
	evals, err := s.attemptRepo.ListEvaluations(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	overrides, err := s.attemptRepo.ListOverrides(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	if evals == nil {
		evals = []model.QuestionEvaluation{}
	}
	if overrides == nil {
		overrides = []model.TeacherOverride{}
	}
	return &model.AttemptResult{Attempt: a, Evaluations: evals, Overrides: overrides}, nil
}
