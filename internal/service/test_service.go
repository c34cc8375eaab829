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
	"github.com/umadex/umadex-backend/internal/bypass"
	"github.com/umadex/umadex-backend/internal/config"
	"github.com/umadex/umadex-backend/internal/database"
	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/repository"
	"github.com/umadex/umadex-backend/internal/rubric"
	"github.com/umadex/umadex-backend/internal/schedule"
)

// TestService runs the student side of UMATest: starting attempts,
// autosave, submission, security incidents and unlock.
type TestService struct {
	pool           *pgxpool.Pool
	testRepo       *repository.TestRepository
	attemptRepo    *repository.AttemptRepository
	bypassRepo     *repository.BypassRepository
	scheduleSvc    *ScheduleService
	monitorSvc     *MonitorService
	validator      *bypass.Validator
	rdb            *redis.Client
	violationLimit int
	log            zerolog.Logger
	now            func() time.Time
}

// NewTestService creates a new TestService.
func NewTestService(
	pool *pgxpool.Pool,
	testRepo *repository.TestRepository,
	attemptRepo *repository.AttemptRepository,
	bypassRepo *repository.BypassRepository,
	scheduleSvc *ScheduleService,
	monitorSvc *MonitorService,
	validator *bypass.Validator,
	rdb *redis.Client,
	violationLimit int,
	log zerolog.Logger,
) *TestService {
	return &TestService{
		pool:           pool,
		testRepo:       testRepo,
		attemptRepo:    attemptRepo,
		bypassRepo:     bypassRepo,
		scheduleSvc:    scheduleSvc,
		monitorSvc:     monitorSvc,
		validator:      validator,
		rdb:            rdb,
		violationLimit: violationLimit,
		log:            log.With().Str("component", "test").Logger(),
		now:            time.Now,
	}
}

// StartTestAttempt opens an attempt, or returns the student's open one.
// Outside the schedule an override code is required.
func (s *TestService) StartTestAttempt(ctx context.Context, studentID, testID uuid.UUID, overrideCode string) (*model.TestAttempt, error) {
	test, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	if test.Status != model.TestStatusPublished {
		return nil, ErrTestNotPublished
	}
	ok, err := s.testRepo.IsEnrolled(ctx, test.ClassroomID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !ok {
		return nil, ErrNotEnrolled
	}

	existing, err := s.attemptRepo.GetInProgress(ctx, testID, studentID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	questions, err := s.testRepo.GetQuestions(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}
	if len(questions) != rubric.QuestionsPerTest {
		return nil, ErrTestHasNoQuestions
	}

	count, err := s.attemptRepo.CountForStudent(ctx, testID, studentID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if count >= test.AttemptLimit {
		return nil, ErrAttemptLimitReached.Withf("%d of %d used", count, test.AttemptLimit)
	}

	av, err := schedule.Check(test.Schedule, s.now())
	if err != nil {
		return nil, err
	}
	if !av.Allowed && overrideCode == "" {
		return nil, ErrTestNotAvailable.Withf("%s", av.Message)
	}

	// The override code is spent only if the attempt is created.
	var attempt *model.TestAttempt
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var override *bypass.Result
		if !av.Allowed {
			res, err := s.scheduleSvc.useOverride(ctx, tx, studentID, testID, overrideCode)
			if err != nil {
				return err
			}
			override = &res
		}

		created, err := s.attemptRepo.WithTx(tx).Create(ctx, testID, studentID, count+1)
		if err != nil {
			return fmt.Errorf("create attempt: %w", err)
		}
		if override != nil {
			if err := s.scheduleSvc.recordOverrideUsage(ctx, tx, studentID, testID, *override, created.ID); err != nil {
				return err
			}
		}
		attempt = created
		return nil
	})
	if database.IsUniqueViolation(err) {
		// Concurrent start: the other request created the attempt.
		return s.attemptRepo.GetInProgress(ctx, testID, studentID)
	}
	if err != nil {
		return nil, err
	}

	s.monitorSvc.Publish(ctx, testID, MonitorEvent{Type: EventAttemptStarted, AttemptID: attempt.ID, StudentID: studentID})
	return attempt, nil
}

// GetAttempt returns one of the student's own attempts.
func (s *TestService) GetAttempt(ctx context.Context, studentID, attemptID uuid.UUID) (*model.TestAttempt, error) {
	a, err := s.attemptRepo.GetByID(ctx, attemptID, false)
	if err != nil {
		return nil, err
	}
	if a.StudentID != studentID {
		return nil, apperror.ErrForbidden
	}
	return a, nil
}

// GetQuestions returns the questions of the test an attempt belongs to,
// without answer keys.
func (s *TestService) GetQuestions(ctx context.Context, studentID, attemptID uuid.UUID) ([]model.TestQuestion, error) {
	a, err := s.GetAttempt(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	return s.testRepo.GetQuestions(ctx, a.TestID)
}

// SaveAnswer autosaves one answer of an open attempt.
func (s *TestService) SaveAnswer(ctx context.Context, studentID, attemptID uuid.UUID, index int, answer string) error {
	if index < 0 || index >= rubric.QuestionsPerTest {
		return apperror.ErrValidation.Withf("question index must be between 0 and %d", rubric.QuestionsPerTest-1)
	}
	saved, err := s.attemptRepo.SaveAnswer(ctx, attemptID, studentID, index, answer)
	if err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	if saved {
		return nil
	}

	// Nothing matched; report why.
	a, err := s.GetAttempt(ctx, studentID, attemptID)
	if err != nil {
		return err
	}
	if a.IsLocked {
		return ErrAttemptLocked
	}
	return ErrAttemptNotOpen
}

// SubmitTest marks the attempt submitted and queues it for grading. The
// attempt stays submitted if queueing fails, so no work is lost.
func (s *TestService) SubmitTest(ctx context.Context, studentID, attemptID uuid.UUID) (*model.TestAttempt, error) {
	var attempt *model.TestAttempt
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := s.attemptRepo.WithTx(tx)
		a, err := repo.GetByID(ctx, attemptID, true)
		if err != nil {
			return err
		}
		if a.StudentID != studentID {
			return apperror.ErrForbidden
		}
		if a.Status != model.AttemptInProgress {
			return ErrAttemptNotOpen
		}
		if a.IsLocked {
			return ErrAttemptLocked
		}
		now := s.now()
		a.Status = model.AttemptSubmitted
		a.SubmittedAt = &now
		if err := repo.Update(ctx, a); err != nil {
			return err
		}
		attempt = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.enqueueGrading(ctx, attempt.ID); err != nil {
		s.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to queue grading, attempt left pending")
	}
	s.monitorSvc.Publish(ctx, attempt.TestID, MonitorEvent{Type: EventAttemptSubmitted, AttemptID: attempt.ID, StudentID: studentID})
	return attempt, nil
}

func (s *TestService) enqueueGrading(ctx context.Context, attemptID uuid.UUID) error {
	raw, err := json.Marshal(model.GradeAttemptJob{AttemptID: attemptID})
	if err != nil {
		return err
	}
	return s.rdb.RPush(ctx, config.WorkerKey.GradeAttemptsQueue, raw).Err()
}

// ─── Security incidents ─────────────────────────────────────────────────

// RecordSecurityViolation appends an incident to an open attempt and locks
// it once the limit is reached.
func (s *TestService) RecordSecurityViolation(ctx context.Context, studentID, attemptID uuid.UUID, violationType string) (*model.TestAttempt, error) {
	var (
		attempt      *model.TestAttempt
		lockedNow    bool
		violationCnt int
	)
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := s.attemptRepo.WithTx(tx)
		a, err := repo.GetByID(ctx, attemptID, true)
		if err != nil {
			return err
		}
		if a.StudentID != studentID {
			return apperror.ErrForbidden
		}
		if a.Status != model.AttemptInProgress {
			return ErrAttemptNotOpen
		}
		a.SecurityViolations = append(a.SecurityViolations, model.SecurityViolation{Type: violationType, OccurredAt: s.now()})
		if !a.IsLocked && len(a.SecurityViolations) >= s.violationLimit {
			a.IsLocked = true
			lockedNow = true
		}
		if err := repo.Update(ctx, a); err != nil {
			return err
		}
		attempt = a
		violationCnt = len(a.SecurityViolations)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Warn().
		Str("attempt_id", attemptID.String()).
		Str("type", violationType).
		Int("count", violationCnt).
		Bool("locked", attempt.IsLocked).
		Msg("Security violation recorded")
	s.monitorSvc.Publish(ctx, attempt.TestID, MonitorEvent{
		Type: EventViolation, AttemptID: attempt.ID, StudentID: studentID,
		Data: map[string]any{"type": violationType, "count": violationCnt},
	})
	if lockedNow {
		s.monitorSvc.Publish(ctx, attempt.TestID, MonitorEvent{Type: EventAttemptLocked, AttemptID: attempt.ID, StudentID: studentID})
	}
	return attempt, nil
}

// UnlockAttempt clears a locked attempt with a bypass code. Unlocking is a
// full reset: answers, violations and the start time are all cleared.
func (s *TestService) UnlockAttempt(ctx context.Context, studentID, attemptID uuid.UUID, code string) (*model.TestAttempt, error) {
	a, err := s.GetAttempt(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if !a.IsLocked {
		return nil, ErrAttemptNotLocked
	}

	var (
		attempt *model.TestAttempt
		res     bypass.Result
	)
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := s.attemptRepo.WithTx(tx)
		locked, err := repo.GetByID(ctx, attemptID, true)
		if err != nil {
			return err
		}
		if !locked.IsLocked {
			return ErrAttemptNotLocked
		}

		bypassRepo := s.bypassRepo.WithTx(tx)
		res, err = s.validator.WithStore(bypassRepo).Validate(ctx, code, bypass.Context{Type: bypass.ContextTestAttempt, ID: attemptID}, studentID)
		if err != nil {
			return err
		}
		switch {
		case res.CodeType == bypass.CodeRateLimited:
			return ErrBypassRateLimited
		case !res.Valid:
			return ErrInvalidBypassCode
		}

		locked.IsLocked = false
		locked.Answers = map[int]string{}
		locked.SecurityViolations = []model.SecurityViolation{}
		locked.StartedAt = s.now()
		if err := repo.Update(ctx, locked); err != nil {
			return err
		}
		if err := bypassRepo.RecordUsage(ctx, &model.OverrideUsage{
			StudentID:   studentID,
			TeacherID:   res.OwnerID,
			ContextType: string(bypass.ContextTestAttempt),
			ContextID:   attemptID,
			CodeType:    string(res.CodeType),
			AttemptID:   &attemptID,
		}); err != nil {
			return fmt.Errorf("record usage: %w", err)
		}
		attempt = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("attempt_id", attemptID.String()).Str("code_type", string(res.CodeType)).Msg("Attempt unlocked and reset")
	s.monitorSvc.Publish(ctx, attempt.TestID, MonitorEvent{Type: EventAttemptUnlocked, AttemptID: attempt.ID, StudentID: studentID})
	return attempt, nil
}
