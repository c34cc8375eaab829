package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/apperror"
	"github.com/umadex/umadex-backend/internal/bypass"
	"github.com/umadex/umadex-backend/internal/database"
	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/repository"
	"github.com/umadex/umadex-backend/internal/schedule"
)

// ScheduleService manages weekly test windows and the override escape hatch.
type ScheduleService struct {
	pool        *pgxpool.Pool
	testRepo    *repository.TestRepository
	attemptRepo *repository.AttemptRepository
	bypassRepo  *repository.BypassRepository
	validator   *bypass.Validator
	log         zerolog.Logger
	now         func() time.Time
}

// NewScheduleService creates a new ScheduleService.
func NewScheduleService(
	pool *pgxpool.Pool,
	testRepo *repository.TestRepository,
	attemptRepo *repository.AttemptRepository,
	bypassRepo *repository.BypassRepository,
	validator *bypass.Validator,
	log zerolog.Logger,
) *ScheduleService {
	return &ScheduleService{
		pool:        pool,
		testRepo:    testRepo,
		attemptRepo: attemptRepo,
		bypassRepo:  bypassRepo,
		validator:   validator,
		log:         log.With().Str("component", "schedule").Logger(),
		now:         time.Now,
	}
}

// CheckTestAvailability evaluates a test's schedule at the current time.
func (s *ScheduleService) CheckTestAvailability(ctx context.Context, testID uuid.UUID) (*schedule.Availability, error) {
	test, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	av, err := schedule.Check(test.Schedule, s.now())
	if err != nil {
		return nil, err
	}
	return &av, nil
}

// SetSchedule replaces the schedule of a teacher's test.
func (s *ScheduleService) SetSchedule(ctx context.Context, teacherID, testID uuid.UUID, req model.ScheduleRequest) (*schedule.Schedule, error) {
	test, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	if test.TeacherID != teacherID {
		return nil, ErrNotOwner
	}

	sched := &schedule.Schedule{Timezone: req.Timezone, IsActive: req.IsActive}
	for _, w := range req.Windows {
		sched.Windows = append(sched.Windows, schedule.Window{Days: w.Days, Start: w.StartTime, End: w.EndTime})
	}
	if err := schedule.Validate(*sched); err != nil {
		return nil, err
	}
	if err := s.testRepo.UpdateSchedule(ctx, testID, sched); err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	return sched, nil
}

// ValidateAndUseOverride grants a student access to a test outside its
// windows. A usage row is recorded when attemptID is supplied; the attempt
// must be the student's own attempt on this test.
func (s *ScheduleService) ValidateAndUseOverride(ctx context.Context, studentID, testID uuid.UUID, code string, attemptID *uuid.UUID) (*bypass.Result, error) {
	test, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	ok, err := s.testRepo.IsEnrolled(ctx, test.ClassroomID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !ok {
		return nil, ErrNotEnrolled
	}
	if attemptID != nil {
		a, err := s.attemptRepo.GetByID(ctx, *attemptID, false)
		if err != nil {
			return nil, err
		}
		if a.StudentID != studentID || a.TestID != testID {
			return nil, apperror.ErrForbidden
		}
	}

	var res bypass.Result
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		res, err = s.useOverride(ctx, tx, studentID, testID, code)
		if err != nil {
			return err
		}
		if attemptID != nil {
			return s.recordOverrideUsage(ctx, tx, studentID, testID, res, *attemptID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// useOverride consumes a schedule override code inside tx. The code is
// only spent if tx commits.
func (s *ScheduleService) useOverride(ctx context.Context, tx pgx.Tx, studentID, testID uuid.UUID, code string) (bypass.Result, error) {
	v := s.validator.WithStore(s.bypassRepo.WithTx(tx))
	res, err := v.Validate(ctx, code, bypass.Context{Type: bypass.ContextTestSchedule, ID: testID}, studentID)
	if err != nil {
		return bypass.Result{}, err
	}
	switch {
	case res.CodeType == bypass.CodeRateLimited:
		return bypass.Result{}, ErrBypassRateLimited
	case !res.Valid:
		return bypass.Result{}, ErrInvalidBypassCode
	}
	return res, nil
}

// recordOverrideUsage writes the audit row of a schedule override.
func (s *ScheduleService) recordOverrideUsage(ctx context.Context, tx pgx.Tx, studentID, testID uuid.UUID, res bypass.Result, attemptID uuid.UUID) error {
	usage := &model.OverrideUsage{
		StudentID:   studentID,
		TeacherID:   res.OwnerID,
		ContextType: string(bypass.ContextTestSchedule),
		ContextID:   testID,
		CodeType:    string(res.CodeType),
		AttemptID:   &attemptID,
	}
	if err := s.bypassRepo.WithTx(tx).RecordUsage(ctx, usage); err != nil {
		return fmt.Errorf("record override usage: %w", err)
	}
	return nil
}
