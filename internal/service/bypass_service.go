package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/apperror"
	"github.com/umadex/umadex-backend/internal/bypass"
	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/repository"
)

// BypassService exposes bypass code validation and teacher code management.
type BypassService struct {
	bypassRepo  *repository.BypassRepository
	validator   *bypass.Validator
	bcryptCost  int
	codeTTL     time.Duration
	codeMaxUses int
	log         zerolog.Logger
	now         func() time.Time
}

// NewBypassService creates a new BypassService.
func NewBypassService(
	bypassRepo *repository.BypassRepository,
	validator *bypass.Validator,
	bcryptCost int,
	codeTTL time.Duration,
	codeMaxUses int,
	log zerolog.Logger,
) *BypassService {
	return &BypassService{
		bypassRepo:  bypassRepo,
		validator:   validator,
		bcryptCost:  bcryptCost,
		codeTTL:     codeTTL,
		codeMaxUses: codeMaxUses,
		log:         log.With().Str("component", "bypass_service").Logger(),
		now:         time.Now,
	}
}

func parseContext(contextType, contextID string) (bypass.Context, error) {
	id, err := uuid.Parse(contextID)
	if err != nil {
		return bypass.Context{}, bypass.ErrInvalidContext
	}
	c := bypass.Context{Type: bypass.ContextType(contextType), ID: id}
	if !c.Type.Valid() {
		return bypass.Context{}, bypass.ErrInvalidContext
	}
	return c, nil
}

// ValidateBypassCode checks a code for a context and records the usage when
// it is accepted. Accepted one-time codes are consumed.
func (s *BypassService) ValidateBypassCode(ctx context.Context, studentID uuid.UUID, req model.ValidateBypassRequest) (*bypass.Result, error) {
	c, err := parseContext(req.ContextType, req.ContextID)
	if err != nil {
		return nil, err
	}
	res, err := s.validator.Validate(ctx, req.Code, c, studentID)
	if err != nil {
		return nil, err
	}
	if res.Valid {
		usage := &model.OverrideUsage{
			StudentID:   studentID,
			TeacherID:   res.OwnerID,
			ContextType: string(c.Type),
			ContextID:   c.ID,
			CodeType:    string(res.CodeType),
		}
		if err := s.bypassRepo.RecordUsage(ctx, usage); err != nil {
			s.log.Error().Err(err).Msg("Failed to record bypass usage")
		}
	}
	return &res, nil
}

// SetPermanentCode stores a teacher's four-digit permanent code.
func (s *BypassService) SetPermanentCode(ctx context.Context, teacherID uuid.UUID, digits string) error {
	hash, err := bypass.HashPermanentCode(digits, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.bypassRepo.SetPermanentCode(ctx, teacherID, hash); err != nil {
		return fmt.Errorf("set permanent code: %w", err)
	}
	s.log.Info().Str("teacher_id", teacherID.String()).Msg("Permanent bypass code updated")
	return nil
}

// GenerateOverrideCode issues a one-time code for one student and context.
// The teacher must own the context and teach the student.
func (s *BypassService) GenerateOverrideCode(ctx context.Context, teacherID uuid.UUID, req model.GenerateOverrideCodeRequest) (*model.OverrideCode, error) {
	c, err := parseContext(req.ContextType, req.ContextID)
	if err != nil {
		return nil, err
	}
	studentID, err := uuid.Parse(req.StudentID)
	if err != nil {
		return nil, apperror.ErrValidation.Withf("invalid student id")
	}

	owner, err := s.bypassRepo.ContextOwner(ctx, c)
	if err != nil {
		return nil, err
	}
	if owner != teacherID {
		return nil, ErrNotOwner
	}
	ok, err := s.bypassRepo.IsStudentInTeacherClass(ctx, teacherID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !ok {
		return nil, ErrNotEnrolled
	}

	ttl := s.codeTTL
	if req.ExpiresInHours > 0 {
		ttl = time.Duration(req.ExpiresInHours) * time.Hour
	}
	maxUses := s.codeMaxUses
	if req.MaxUses > 0 {
		maxUses = req.MaxUses
	}

	oc := &model.OverrideCode{
		TeacherID:   teacherID,
		StudentID:   studentID,
		ContextType: string(c.Type),
		ContextID:   c.ID,
		ExpiresAt:   s.now().Add(ttl),
		MaxUses:     maxUses,
	}
	if err := s.bypassRepo.CreateOverrideCode(ctx, oc); err != nil {
		return nil, fmt.Errorf("create override code: %w", err)
	}

	s.log.Info().
		Str("teacher_id", teacherID.String()).
		Str("student_id", studentID.String()).
		Str("context_type", oc.ContextType).
		Time("expires_at", oc.ExpiresAt).
		Msg("Override code issued")
	return oc, nil
}
