// Package bypass validates instructor codes typed into an answer box. A code
// either matches a teacher's permanent "!BYPASS-dddd" secret or a one-time
// "!OVR-XXXXXXXX" override code issued for the student's context.
package bypass

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/umadex/umadex-backend/internal/apperror"
	"github.com/umadex/umadex-backend/internal/config"
	"github.com/umadex/umadex-backend/internal/metrics"
)

// ContextType names what a code unlocks.
type ContextType string

const (
	ContextReadingChunk ContextType = "reading_chunk"
	ContextTestAttempt  ContextType = "test_attempt"
	ContextTestSchedule ContextType = "test_schedule"
)

func (t ContextType) Valid() bool {
	switch t {
	case ContextReadingChunk, ContextTestAttempt, ContextTestSchedule:
		return true
	}
	return false
}

// Context identifies the object a code is presented for.
type Context struct {
	Type ContextType
	ID   uuid.UUID
}

type CodeType string

const (
	CodePermanent   CodeType = "permanent"
	CodeOneTime     CodeType = "onetime"
	CodeRateLimited CodeType = "rate_limited"
	CodeInvalid     CodeType = "invalid"
)

// Result of a validation. Attempted is false when the text did not look like
// a code at all, so callers should treat it as an ordinary answer.
type Result struct {
	Valid     bool       `json:"valid"`
	CodeType  CodeType   `json:"code_type"`
	OwnerID   *uuid.UUID `json:"owner_id,omitempty"`
	Attempted bool       `json:"-"`
}

var ErrInvalidContext = apperror.New(apperror.KindValidation, "INVALID_BYPASS_CONTEXT", "a bypass context type and id are required")

var permanentPattern = regexp.MustCompile(`^!BYPASS-(\d{4})$`)

const permanentPrefix = "!BYPASS"

// Store resolves codes against persisted secrets. Both methods return an
// error wrapping apperror.ErrNotFound when nothing matches.
type Store interface {
	// PermanentCodeHash returns the bcrypt hash of the permanent code of the
	// teacher who owns the context.
	PermanentCodeHash(ctx context.Context, c Context) (teacherID uuid.UUID, hash []byte, err error)

	// ConsumeOneTimeCode atomically uses one unexpired, unexhausted code
	// issued for this student and context.
	ConsumeOneTimeCode(ctx context.Context, code string, c Context, studentID uuid.UUID) (teacherID uuid.UUID, err error)
}

// Limiter counts failed attempts per key over a rolling window.
type Limiter interface {
	Exceeded(ctx context.Context, key string) (bool, error)
	RecordFailure(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

type Validator struct {
	store   Store
	limiter Limiter
	log     zerolog.Logger
}

func NewValidator(store Store, limiter Limiter, log zerolog.Logger) *Validator {
	return &Validator{
		store:   store,
		limiter: limiter,
		log:     log.With().Str("component", "bypass").Logger(),
	}
}

// WithStore returns a validator that resolves codes through store, so a
// one-time code is consumed inside the caller's transaction.
func (v *Validator) WithStore(store Store) *Validator {
	return &Validator{store: store, limiter: v.limiter, log: v.log}
}

// LooksLikeCode reports whether text carries the prefix of either code
// family. Only such text is looked up or counted as a failed attempt.
func LooksLikeCode(text string) bool {
	t := strings.ToUpper(strings.TrimSpace(text))
	return strings.HasPrefix(t, permanentPrefix) || strings.HasPrefix(t, OneTimePrefix)
}

// Validate checks text as a bypass code for studentID in c. A wrong code is
// a Result, never an error; errors are reserved for a missing context and
// infrastructure failures.
func (v *Validator) Validate(ctx context.Context, text string, c Context, studentID uuid.UUID) (Result, error) {
	if !c.Type.Valid() || c.ID == uuid.Nil || studentID == uuid.Nil {
		return Result{}, ErrInvalidContext
	}

	code := strings.TrimSpace(text)
	if !LooksLikeCode(code) {
		return Result{CodeType: CodeInvalid}, nil
	}

	key := config.CacheKey.BypassFailuresKey(studentID.String(), string(c.Type), c.ID.String())
	over, err := v.limiter.Exceeded(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("check bypass rate limit: %w", err)
	}
	if over {
		v.observe(c, CodeRateLimited)
		return Result{CodeType: CodeRateLimited, Attempted: true}, nil
	}

	res, err := v.check(ctx, code, c, studentID)
	if err != nil {
		return Result{}, err
	}
	res.Attempted = true

	if res.Valid {
		if err := v.limiter.Reset(ctx, key); err != nil {
			v.log.Warn().Err(err).Str("key", key).Msg("Failed to reset bypass failure counter")
		}
	} else if err := v.limiter.RecordFailure(ctx, key); err != nil {
		return Result{}, fmt.Errorf("record bypass failure: %w", err)
	}

	v.observe(c, res.CodeType)
	return res, nil
}

func (v *Validator) check(ctx context.Context, code string, c Context, studentID uuid.UUID) (Result, error) {
	if m := permanentPattern.FindStringSubmatch(strings.ToUpper(code)); m != nil {
		teacherID, hash, err := v.store.PermanentCodeHash(ctx, c)
		if errors.Is(err, apperror.ErrNotFound) {
			return Result{CodeType: CodeInvalid}, nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("load permanent bypass code: %w", err)
		}
		if bcrypt.CompareHashAndPassword(hash, []byte(m[1])) != nil {
			return Result{CodeType: CodeInvalid}, nil
		}
		return Result{Valid: true, CodeType: CodePermanent, OwnerID: &teacherID}, nil
	}

	if !IsOneTimeShape(code) {
		return Result{CodeType: CodeInvalid}, nil
	}

	teacherID, err := v.store.ConsumeOneTimeCode(ctx, NormalizeCode(code), c, studentID)
	if errors.Is(err, apperror.ErrNotFound) {
		return Result{CodeType: CodeInvalid}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("consume override code: %w", err)
	}
	return Result{Valid: true, CodeType: CodeOneTime, OwnerID: &teacherID}, nil
}

func (v *Validator) observe(c Context, t CodeType) {
	metrics.BypassAttempts.WithLabelValues(string(c.Type), string(t)).Inc()
	v.log.Info().
		Str("context_type", string(c.Type)).
		Str("context_id", c.ID.String()).
		Str("code_type", string(t)).
		Msg("Bypass code checked")
}

// HashPermanentCode validates and hashes a four-digit permanent code.
func HashPermanentCode(digits string, cost int) ([]byte, error) {
	if !permanentPattern.MatchString(permanentPrefix + "-" + digits) {
		return nil, apperror.ErrValidation.Withf("bypass code must be exactly four digits")
	}
	return bcrypt.GenerateFromPassword([]byte(digits), cost)
}
