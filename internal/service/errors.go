package service

import "github.com/umadex/umadex-backend/internal/apperror"

// Service-level errors. Domain packages own the errors of their own rules;
// these cover access, lifecycle and infrastructure preconditions.
var (
	ErrNotEnrolled       = apperror.New(apperror.KindForbidden, "NOT_ENROLLED", "student is not enrolled in this classroom")
	ErrNotOwner          = apperror.New(apperror.KindForbidden, "NOT_OWNER", "only the owning teacher can do this")
	ErrChunkLocked       = apperror.New(apperror.KindForbidden, "CHUNK_LOCKED", "finish the earlier chunks first")
	ErrBypassRateLimited = apperror.New(apperror.KindRateLimited, "BYPASS_RATE_LIMITED", "too many invalid codes, try again later")
	ErrInvalidBypassCode = apperror.New(apperror.KindForbidden, "INVALID_BYPASS_CODE", "the code is not valid for this context")

	ErrTestNotPublished    = apperror.New(apperror.KindInvalidState, "TEST_NOT_PUBLISHED", "this test is not open for attempts")
	ErrTestHasNoQuestions  = apperror.New(apperror.KindInvalidState, "TEST_HAS_NO_QUESTIONS", "this test has no questions yet")
	ErrTestNotAvailable    = apperror.New(apperror.KindForbidden, "TEST_NOT_AVAILABLE", "the test is outside its scheduled window")
	ErrAttemptLimitReached = apperror.New(apperror.KindInvalidState, "ATTEMPT_LIMIT_REACHED", "no attempts left for this test")
	ErrAttemptNotOpen      = apperror.New(apperror.KindInvalidState, "ATTEMPT_NOT_IN_PROGRESS", "the attempt is not in progress")
	ErrAttemptLocked       = apperror.New(apperror.KindInvalidState, "ATTEMPT_LOCKED", "the attempt is locked, ask your teacher for an unlock code")
	ErrAttemptNotLocked    = apperror.New(apperror.KindInvalidState, "ATTEMPT_NOT_LOCKED", "the attempt is not locked")

	ErrGenerationRunning = apperror.New(apperror.KindConflict, "GENERATION_IN_PROGRESS", "question generation is already running for this test")
	ErrTestPublished     = apperror.New(apperror.KindInvalidState, "TEST_ALREADY_PUBLISHED", "questions of a published test cannot be regenerated")
)
