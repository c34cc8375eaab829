package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/umadex/umadex-backend/internal/schedule"
	"github.com/umadex/umadex-backend/internal/scoring"
)

// TestStatus enumerates test lifecycle states.
type TestStatus string

const (
	TestStatusDraft     TestStatus = "draft"
	TestStatusPublished TestStatus = "published"
)

// Test is a UMATest: ten open questions graded against a rubric.
type Test struct {
	ID               uuid.UUID          `json:"id"`
	TeacherID        uuid.UUID          `json:"teacher_id"`
	ClassroomID      uuid.UUID          `json:"classroom_id"`
	Title            string             `json:"title"`
	Content          string             `json:"-"`
	Status           TestStatus         `json:"status"`
	AttemptLimit     int                `json:"attempt_limit"`
	TimeLimitMinutes int                `json:"time_limit_minutes"`
	Schedule         *schedule.Schedule `json:"schedule,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// TestQuestion is one question with its grading material. Index is 0-based.
type TestQuestion struct {
	TestID    uuid.UUID `json:"test_id"`
	Index     int       `json:"question_index"`
	Question  string    `json:"question"`
	AnswerKey string    `json:"-"`
	Rubric    string    `json:"-"`
}

// AttemptStatus enumerates attempt states.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded"
)

// SecurityViolation is one proctoring incident reported by the client.
type SecurityViolation struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TestAttempt is one student's sitting of a test.
type TestAttempt struct {
	ID                 uuid.UUID           `json:"id"`
	TestID             uuid.UUID           `json:"test_id"`
	StudentID          uuid.UUID           `json:"student_id"`
	AttemptNumber      int                 `json:"attempt_number"`
	Status             AttemptStatus       `json:"status"`
	Answers            map[int]string      `json:"answers"`
	Score              *float64            `json:"score,omitempty"`
	Passed             *bool               `json:"passed,omitempty"`
	NeedsReview        bool                `json:"needs_review"`
	QualityNotes       []string            `json:"quality_notes"`
	IsLocked           bool                `json:"is_locked"`
	SecurityViolations []SecurityViolation `json:"security_violations"`
	StartedAt          time.Time           `json:"started_at"`
	SubmittedAt        *time.Time          `json:"submitted_at,omitempty"`
	EvaluatedAt        *time.Time          `json:"evaluated_at,omitempty"`
	Version            int                 `json:"-"`
}

// QuestionEvaluation is the persisted grade of one question.
type QuestionEvaluation struct {
	ID        uuid.UUID `json:"id"`
	AttemptID uuid.UUID `json:"attempt_id"`
	scoring.Evaluation
	CreatedAt time.Time `json:"created_at"`
}

// TeacherOverride is the audit row of a manual score change. A nil
// QuestionIndex is an override of the whole attempt.
type TeacherOverride struct {
	ID            uuid.UUID `json:"id"`
	AttemptID     uuid.UUID `json:"attempt_id"`
	TeacherID     uuid.UUID `json:"teacher_id"`
	QuestionIndex *int      `json:"question_index"`
	OriginalScore float64   `json:"original_score"`
	OverrideScore float64   `json:"override_score"`
	Reason        string    `json:"reason"`
	Feedback      string    `json:"feedback,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GenerationStatus enumerates question generation task states.
type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "pending"
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

// GenerationLog tracks one background question generation run for polling.
type GenerationLog struct {
	ID            uuid.UUID        `json:"id"`
	TestID        uuid.UUID        `json:"test_id"`
	RequestedBy   uuid.UUID        `json:"requested_by"`
	Status        GenerationStatus `json:"status"`
	QuestionCount int              `json:"question_count"`
	Error         *string          `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}

// StartAttemptRequest optionally carries a schedule override code.
type StartAttemptRequest struct {
	OverrideCode string `json:"override_code" binding:"omitempty,max=32"`
}

// SaveAnswerRequest autosaves one answer.
type SaveAnswerRequest struct {
	QuestionIndex *int   `json:"question_index" binding:"required,min=0,max=9"`
	Answer        string `json:"answer" binding:"max=10000"`
}

// SecurityViolationRequest reports a proctoring incident.
type SecurityViolationRequest struct {
	Type string `json:"type" binding:"required,max=64"`
}

// UnlockAttemptRequest carries the bypass code for a locked attempt.
type UnlockAttemptRequest struct {
	Code string `json:"code" binding:"required,max=32"`
}

// OverrideScoreRequest changes one question's score or the attempt total.
type OverrideScoreRequest struct {
	QuestionIndex *int    `json:"question_index" binding:"omitempty,min=0,max=9"`
	Score         float64 `json:"score" binding:"min=0"`
	Reason        string  `json:"reason" binding:"required,min=3,max=1000"`
	Feedback      string  `json:"feedback" binding:"max=2000"`
}

// AttemptResult is an attempt with its grading detail.
type AttemptResult struct {
	Attempt     *TestAttempt         `json:"attempt"`
	Evaluations []QuestionEvaluation `json:"evaluations"`
	Overrides   []TeacherOverride    `json:"overrides"`
}
