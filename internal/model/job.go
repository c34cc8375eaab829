package model

import "github.com/google/uuid"

// GradeAttemptJob is queued when an attempt is submitted.
type GradeAttemptJob struct {
	AttemptID uuid.UUID `json:"attempt_id"`
	Retries   int       `json:"retries"`
}

// GenerateQuestionsJob is queued when a teacher requests test questions.
type GenerateQuestionsJob struct {
	LogID   uuid.UUID `json:"log_id"`
	TestID  uuid.UUID `json:"test_id"`
	Retries int       `json:"retries"`
}
