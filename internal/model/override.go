package model

import (
	"time"

	"github.com/google/uuid"
)

// OverrideCode is a one-time code a teacher issues to a student for one context.
type OverrideCode struct {
	ID          uuid.UUID `json:"id"`
	TeacherID   uuid.UUID `json:"teacher_id"`
	StudentID   uuid.UUID `json:"student_id"`
	ContextType string    `json:"context_type"`
	ContextID   uuid.UUID `json:"context_id"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
	MaxUses     int       `json:"max_uses"`
	CurrentUses int       `json:"current_uses"`
	CreatedAt   time.Time `json:"created_at"`
}

// OverrideUsage records an accepted bypass. AttemptID is set when the
// bypass opened or unlocked a test attempt.
type OverrideUsage struct {
	ID          uuid.UUID  `json:"id"`
	StudentID   uuid.UUID  `json:"student_id"`
	TeacherID   *uuid.UUID `json:"teacher_id,omitempty"`
	ContextType string     `json:"context_type"`
	ContextID   uuid.UUID  `json:"context_id"`
	CodeType    string     `json:"code_type"`
	AttemptID   *uuid.UUID `json:"attempt_id,omitempty"`
	UsedAt      time.Time  `json:"used_at"`
}

// GenerateOverrideCodeRequest is the teacher payload for issuing a code.
type GenerateOverrideCodeRequest struct {
	StudentID      string `json:"student_id" binding:"required,uuid"`
	ContextType    string `json:"context_type" binding:"required,oneof=reading_chunk test_attempt test_schedule"`
	ContextID      string `json:"context_id" binding:"required,uuid"`
	ExpiresInHours int    `json:"expires_in_hours" binding:"omitempty,min=1,max=168"`
	MaxUses        int    `json:"max_uses" binding:"omitempty,min=1,max=10"`
}

// ValidateBypassRequest checks a code without applying it to any progress.
type ValidateBypassRequest struct {
	Code        string `json:"code" binding:"required,max=32"`
	ContextType string `json:"context_type" binding:"required,oneof=reading_chunk test_attempt test_schedule"`
	ContextID   string `json:"context_id" binding:"required,uuid"`
}

// SetBypassCodeRequest sets a teacher's permanent four-digit code.
type SetBypassCodeRequest struct {
	Code string `json:"code" binding:"required,len=4,numeric"`
}

// ScheduleWindowRequest is one weekly window in a schedule payload.
type ScheduleWindowRequest struct {
	Days      []string `json:"days" binding:"required,min=1,dive,weekday"`
	StartTime string   `json:"start_time" binding:"required,hhmm"`
	EndTime   string   `json:"end_time" binding:"required,hhmm"`
}

// ScheduleRequest replaces a test's availability schedule.
type ScheduleRequest struct {
	Windows  []ScheduleWindowRequest `json:"windows" binding:"required,min=1,dive"`
	Timezone string                  `json:"timezone" binding:"required,max=64"`
	IsActive bool                    `json:"is_active"`
}

// ScheduleOverrideRequest presents an override code for a test's schedule.
type ScheduleOverrideRequest struct {
	Code      string  `json:"code" binding:"required,max=32"`
	AttemptID *string `json:"attempt_id" binding:"omitempty,uuid"`
}
