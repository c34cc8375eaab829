package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/config"
	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/repository"
)

// MonitorEventType names an attempt event on the live monitor channel.
type MonitorEventType string

const (
	EventAttemptStarted   MonitorEventType = "attempt_started"
	EventAnswerSaved      MonitorEventType = "answer_saved"
	EventViolation        MonitorEventType = "security_violation"
	EventAttemptLocked    MonitorEventType = "attempt_locked"
	EventAttemptUnlocked  MonitorEventType = "attempt_unlocked"
	EventAttemptSubmitted MonitorEventType = "attempt_submitted"
	EventAttemptGraded    MonitorEventType = "attempt_graded"
)

// MonitorEvent is published to the test's monitor channel.
type MonitorEvent struct {
	Type      MonitorEventType `json:"type"`
	AttemptID uuid.UUID        `json:"attempt_id"`
	StudentID uuid.UUID        `json:"student_id"`
	Data      any              `json:"data,omitempty"`
	At        time.Time        `json:"at"`
}

// MonitorSnapshot is the initial state sent to a teacher attaching to the
// live monitor.
type MonitorSnapshot struct {
	Test       *model.Test                 `json:"test"`
	Attempts   []repository.AttemptSummary `json:"attempts"`
	InProgress int                         `json:"in_progress"`
	Submitted  int                         `json:"submitted"`
	Graded     int                         `json:"graded"`
	Locked     int                         `json:"locked"`
	Violations int                         `json:"violations"`
}

// MonitorService publishes attempt events and builds monitor snapshots.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
	testRepo    *repository.TestRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository, testRepo *repository.TestRepository, rdb *redis.Client, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		monitorRepo: monitorRepo,
		testRepo:    testRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "monitor").Logger(),
	}
}

// Publish sends an event to the test's channel. Monitoring is best-effort,
// so failures are logged and swallowed.
func (s *MonitorService) Publish(ctx context.Context, testID uuid.UUID, ev MonitorEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode monitor event")
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.TestMonitorChannel(testID.String()), raw).Err(); err != nil {
		s.log.Warn().Err(err).Str("test_id", testID.String()).Str("type", string(ev.Type)).Msg("Failed to publish monitor event")
	}
}

// Subscribe attaches to the test's monitor channel.
func (s *MonitorService) Subscribe(ctx context.Context, testID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.TestMonitorChannel(testID.String()))
}

// GetSnapshot returns every attempt on a teacher's test with totals.
func (s *MonitorService) GetSnapshot(ctx context.Context, teacherID, testID uuid.UUID) (*MonitorSnapshot, error) {
	test, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	if test.TeacherID != teacherID {
		return nil, ErrNotOwner
	}

	attempts, err := s.monitorRepo.GetAttemptSummaries(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("get attempt summaries: %w", err)
	}

	snap := &MonitorSnapshot{Test: test, Attempts: attempts}
	if snap.Attempts == nil {
		snap.Attempts = []repository.AttemptSummary{}
	}
	for _, a := range attempts {
		switch model.AttemptStatus(a.Status) {
		case model.AttemptInProgress:
			snap.InProgress++
		case model.AttemptSubmitted:
			snap.Submitted++
		case model.AttemptGraded:
			snap.Graded++
		}
		if a.IsLocked {
			snap.Locked++
		}
		snap.Violations += a.ViolationCount
	}
	return snap, nil
}

// PipelineStatus is a teacher's grading backlog plus the shared queue depths.
type PipelineStatus struct {
	repository.PipelineStats
	QueuedGrading    int64 `json:"queued_grading"`
	QueuedGeneration int64 `json:"queued_generation"`
}

// GetPipelineStatus reports what is still waiting on the AI workers for a
// teacher's tests. Queue depths are best-effort.
func (s *MonitorService) GetPipelineStatus(ctx context.Context, teacherID uuid.UUID) (*PipelineStatus, error) {
	stats, err := s.monitorRepo.GetPipelineStats(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("get pipeline stats: %w", err)
	}
	st := &PipelineStatus{PipelineStats: *stats}

	pipe := s.rdb.Pipeline()
	grading := pipe.LLen(ctx, config.WorkerKey.GradeAttemptsQueue)
	generation := pipe.LLen(ctx, config.WorkerKey.GenerateQuestionsQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to read worker queue depth")
		return st, nil
	}
	st.QueuedGrading = grading.Val()
	st.QueuedGeneration = generation.Val()
	return st, nil
}
