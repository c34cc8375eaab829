package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptSummary is one row of the live test monitor.
type AttemptSummary struct {
	AttemptID      uuid.UUID  `json:"attempt_id"`
	StudentID      uuid.UUID  `json:"student_id"`
	StudentName    string     `json:"student_name"`
	AttemptNumber  int        `json:"attempt_number"`
	Status         string     `json:"status"`
	IsLocked       bool       `json:"is_locked"`
	AnsweredCount  int        `json:"answered_count"`
	ViolationCount int        `json:"violation_count"`
	Score          *float64   `json:"score,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
}

// MonitorRepository provides the read model of the live test monitor.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// GetAttemptSummaries returns one row per attempt on the test with answered
// and violation counts computed in SQL.
func (r *MonitorRepository) GetAttemptSummaries(ctx context.Context, testID uuid.UUID) ([]AttemptSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.student_id, s.name, a.attempt_number, a.status, a.is_locked,
		        (SELECT COUNT(*) FROM jsonb_object_keys(a.answers)),
		        jsonb_array_length(a.security_violations),
		        a.score, a.started_at, a.submitted_at
		 FROM test_attempts a
		 JOIN students s ON s.id = a.student_id
		 WHERE a.test_id = $1
		 ORDER BY a.started_at`,
		testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []AttemptSummary
	for rows.Next() {
		var a AttemptSummary
		if err := rows.Scan(&a.AttemptID, &a.StudentID, &a.StudentName, &a.AttemptNumber, &a.Status, &a.IsLocked,
			&a.AnsweredCount, &a.ViolationCount, &a.Score, &a.StartedAt, &a.SubmittedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// PipelineStats is the grading and question generation backlog across a
// teacher's tests.
type PipelineStats struct {
	PendingGrading       int        `json:"pending_grading"`
	OldestPendingAt      *time.Time `json:"oldest_pending_at,omitempty"`
	NeedsReview          int        `json:"needs_review"`
	LockedAttempts       int        `json:"locked_attempts"`
	ActiveGenerations    int        `json:"active_generations"`
	FailedGenerationsDay int        `json:"failed_generations_24h"`
}

// GetPipelineStats counts submitted attempts still waiting for a grade,
// graded attempts flagged for review, locked attempts and generation runs.
func (r *MonitorRepository) GetPipelineStats(ctx context.Context, teacherID uuid.UUID) (*PipelineStats, error) {
	var st PipelineStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE a.status = 'submitted'),
		        MIN(a.submitted_at) FILTER (WHERE a.status = 'submitted'),
		        COUNT(*) FILTER (WHERE a.status = 'graded' AND a.needs_review),
		        COUNT(*) FILTER (WHERE a.status = 'in_progress' AND a.is_locked)
		 FROM test_attempts a
		 JOIN tests t ON t.id = a.test_id
		 WHERE t.teacher_id = $1 AND t.deleted_at IS NULL`,
		teacherID,
	).Scan(&st.PendingGrading, &st.OldestPendingAt, &st.NeedsReview, &st.LockedAttempts)
	if err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE g.status IN ('pending', 'processing')),
		        COUNT(*) FILTER (WHERE g.status = 'failed' AND g.created_at > NOW() - INTERVAL '24 hours')
		 FROM test_generation_logs g
		 JOIN tests t ON t.id = g.test_id
		 WHERE t.teacher_id = $1 AND t.deleted_at IS NULL`,
		teacherID,
	).Scan(&st.ActiveGenerations, &st.FailedGenerationsDay)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
