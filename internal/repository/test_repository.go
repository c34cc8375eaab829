package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/umadex/umadex-backend/internal/database"
	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/schedule"
)

// TestRepository handles UMATest definitions, their questions and
// question generation logs.
type TestRepository struct {
	db database.DBTX
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(db database.DBTX) *TestRepository {
	return &TestRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *TestRepository) WithTx(tx pgx.Tx) *TestRepository {
	return &TestRepository{db: tx}
}

// GetByID retrieves a live test by its UUID.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	err := r.db.QueryRow(ctx,
		`SELECT id, teacher_id, classroom_id, title, content, status, attempt_limit,
		        time_limit_minutes, schedule, created_at
		 FROM tests
		 WHERE id = $1 AND deleted_at IS NULL`, id,
	).Scan(&t.ID, &t.TeacherID, &t.ClassroomID, &t.Title, &t.Content, &t.Status, &t.AttemptLimit,
		&t.TimeLimitMinutes, &t.Schedule, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err, "test")
	}
	return t, nil
}

// UpdateSchedule replaces the availability schedule of a test. A nil
// schedule removes it.
func (r *TestRepository) UpdateSchedule(ctx context.Context, id uuid.UUID, s *schedule.Schedule) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tests SET schedule = $1 WHERE id = $2 AND deleted_at IS NULL`, s, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, "test")
	}
	return nil
}

// GetQuestions returns the questions of a test ordered by index.
func (r *TestRepository) GetQuestions(ctx context.Context, testID uuid.UUID) ([]model.TestQuestion, error) {
	rows, err := r.db.Query(ctx,
		`SELECT test_id, question_index, question, answer_key, rubric
		 FROM test_questions
		 WHERE test_id = $1
		 ORDER BY question_index`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.TestQuestion
	for rows.Next() {
		var q model.TestQuestion
		if err := rows.Scan(&q.TestID, &q.Index, &q.Question, &q.AnswerKey, &q.Rubric); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ReplaceQuestions deletes and re-inserts every question of a test.
// Callers run it inside a transaction.
func (r *TestRepository) ReplaceQuestions(ctx context.Context, testID uuid.UUID, questions []model.TestQuestion) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM test_questions WHERE test_id = $1`, testID); err != nil {
		return err
	}
	for _, q := range questions {
		if _, err := r.db.Exec(ctx,
			`INSERT INTO test_questions (test_id, question_index, question, answer_key, rubric)
			 VALUES ($1, $2, $3, $4, $5)`,
			testID, q.Index, q.Question, q.AnswerKey, q.Rubric); err != nil {
			return err
		}
	}
	return nil
}

// IsEnrolled reports whether the student belongs to the classroom.
func (r *TestRepository) IsEnrolled(ctx context.Context, classroomID, studentID uuid.UUID) (bool, error) {
	return isEnrolled(ctx, r.db, classroomID, studentID)
}

// ─── Generation logs ────────────────────────────────────────────────────

const generationLogColumns = `id, test_id, requested_by, status, question_count, error,
	created_at, started_at, completed_at`

func scanGenerationLog(row pgx.Row) (*model.GenerationLog, error) {
	l := &model.GenerationLog{}
	err := row.Scan(&l.ID, &l.TestID, &l.RequestedBy, &l.Status, &l.QuestionCount, &l.Error,
		&l.CreatedAt, &l.StartedAt, &l.CompletedAt)
	return l, err
}

// CreateGenerationLog inserts a pending generation task.
func (r *TestRepository) CreateGenerationLog(ctx context.Context, testID, requestedBy uuid.UUID) (*model.GenerationLog, error) {
	return scanGenerationLog(r.db.QueryRow(ctx,
		`INSERT INTO test_generation_logs (test_id, requested_by, status)
		 VALUES ($1, $2, $3)
		 RETURNING `+generationLogColumns,
		testID, requestedBy, model.GenerationPending))
}

// ExpireStaleGenerations fails unfinished tasks of the test created before
// cutoff so a crashed worker cannot block new runs.
func (r *TestRepository) ExpireStaleGenerations(ctx context.Context, testID uuid.UUID, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE test_generation_logs
		 SET status = $1, error = 'timed out', completed_at = NOW()
		 WHERE test_id = $2 AND status IN ($3, $4) AND created_at < $5`,
		model.GenerationFailed, testID, model.GenerationPending, model.GenerationProcessing, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetGenerationLog retrieves a generation task for polling.
func (r *TestRepository) GetGenerationLog(ctx context.Context, id uuid.UUID) (*model.GenerationLog, error) {
	l, err := scanGenerationLog(r.db.QueryRow(ctx,
		`SELECT `+generationLogColumns+` FROM test_generation_logs WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "generation log")
	}
	return l, nil
}

// MarkGenerationProcessing moves a pending task to processing. It reports
// false when the task was already picked up.
func (r *TestRepository) MarkGenerationProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE test_generation_logs SET status = $1, started_at = NOW()
		 WHERE id = $2 AND status = $3`,
		model.GenerationProcessing, id, model.GenerationPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FinishGeneration records the terminal state of a task.
func (r *TestRepository) FinishGeneration(ctx context.Context, id uuid.UUID, status model.GenerationStatus, count int, errMsg *string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE test_generation_logs
		 SET status = $1, question_count = $2, error = $3, completed_at = NOW()
		 WHERE id = $4`,
		status, count, errMsg, id)
	return err
}
