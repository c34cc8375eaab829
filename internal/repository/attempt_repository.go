package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/umadex/umadex-backend/internal/database"
	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/scoring"
)

// AttemptRepository handles test attempts, their per-question evaluations
// and teacher overrides.
type AttemptRepository struct {
	db database.DBTX
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(db database.DBTX) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *AttemptRepository) WithTx(tx pgx.Tx) *AttemptRepository {
	return &AttemptRepository{db: tx}
}

const attemptColumns = `id, test_id, student_id, attempt_number, status, answers, score, passed,
	needs_review, quality_notes, is_locked, security_violations, started_at, submitted_at,
	evaluated_at, version`

func scanAttempt(row pgx.Row) (*model.TestAttempt, error) {
	a := &model.TestAttempt{}
	err := row.Scan(&a.ID, &a.TestID, &a.StudentID, &a.AttemptNumber, &a.Status, &a.Answers, &a.Score, &a.Passed,
		&a.NeedsReview, &a.QualityNotes, &a.IsLocked, &a.SecurityViolations, &a.StartedAt, &a.SubmittedAt,
		&a.EvaluatedAt, &a.Version)
	if a.Answers == nil {
		a.Answers = map[int]string{}
	}
	return a, err
}

// GetByID retrieves an attempt. lock takes a row lock inside a transaction.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID, lock bool) (*model.TestAttempt, error) {
	a, err := scanAttempt(r.db.QueryRow(ctx, forUpdate(
		`SELECT `+attemptColumns+` FROM test_attempts WHERE id = $1`, lock), id))
	if err != nil {
		return nil, notFound(err, "test attempt")
	}
	return a, nil
}

// GetInProgress returns the student's open attempt on a test.
func (r *AttemptRepository) GetInProgress(ctx context.Context, testID, studentID uuid.UUID) (*model.TestAttempt, error) {
	a, err := scanAttempt(r.db.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM test_attempts
		 WHERE test_id = $1 AND student_id = $2 AND status = $3`,
		testID, studentID, model.AttemptInProgress))
	if err != nil {
		return nil, notFound(err, "test attempt")
	}
	return a, nil
}

// CountForStudent returns how many attempts the student has made on a test.
func (r *AttemptRepository) CountForStudent(ctx context.Context, testID, studentID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM test_attempts WHERE test_id = $1 AND student_id = $2`,
		testID, studentID,
	).Scan(&n)
	return n, err
}

// Create inserts a fresh in-progress attempt.
func (r *AttemptRepository) Create(ctx context.Context, testID, studentID uuid.UUID, number int) (*model.TestAttempt, error) {
	return scanAttempt(r.db.QueryRow(ctx,
		`INSERT INTO test_attempts (test_id, student_id, attempt_number, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+attemptColumns,
		testID, studentID, number, model.AttemptInProgress))
}

// Update writes a back if its version is current.
func (r *AttemptRepository) Update(ctx context.Context, a *model.TestAttempt) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE test_attempts
		 SET status = $1, answers = $2, score = $3, passed = $4, needs_review = $5,
		     quality_notes = $6, is_locked = $7, security_violations = $8,
		     started_at = $9, submitted_at = $10, evaluated_at = $11, version = version + 1
		 WHERE id = $12 AND version = $13`,
		a.Status, a.Answers, a.Score, a.Passed, a.NeedsReview,
		nonNil(a.QualityNotes), a.IsLocked, nonNilViolations(a.SecurityViolations),
		a.StartedAt, a.SubmittedAt, a.EvaluatedAt, a.ID, a.Version)
	if err := checkVersion(tag, err, "test attempt"); err != nil {
		return err
	}
	a.Version++
	return nil
}

// SaveAnswer sets one answer in place. It reports false when the attempt is
// not open for answers (submitted, locked or missing).
func (r *AttemptRepository) SaveAnswer(ctx context.Context, id, studentID uuid.UUID, index int, answer string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE test_attempts
		 SET answers = jsonb_set(answers, ARRAY[$3::text], to_jsonb($4::text)), version = version + 1
		 WHERE id = $1 AND student_id = $2 AND status = $5 AND NOT is_locked`,
		id, studentID, index, answer, model.AttemptInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListByTest returns every attempt on a test, newest first.
func (r *AttemptRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.TestAttempt, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM test_attempts
		 WHERE test_id = $1
		 ORDER BY started_at DESC`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.TestAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// ─── Evaluations ────────────────────────────────────────────────────────

// ReplaceEvaluations stores the per-question grades of an attempt,
// replacing any earlier grading.
func (r *AttemptRepository) ReplaceEvaluations(ctx context.Context, attemptID uuid.UUID, evals []scoring.Evaluation) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM question_evaluations WHERE attempt_id = $1`, attemptID); err != nil {
		return err
	}
	for _, e := range evals {
		if err := r.UpsertEvaluation(ctx, attemptID, e); err != nil {
			return err
		}
	}
	return nil
}

// UpsertEvaluation inserts or replaces the grade of one question.
func (r *AttemptRepository) UpsertEvaluation(ctx context.Context, attemptID uuid.UUID, e scoring.Evaluation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO question_evaluations
		     (attempt_id, question_index, rubric_score, points_earned, max_points,
		      rationale, feedback, confidence, unusual_patterns)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (attempt_id, question_index) DO UPDATE SET
		     rubric_score = EXCLUDED.rubric_score,
		     points_earned = EXCLUDED.points_earned,
		     max_points = EXCLUDED.max_points,
		     rationale = EXCLUDED.rationale,
		     feedback = EXCLUDED.feedback,
		     confidence = EXCLUDED.confidence,
		     unusual_patterns = EXCLUDED.unusual_patterns`,
		attemptID, e.QuestionIndex, e.RubricScore, e.PointsEarned, e.MaxPoints,
		e.Rationale, e.Feedback, e.Confidence, nonNil(e.UnusualPatterns))
	return err
}

// ListEvaluations returns an attempt's grades ordered by question.
func (r *AttemptRepository) ListEvaluations(ctx context.Context, attemptID uuid.UUID) ([]model.QuestionEvaluation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, attempt_id, question_index, rubric_score, points_earned, max_points,
		        rationale, feedback, confidence, unusual_patterns, created_at
		 FROM question_evaluations
		 WHERE attempt_id = $1
		 ORDER BY question_index`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.QuestionEvaluation
	for rows.Next() {
		var e model.QuestionEvaluation
		if err := rows.Scan(&e.ID, &e.AttemptID, &e.QuestionIndex, &e.RubricScore, &e.PointsEarned, &e.MaxPoints,
			&e.Rationale, &e.Feedback, &e.Confidence, &e.UnusualPatterns, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// ─── Teacher overrides ──────────────────────────────────────────────────

// UpsertOverride records a manual score change. A second override of the
// same question (or of the whole attempt) replaces the first but keeps its
// original score.
func (r *AttemptRepository) UpsertOverride(ctx context.Context, o *model.TeacherOverride) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO teacher_overrides
		     (attempt_id, teacher_id, question_index, original_score, override_score, reason, feedback)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (attempt_id, (COALESCE(question_index, -1))) DO UPDATE SET
		     teacher_id = EXCLUDED.teacher_id,
		     override_score = EXCLUDED.override_score,
		     reason = EXCLUDED.reason,
		     feedback = EXCLUDED.feedback,
		     updated_at = NOW()
		 RETURNING id, original_score, created_at, updated_at`,
		o.AttemptID, o.TeacherID, o.QuestionIndex, o.OriginalScore, o.OverrideScore, o.Reason, o.Feedback,
	).Scan(&o.ID, &o.OriginalScore, &o.CreatedAt, &o.UpdatedAt)
}

// ListOverrides returns the override audit trail of an attempt.
func (r *AttemptRepository) ListOverrides(ctx context.Context, attemptID uuid.UUID) ([]model.TeacherOverride, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, attempt_id, teacher_id, question_index, original_score, override_score,
		        reason, feedback, created_at, updated_at
		 FROM teacher_overrides
		 WHERE attempt_id = $1
		 ORDER BY created_at`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.TeacherOverride
	for rows.Next() {
		var o model.TeacherOverride
		if err := rows.Scan(&o.ID, &o.AttemptID, &o.TeacherID, &o.QuestionIndex, &o.OriginalScore, &o.OverrideScore,
			&o.Reason, &o.Feedback, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilViolations(v []model.SecurityViolation) []model.SecurityViolation {
	if v == nil {
		return []model.SecurityViolation{}
	}
	return v
}
