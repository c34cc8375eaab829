package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/umadex/umadex-backend/internal/database"
	"github.com/umadex/umadex-backend/internal/model"
)

// ReadingRepository handles UMARead assignments, chunks and progress rows.
type ReadingRepository struct {
	db database.DBTX
}

// NewReadingRepository creates a new ReadingRepository.
func NewReadingRepository(db database.DBTX) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *ReadingRepository) WithTx(tx pgx.Tx) *ReadingRepository {
	return &ReadingRepository{db: tx}
}

// GetAssignment retrieves a live (not soft-deleted) assignment with its chunk count.
func (r *ReadingRepository) GetAssignment(ctx context.Context, id uuid.UUID) (*model.ReadingAssignment, error) {
	a := &model.ReadingAssignment{}
	err := r.db.QueryRow(ctx,
		`SELECT a.id, a.teacher_id, a.classroom_id, a.title, a.initial_difficulty, a.created_at,
		        (SELECT COUNT(*) FROM reading_chunks c WHERE c.assignment_id = a.id)
		 FROM reading_assignments a
		 WHERE a.id = $1 AND a.deleted_at IS NULL`, id,
	).Scan(&a.ID, &a.TeacherID, &a.ClassroomID, &a.Title, &a.InitialDifficulty, &a.CreatedAt, &a.ChunkCount)
	if err != nil {
		return nil, notFound(err, "reading assignment")
	}
	return a, nil
}

// GetChunk retrieves chunk number n (1-based) of an assignment.
func (r *ReadingRepository) GetChunk(ctx context.Context, assignmentID uuid.UUID, n int) (*model.ReadingChunk, error) {
	c := &model.ReadingChunk{}
	err := r.db.QueryRow(ctx,
		`SELECT id, assignment_id, chunk_order, content
		 FROM reading_chunks
		 WHERE assignment_id = $1 AND chunk_order = $2`, assignmentID, n,
	).Scan(&c.ID, &c.AssignmentID, &c.ChunkOrder, &c.Content)
	if err != nil {
		return nil, notFound(err, "reading chunk")
	}
	return c, nil
}

const assignmentProgressColumns = `id, student_id, assignment_id, current_chunk, total_chunks_completed,
	difficulty_level, chunks_completed, status, started_at, completed_at, version`

func scanAssignmentProgress(row pgx.Row) (*model.AssignmentProgress, error) {
	p := &model.AssignmentProgress{}
	err := row.Scan(&p.ID, &p.StudentID, &p.AssignmentID, &p.CurrentChunk, &p.TotalChunksCompleted,
		&p.DifficultyLevel, &p.ChunksCompleted, &p.Status, &p.StartedAt, &p.CompletedAt, &p.Version)
	return p, err
}

// GetAssignmentProgress retrieves a student's rollup. lock takes a row lock
// and must only be used inside a transaction.
func (r *ReadingRepository) GetAssignmentProgress(ctx context.Context, studentID, assignmentID uuid.UUID, lock bool) (*model.AssignmentProgress, error) {
	p, err := scanAssignmentProgress(r.db.QueryRow(ctx, forUpdate(
		`SELECT `+assignmentProgressColumns+`
		 FROM student_assignment_progress
		 WHERE student_id = $1 AND assignment_id = $2`, lock), studentID, assignmentID))
	if err != nil {
		return nil, notFound(err, "assignment progress")
	}
	return p, nil
}

// CreateAssignmentProgress inserts the rollup row, or returns the existing
// one when a concurrent start already created it.
func (r *ReadingRepository) CreateAssignmentProgress(ctx context.Context, p *model.AssignmentProgress) (*model.AssignmentProgress, error) {
	created, err := scanAssignmentProgress(r.db.QueryRow(ctx,
		`INSERT INTO student_assignment_progress
		     (student_id, assignment_id, current_chunk, difficulty_level, chunks_completed, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (student_id, assignment_id) DO NOTHING
		 RETURNING `+assignmentProgressColumns,
		p.StudentID, p.AssignmentID, p.CurrentChunk, p.DifficultyLevel, p.ChunksCompleted, p.Status))
	if isNoRows(err) {
		return r.GetAssignmentProgress(ctx, p.StudentID, p.AssignmentID, false)
	}
	return created, err
}

// UpdateAssignmentProgress writes p back if its version is current.
func (r *ReadingRepository) UpdateAssignmentProgress(ctx context.Context, p *model.AssignmentProgress) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE student_assignment_progress
		 SET current_chunk = $1, total_chunks_completed = $2, difficulty_level = $3,
		     chunks_completed = $4, status = $5, completed_at = $6, version = version + 1
		 WHERE id = $7 AND version = $8`,
		p.CurrentChunk, p.TotalChunksCompleted, p.DifficultyLevel,
		p.ChunksCompleted, p.Status, p.CompletedAt, p.ID, p.Version)
	if err := checkVersion(tag, err, "assignment progress"); err != nil {
		return err
	}
	p.Version++
	return nil
}

const chunkProgressColumns = `id, student_id, assignment_id, chunk_number, summary_completed,
	comprehension_completed, current_difficulty, current_question, current_question_type,
	current_question_difficulty, expected_answer, attempts, completed_at, version`

func scanChunkProgress(row pgx.Row) (*model.ChunkProgress, error) {
	p := &model.ChunkProgress{}
	err := row.Scan(&p.ID, &p.StudentID, &p.AssignmentID, &p.ChunkNumber, &p.SummaryCompleted,
		&p.ComprehensionCompleted, &p.CurrentDifficulty, &p.CurrentQuestion, &p.CurrentQuestionType,
		&p.CurrentQuestionDifficulty, &p.ExpectedAnswer, &p.Attempts, &p.CompletedAt, &p.Version)
	return p, err
}

// GetChunkProgress retrieves a student's progress on one chunk.
func (r *ReadingRepository) GetChunkProgress(ctx context.Context, studentID, assignmentID uuid.UUID, chunk int, lock bool) (*model.ChunkProgress, error) {
	p, err := scanChunkProgress(r.db.QueryRow(ctx, forUpdate(
		`SELECT `+chunkProgressColumns+`
		 FROM student_chunk_progress
		 WHERE student_id = $1 AND assignment_id = $2 AND chunk_number = $3`, lock),
		studentID, assignmentID, chunk))
	if err != nil {
		return nil, notFound(err, "chunk progress")
	}
	return p, nil
}

// CreateChunkProgress lazily inserts the chunk row, returning the existing
// row on a concurrent insert.
func (r *ReadingRepository) CreateChunkProgress(ctx context.Context, p *model.ChunkProgress) (*model.ChunkProgress, error) {
	created, err := scanChunkProgress(r.db.QueryRow(ctx,
		`INSERT INTO student_chunk_progress (student_id, assignment_id, chunk_number, current_difficulty)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (student_id, assignment_id, chunk_number) DO NOTHING
		 RETURNING `+chunkProgressColumns,
		p.StudentID, p.AssignmentID, p.ChunkNumber, p.CurrentDifficulty))
	if isNoRows(err) {
		return r.GetChunkProgress(ctx, p.StudentID, p.AssignmentID, p.ChunkNumber, false)
	}
	return created, err
}

// UpdateChunkProgress writes p back if its version is current.
func (r *ReadingRepository) UpdateChunkProgress(ctx context.Context, p *model.ChunkProgress) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE student_chunk_progress
		 SET summary_completed = $1, comprehension_completed = $2, current_difficulty = $3,
		     current_question = $4, current_question_type = $5, current_question_difficulty = $6,
		     expected_answer = $7, attempts = $8, completed_at = $9, version = version + 1
		 WHERE id = $10 AND version = $11`,
		p.SummaryCompleted, p.ComprehensionCompleted, p.CurrentDifficulty,
		p.CurrentQuestion, p.CurrentQuestionType, p.CurrentQuestionDifficulty,
		p.ExpectedAnswer, p.Attempts, p.CompletedAt, p.ID, p.Version)
	if err := checkVersion(tag, err, "chunk progress"); err != nil {
		return err
	}
	p.Version++
	return nil
}

// ListChunkProgress returns every chunk row of a student's assignment.
func (r *ReadingRepository) ListChunkProgress(ctx context.Context, studentID, assignmentID uuid.UUID) ([]model.ChunkProgress, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkProgressColumns+`
		 FROM student_chunk_progress
		 WHERE student_id = $1 AND assignment_id = $2
		 ORDER BY chunk_number`, studentID, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.ChunkProgress
	for rows.Next() {
		p, err := scanChunkProgress(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// InsertResponse appends an answer to the audit trail.
func (r *ReadingRepository) InsertResponse(ctx context.Context, resp *model.ReadingResponse) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO reading_responses
		     (chunk_progress_id, question_type, question, answer, is_correct, bypassed, feedback, difficulty)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		resp.ChunkProgressID, resp.QuestionType, resp.Question, resp.Answer,
		resp.IsCorrect, resp.Bypassed, resp.Feedback, resp.Difficulty,
	).Scan(&resp.ID, &resp.CreatedAt)
}

// IsEnrolled reports whether the student belongs to the classroom.
func (r *ReadingRepository) IsEnrolled(ctx context.Context, classroomID, studentID uuid.UUID) (bool, error) {
	return isEnrolled(ctx, r.db, classroomID, studentID)
}

func isEnrolled(ctx context.Context, db database.DBTX, classroomID, studentID uuid.UUID) (bool, error) {
	var ok bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM classroom_students cs
		     JOIN classrooms c ON c.id = cs.classroom_id
		     WHERE cs.classroom_id = $1 AND cs.student_id = $2 AND c.deleted_at IS NULL
		 )`, classroomID, studentID,
	).Scan(&ok)
	return ok, err
}
