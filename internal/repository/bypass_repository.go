package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/umadex/umadex-backend/internal/apperror"
	"github.com/umadex/umadex-backend/internal/bypass"
	"github.com/umadex/umadex-backend/internal/database"
	"github.com/umadex/umadex-backend/internal/model"
)

// BypassRepository stores teachers' permanent bypass codes, one-time
// override codes and the usage audit trail. It implements bypass.Store.
type BypassRepository struct {
	db database.DBTX
}

// NewBypassRepository creates a new BypassRepository.
func NewBypassRepository(db database.DBTX) *BypassRepository {
	return &BypassRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *BypassRepository) WithTx(tx pgx.Tx) *BypassRepository {
	return &BypassRepository{db: tx}
}

// ownerQueries resolve the teacher who owns a bypass context.
var ownerQueries = map[bypass.ContextType]string{
	bypass.ContextReadingChunk: `SELECT a.teacher_id FROM reading_chunks c
		JOIN reading_assignments a ON a.id = c.assignment_id
		WHERE c.id = $1`,
	bypass.ContextTestAttempt: `SELECT t.teacher_id FROM test_attempts at
		JOIN tests t ON t.id = at.test_id
		WHERE at.id = $1`,
	bypass.ContextTestSchedule: `SELECT teacher_id FROM tests WHERE id = $1`,
}

// ContextOwner returns the teacher who owns the context object.
func (r *BypassRepository) ContextOwner(ctx context.Context, c bypass.Context) (uuid.UUID, error) {
	q, ok := ownerQueries[c.Type]
	if !ok {
		return uuid.Nil, bypass.ErrInvalidContext
	}
	var teacherID uuid.UUID
	if err := r.db.QueryRow(ctx, q, c.ID).Scan(&teacherID); err != nil {
		return uuid.Nil, notFound(err, string(c.Type))
	}
	return teacherID, nil
}

// PermanentCodeHash returns the hash of the permanent code of the teacher
// owning the context.
func (r *BypassRepository) PermanentCodeHash(ctx context.Context, c bypass.Context) (uuid.UUID, []byte, error) {
	teacherID, err := r.ContextOwner(ctx, c)
	if err != nil {
		return uuid.Nil, nil, err
	}
	var hash *string
	err = r.db.QueryRow(ctx,
		`SELECT bypass_code_hash FROM teachers WHERE id = $1`, teacherID,
	).Scan(&hash)
	if err != nil {
		return uuid.Nil, nil, notFound(err, "teacher")
	}
	if hash == nil || *hash == "" {
		return uuid.Nil, nil, apperror.ErrNotFound.Withf("bypass code")
	}
	return teacherID, []byte(*hash), nil
}

// ConsumeOneTimeCode uses one override code in a single statement so two
// concurrent submissions can never both succeed on a single-use code.
func (r *BypassRepository) ConsumeOneTimeCode(ctx context.Context, code string, c bypass.Context, studentID uuid.UUID) (uuid.UUID, error) {
	var teacherID uuid.UUID
	err := r.db.QueryRow(ctx,
		`UPDATE override_codes
		 SET current_uses = current_uses + 1
		 WHERE code = $1 AND student_id = $2 AND context_type = $3 AND context_id = $4
		   AND current_uses < max_uses AND expires_at > NOW()
		 RETURNING teacher_id`,
		code, studentID, c.Type, c.ID,
	).Scan(&teacherID)
	if err != nil {
		return uuid.Nil, notFound(err, "override code")
	}
	return teacherID, nil
}

// SetPermanentCode stores the bcrypt hash of a teacher's permanent code.
func (r *BypassRepository) SetPermanentCode(ctx context.Context, teacherID uuid.UUID, hash []byte) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE teachers SET bypass_code_hash = $1, bypass_code_updated_at = NOW() WHERE id = $2`,
		string(hash), teacherID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, "teacher")
	}
	return nil
}

const maxCodeCollisions = 3

// CreateOverrideCode generates and stores a one-time code, retrying on the
// rare collision with an existing code.
func (r *BypassRepository) CreateOverrideCode(ctx context.Context, oc *model.OverrideCode) error {
	for i := 0; i < maxCodeCollisions; i++ {
		code, err := bypass.GenerateCode()
		if err != nil {
			return err
		}
		oc.Code = code
		err = r.db.QueryRow(ctx,
			`INSERT INTO override_codes
			     (teacher_id, student_id, context_type, context_id, code, expires_at, max_uses)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, current_uses, created_at`,
			oc.TeacherID, oc.StudentID, oc.ContextType, oc.ContextID, oc.Code, oc.ExpiresAt, oc.MaxUses,
		).Scan(&oc.ID, &oc.CurrentUses, &oc.CreatedAt)
		if database.IsUniqueViolation(err) {
			continue
		}
		return err
	}
	return fmt.Errorf("generate override code: %d collisions", maxCodeCollisions)
}

// RecordUsage appends an accepted bypass to the audit trail.
func (r *BypassRepository) RecordUsage(ctx context.Context, u *model.OverrideUsage) error {
	if u.UsedAt.IsZero() {
		u.UsedAt = time.Now()
	}
	return r.db.QueryRow(ctx,
		`INSERT INTO override_usages
		     (student_id, teacher_id, context_type, context_id, code_type, attempt_id, used_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		u.StudentID, u.TeacherID, u.ContextType, u.ContextID, u.CodeType, u.AttemptID, u.UsedAt,
	).Scan(&u.ID)
}

// IsStudentInTeacherClass reports whether the student is enrolled in any
// live classroom of the teacher.
func (r *BypassRepository) IsStudentInTeacherClass(ctx context.Context, teacherID, studentID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM classroom_students cs
		     JOIN classrooms c ON c.id = cs.classroom_id
		     WHERE c.teacher_id = $1 AND cs.student_id = $2 AND c.deleted_at IS NULL
		 )`, teacherID, studentID,
	).Scan(&ok)
	return ok, err
}
