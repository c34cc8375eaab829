package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/umadex/umadex-backend/internal/database"
	"github.com/umadex/umadex-backend/internal/debate"
	"github.com/umadex/umadex-backend/internal/model"
)

// DebateRepository handles UMADebate assignments, student debates, posts,
// challenges and coaching feedback.
type DebateRepository struct {
	db database.DBTX
}

// NewDebateRepository creates a new DebateRepository.
func NewDebateRepository(db database.DBTX) *DebateRepository {
	return &DebateRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *DebateRepository) WithTx(tx pgx.Tx) *DebateRepository {
	return &DebateRepository{db: tx}
}

// GetAssignment retrieves a live debate assignment.
func (r *DebateRepository) GetAssignment(ctx context.Context, id uuid.UUID) (*model.DebateAssignment, error) {
	a := &model.DebateAssignment{}
	err := r.db.QueryRow(ctx,
		`SELECT id, teacher_id, classroom_id, topic, time_limit_hours, coaching_enabled
		 FROM debate_assignments
		 WHERE id = $1 AND deleted_at IS NULL`, id,
	).Scan(&a.ID, &a.TeacherID, &a.ClassroomID, &a.Topic, &a.TimeLimitHours, &a.CoachingEnabled)
	if err != nil {
		return nil, notFound(err, "debate assignment")
	}
	return a, nil
}

// IsEnrolled reports whether the student belongs to the classroom.
func (r *DebateRepository) IsEnrolled(ctx context.Context, classroomID, studentID uuid.UUID) (bool, error) {
	return isEnrolled(ctx, r.db, classroomID, studentID)
}

const studentDebateColumns = `id, student_id, assignment_id, current_debate, current_round,
	debate_1_position, debate_2_position, debate_3_position, status, fallacy_scheduled_debate,
	fallacy_counter, deadline, debate_1_percentage, debate_2_percentage, debate_3_percentage,
	final_grade, created_at, version`

func scanStudentDebate(row pgx.Row) (*model.StudentDebate, error) {
	d := &model.StudentDebate{}
	err := row.Scan(&d.ID, &d.StudentID, &d.AssignmentID, &d.CurrentDebate, &d.CurrentRound,
		&d.Debate1Position, &d.Debate2Position, &d.Debate3Position, &d.Status, &d.FallacyScheduledDebate,
		&d.FallacyCounter, &d.Deadline, &d.Debate1Percentage, &d.Debate2Percentage, &d.Debate3Percentage,
		&d.FinalGrade, &d.CreatedAt, &d.Version)
	return d, err
}

// GetStudentDebate retrieves a student's debate on an assignment. lock
// takes a row lock inside a transaction.
func (r *DebateRepository) GetStudentDebate(ctx context.Context, studentID, assignmentID uuid.UUID, lock bool) (*model.StudentDebate, error) {
	d, err := scanStudentDebate(r.db.QueryRow(ctx, forUpdate(
		`SELECT `+studentDebateColumns+`
		 FROM student_debates
		 WHERE student_id = $1 AND assignment_id = $2`, lock), studentID, assignmentID))
	if err != nil {
		return nil, notFound(err, "student debate")
	}
	return d, nil
}

// CreateStudentDebate inserts d, returning the existing row when the
// student already started this assignment.
func (r *DebateRepository) CreateStudentDebate(ctx context.Context, d *model.StudentDebate) (*model.StudentDebate, bool, error) {
	created, err := scanStudentDebate(r.db.QueryRow(ctx,
		`INSERT INTO student_debates
		     (student_id, assignment_id, current_debate, current_round, debate_1_position,
		      debate_2_position, status, fallacy_scheduled_debate, deadline)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (student_id, assignment_id) DO NOTHING
		 RETURNING `+studentDebateColumns,
		d.StudentID, d.AssignmentID, d.CurrentDebate, d.CurrentRound, d.Debate1Position,
		d.Debate2Position, d.Status, d.FallacyScheduledDebate, d.Deadline))
	if isNoRows(err) {
		existing, err := r.GetStudentDebate(ctx, d.StudentID, d.AssignmentID, false)
		return existing, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// UpdateStudentDebate writes d back if its version is current.
func (r *DebateRepository) UpdateStudentDebate(ctx context.Context, d *model.StudentDebate) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE student_debates
		 SET current_debate = $1, current_round = $2, debate_3_position = $3, status = $4,
		     fallacy_counter = $5, deadline = $6, debate_1_percentage = $7,
		     debate_2_percentage = $8, debate_3_percentage = $9, final_grade = $10,
		     version = version + 1
		 WHERE id = $11 AND version = $12`,
		d.CurrentDebate, d.CurrentRound, d.Debate3Position, d.Status,
		d.FallacyCounter, d.Deadline, d.Debate1Percentage,
		d.Debate2Percentage, d.Debate3Percentage, d.FinalGrade,
		d.ID, d.Version)
	if err := checkVersion(tag, err, "student debate"); err != nil {
		return err
	}
	d.Version++
	return nil
}

// ─── Posts ──────────────────────────────────────────────────────────────

const postColumns = `id, student_debate_id, debate_number, statement_number, post_type, content,
	is_fallacy, fallacy_type, appeal_type, clarity, evidence, logic, persuasiveness, rebuttal,
	percentage, bonus, feedback, created_at`

func scanPost(row pgx.Row) (*model.DebatePost, error) {
	p := &model.DebatePost{}
	var clarity, evidence, logic, persuasiveness, rebuttal *int
	err := row.Scan(&p.ID, &p.StudentDebateID, &p.DebateNumber, &p.StatementNumber, &p.PostType, &p.Content,
		&p.IsFallacy, &p.FallacyType, &p.AppealType, &clarity, &evidence, &logic, &persuasiveness, &rebuttal,
		&p.Percentage, &p.Bonus, &p.Feedback, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if clarity != nil && evidence != nil && logic != nil && persuasiveness != nil && rebuttal != nil {
		p.Scores = &debate.PostScores{
			Clarity:        *clarity,
			Evidence:       *evidence,
			Logic:          *logic,
			Persuasiveness: *persuasiveness,
			Rebuttal:       *rebuttal,
		}
	}
	return p, nil
}

// ListPosts returns the posts of one debate in statement order.
func (r *DebateRepository) ListPosts(ctx context.Context, studentDebateID uuid.UUID, debateNumber int) ([]model.DebatePost, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+postColumns+`
		 FROM debate_posts
		 WHERE student_debate_id = $1 AND debate_number = $2
		 ORDER BY statement_number`, studentDebateID, debateNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []model.DebatePost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

// GetPost retrieves a post by its UUID.
func (r *DebateRepository) GetPost(ctx context.Context, id uuid.UUID) (*model.DebatePost, error) {
	p, err := scanPost(r.db.QueryRow(ctx,
		`SELECT `+postColumns+` FROM debate_posts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "debate post")
	}
	return p, nil
}

// InsertPost stores a post. A duplicate statement number is reported as a
// unique violation.
func (r *DebateRepository) InsertPost(ctx context.Context, p *model.DebatePost) error {
	var clarity, evidence, logic, persuasiveness, rebuttal *int
	if s := p.Scores; s != nil {
		clarity, evidence, logic, persuasiveness, rebuttal = &s.Clarity, &s.Evidence, &s.Logic, &s.Persuasiveness, &s.Rebuttal
	}
	return r.db.QueryRow(ctx,
		`INSERT INTO debate_posts
		     (student_debate_id, debate_number, statement_number, post_type, content,
		      is_fallacy, fallacy_type, appeal_type, clarity, evidence, logic,
		      persuasiveness, rebuttal, percentage, bonus, feedback)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING id, created_at`,
		p.StudentDebateID, p.DebateNumber, p.StatementNumber, p.PostType, p.Content,
		p.IsFallacy, p.FallacyType, p.AppealType, clarity, evidence, logic,
		persuasiveness, rebuttal, p.Percentage, p.Bonus, p.Feedback,
	).Scan(&p.ID, &p.CreatedAt)
}

// LatestStudentPost returns the student's most recent post across all
// debates of the assignment.
func (r *DebateRepository) LatestStudentPost(ctx context.Context, studentDebateID uuid.UUID) (*model.DebatePost, error) {
	p, err := scanPost(r.db.QueryRow(ctx,
		`SELECT `+postColumns+`
		 FROM debate_posts
		 WHERE student_debate_id = $1 AND post_type = $2
		 ORDER BY debate_number DESC, statement_number DESC
		 LIMIT 1`, studentDebateID, model.PostStudent))
	if err != nil {
		return nil, notFound(err, "student post")
	}
	return p, nil
}

// AddBonus adds points to a post's challenge bonus.
func (r *DebateRepository) AddBonus(ctx context.Context, postID uuid.UUID, points float64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE debate_posts SET bonus = bonus + $1 WHERE id = $2`, points, postID)
	return err
}

// HasFallacy reports whether an AI post of the debate already carried a
// fallacy.
func (r *DebateRepository) HasFallacy(ctx context.Context, studentDebateID uuid.UUID, debateNumber int) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM debate_posts
		     WHERE student_debate_id = $1 AND debate_number = $2 AND is_fallacy
		 )`, studentDebateID, debateNumber,
	).Scan(&ok)
	return ok, err
}

// ─── Challenges ─────────────────────────────────────────────────────────

// InsertChallenge stores a challenge. A second challenge of the same post
// by the same student is a unique violation.
func (r *DebateRepository) InsertChallenge(ctx context.Context, c *model.DebateChallenge) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO debate_challenges (post_id, student_id, guess, explanation, is_correct, points)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		c.PostID, c.StudentID, c.Guess, c.Explanation, c.IsCorrect, c.Points,
	).Scan(&c.ID, &c.CreatedAt)
}

// ─── Feedback ───────────────────────────────────────────────────────────

// InsertFeedback stores coaching for a finished debate. It reports false
// when feedback already existed.
func (r *DebateRepository) InsertFeedback(ctx context.Context, f *model.DebateFeedback) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO debate_feedback
		     (student_debate_id, debate_number, strengths, improvements, suggestions, average)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (student_debate_id, debate_number) DO NOTHING`,
		f.StudentDebateID, f.DebateNumber, nonNil(f.Strengths), nonNil(f.Improvements),
		nonNil(f.Suggestions), f.Average)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListFeedback returns the coaching of every finished debate.
func (r *DebateRepository) ListFeedback(ctx context.Context, studentDebateID uuid.UUID) ([]model.DebateFeedback, error) {
	rows, err := r.db.Query(ctx,
		`SELECT student_debate_id, debate_number, strengths, improvements, suggestions, average
		 FROM debate_feedback
		 WHERE student_debate_id = $1
		 ORDER BY debate_number`, studentDebateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.DebateFeedback
	for rows.Next() {
		var f model.DebateFeedback
		if err := rows.Scan(&f.StudentDebateID, &f.DebateNumber, &f.Strengths, &f.Improvements,
			&f.Suggestions, &f.Average); err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return list, rows.Err()
}
