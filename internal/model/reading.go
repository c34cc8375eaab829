package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/umadex/umadex-backend/internal/progress"
)

// ReadingAssignment is a teacher-authored UMARead text split into chunks.
type ReadingAssignment struct {
	ID                uuid.UUID `json:"id"`
	TeacherID         uuid.UUID `json:"teacher_id"`
	ClassroomID       uuid.UUID `json:"classroom_id"`
	Title             string    `json:"title"`
	InitialDifficulty int       `json:"initial_difficulty"`
	ChunkCount        int       `json:"chunk_count"`
	CreatedAt         time.Time `json:"created_at"`
}

// ReadingChunk is one section of a reading assignment. ChunkOrder is 1-based.
type ReadingChunk struct {
	ID           uuid.UUID `json:"id"`
	AssignmentID uuid.UUID `json:"assignment_id"`
	ChunkOrder   int       `json:"chunk_order"`
	Content      string    `json:"content"`
}

// AssignmentProgress is a student's rollup over a reading assignment.
type AssignmentProgress struct {
	ID                   uuid.UUID  `json:"id"`
	StudentID            uuid.UUID  `json:"student_id"`
	AssignmentID         uuid.UUID  `json:"assignment_id"`
	CurrentChunk         int        `json:"current_chunk"`
	TotalChunksCompleted int        `json:"total_chunks_completed"`
	DifficultyLevel      int        `json:"difficulty_level"`
	ChunksCompleted      []int      `json:"chunks_completed"`
	Status               string     `json:"status"`
	StartedAt            time.Time  `json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	Version              int        `json:"-"`
}

func (p *AssignmentProgress) State() progress.AssignmentState {
	return progress.AssignmentState{
		CurrentUnitIndex:    p.CurrentChunk,
		TotalUnitsCompleted: p.TotalChunksCompleted,
		DifficultyLevel:     p.DifficultyLevel,
		UnitsCompleted:      append([]int(nil), p.ChunksCompleted...),
		Status:              p.Status,
		CompletedAt:         p.CompletedAt,
	}
}

func (p *AssignmentProgress) Apply(s progress.AssignmentState) {
	p.CurrentChunk = s.CurrentUnitIndex
	p.TotalChunksCompleted = s.TotalUnitsCompleted
	p.DifficultyLevel = s.DifficultyLevel
	p.ChunksCompleted = s.UnitsCompleted
	p.Status = s.Status
	p.CompletedAt = s.CompletedAt
}

// ChunkProgress is a student's two-phase progress on one chunk, including
// the question currently shown so repeated fetches return the same text.
type ChunkProgress struct {
	ID                        uuid.UUID  `json:"id"`
	StudentID                 uuid.UUID  `json:"student_id"`
	AssignmentID              uuid.UUID  `json:"assignment_id"`
	ChunkNumber               int        `json:"chunk_number"`
	SummaryCompleted          bool       `json:"summary_completed"`
	ComprehensionCompleted    bool       `json:"comprehension_completed"`
	CurrentDifficulty         int        `json:"current_difficulty"`
	CurrentQuestion           *string    `json:"-"`
	CurrentQuestionType       *string    `json:"-"`
	CurrentQuestionDifficulty *int       `json:"-"`
	ExpectedAnswer            *string    `json:"-"`
	Attempts                  int        `json:"attempts"`
	CompletedAt               *time.Time `json:"completed_at,omitempty"`
	Version                   int        `json:"-"`
}

func (p *ChunkProgress) State() progress.UnitState {
	return progress.UnitState{
		SummaryCompleted:       p.SummaryCompleted,
		ComprehensionCompleted: p.ComprehensionCompleted,
		CurrentDifficulty:      p.CurrentDifficulty,
		CompletedAt:            p.CompletedAt,
	}
}

func (p *ChunkProgress) Apply(s progress.UnitState) {
	p.SummaryCompleted = s.SummaryCompleted
	p.ComprehensionCompleted = s.ComprehensionCompleted
	p.CurrentDifficulty = s.CurrentDifficulty
	p.CompletedAt = s.CompletedAt
}

// CachedQuestion returns the stored question when it was generated for
// phase at difficulty.
func (p *ChunkProgress) CachedQuestion(phase progress.Phase, difficulty int) (string, bool) {
	if p.CurrentQuestion == nil || p.CurrentQuestionType == nil || p.CurrentQuestionDifficulty == nil {
		return "", false
	}
	if *p.CurrentQuestionType != string(phase) || *p.CurrentQuestionDifficulty != difficulty {
		return "", false
	}
	return *p.CurrentQuestion, true
}

// SetQuestion stores the question shown for phase at difficulty.
func (p *ChunkProgress) SetQuestion(phase progress.Phase, difficulty int, question, expected string) {
	qt := string(phase)
	p.CurrentQuestion = &question
	p.CurrentQuestionType = &qt
	p.CurrentQuestionDifficulty = &difficulty
	p.ExpectedAnswer = &expected
}

// ClearQuestion forces the next fetch to generate a new question.
func (p *ChunkProgress) ClearQuestion() {
	p.CurrentQuestion = nil
	p.CurrentQuestionType = nil
	p.CurrentQuestionDifficulty = nil
	p.ExpectedAnswer = nil
}

// ReadingResponse is the audit row of one answer submission.
type ReadingResponse struct {
	ID              uuid.UUID `json:"id"`
	ChunkProgressID uuid.UUID `json:"chunk_progress_id"`
	QuestionType    string    `json:"question_type"`
	Question        string    `json:"question"`
	Answer          string    `json:"answer"`
	IsCorrect       bool      `json:"is_correct"`
	Bypassed        bool      `json:"bypassed"`
	Feedback        string    `json:"feedback"`
	Difficulty      int       `json:"difficulty"`
	CreatedAt       time.Time `json:"created_at"`
}

// SubmitAnswerRequest is the payload for answering a chunk question.
type SubmitAnswerRequest struct {
	QuestionType string `json:"question_type" binding:"required,oneof=summary comprehension"`
	Answer       string `json:"answer" binding:"required,min=1,max=5000"`
}

// QuestionResponse is the question a student should answer next.
type QuestionResponse struct {
	ChunkNumber  int    `json:"chunk_number"`
	QuestionType string `json:"question_type"`
	Question     string `json:"question"`
	Difficulty   int    `json:"difficulty"`
	Content      string `json:"content"`
}

// SubmitAnswerResponse reports the outcome of an answer submission.
type SubmitAnswerResponse struct {
	IsCorrect           bool    `json:"is_correct"`
	Feedback            string  `json:"feedback"`
	Advance             bool    `json:"advance"`
	NextQuestionType    *string `json:"next_question_type"`
	Bypassed            bool    `json:"bypassed"`
	BypassCodeType      string  `json:"bypass_code_type,omitempty"`
	Difficulty          int     `json:"difficulty"`
	NextChunk           int     `json:"next_chunk"`
	AssignmentCompleted bool    `json:"assignment_completed"`
}

// ReadingProgressResponse is the assignment rollup with per-chunk rows.
type ReadingProgressResponse struct {
	Assignment  *AssignmentProgress `json:"assignment"`
	TotalChunks int                 `json:"total_chunks"`
	Chunks      []ChunkProgress     `json:"chunks"`
}
