package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/umadex/umadex-backend/internal/debate"
)

// DebateAssignment is a teacher-authored debate topic.
type DebateAssignment struct {
	ID              uuid.UUID `json:"id"`
	TeacherID       uuid.UUID `json:"teacher_id"`
	ClassroomID     uuid.UUID `json:"classroom_id"`
	Topic           string    `json:"topic"`
	TimeLimitHours  int       `json:"time_limit_hours"`
	CoachingEnabled bool      `json:"coaching_enabled"`
}

// StudentDebate is the persisted debate.State of one student.
type StudentDebate struct {
	ID                     uuid.UUID `json:"id"`
	StudentID              uuid.UUID `json:"student_id"`
	AssignmentID           uuid.UUID `json:"assignment_id"`
	CurrentDebate          int       `json:"current_debate"`
	CurrentRound           int       `json:"current_round"`
	Debate1Position        string    `json:"debate_1_position"`
	Debate2Position        string    `json:"debate_2_position"`
	Debate3Position        *string   `json:"debate_3_position"`
	Status                 string    `json:"status"`
	FallacyScheduledDebate int       `json:"-"`
	FallacyCounter         int       `json:"-"`
	Deadline               time.Time `json:"deadline"`
	Debate1Percentage      *float64  `json:"debate_1_percentage,omitempty"`
	Debate2Percentage      *float64  `json:"debate_2_percentage,omitempty"`
	Debate3Percentage      *float64  `json:"debate_3_percentage,omitempty"`
	FinalGrade             *float64  `json:"final_grade,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	Version                int       `json:"-"`
}

func (d *StudentDebate) State() debate.State {
	s := debate.State{
		CurrentDebate:          d.CurrentDebate,
		CurrentRound:           d.CurrentRound,
		Status:                 debate.Status(d.Status),
		FallacyScheduledDebate: d.FallacyScheduledDebate,
		FallacyCounter:         d.FallacyCounter,
		Deadline:               d.Deadline,
		DebateScores:           [debate.DebatesPerAssignment]*float64{d.Debate1Percentage, d.Debate2Percentage, d.Debate3Percentage},
		FinalGrade:             d.FinalGrade,
	}
	s.Positions[0] = debate.Position(d.Debate1Position)
	s.Positions[1] = debate.Position(d.Debate2Position)
	if d.Debate3Position != nil {
		s.Positions[2] = debate.Position(*d.Debate3Position)
	}
	return s
}

func (d *StudentDebate) Apply(s debate.State) {
	d.CurrentDebate = s.CurrentDebate
	d.CurrentRound = s.CurrentRound
	d.Debate1Position = string(s.Positions[0])
	d.Debate2Position = string(s.Positions[1])
	d.Debate3Position = nil
	if s.Positions[2] != "" {
		p := string(s.Positions[2])
		d.Debate3Position = &p
	}
	d.Status = string(s.Status)
	d.FallacyScheduledDebate = s.FallacyScheduledDebate
	d.FallacyCounter = s.FallacyCounter
	d.Deadline = s.Deadline
	d.Debate1Percentage = s.DebateScores[0]
	d.Debate2Percentage = s.DebateScores[1]
	d.Debate3Percentage = s.DebateScores[2]
	d.FinalGrade = s.FinalGrade
}

// PostType distinguishes student and AI statements.
type PostType string

const (
	PostStudent PostType = "student"
	PostAI      PostType = "ai"
)

// DebatePost is one statement in a debate.
type DebatePost struct {
	ID              uuid.UUID          `json:"id"`
	StudentDebateID uuid.UUID          `json:"student_debate_id"`
	DebateNumber    int                `json:"debate_number"`
	StatementNumber int                `json:"statement_number"`
	PostType        PostType           `json:"post_type"`
	Content         string             `json:"content"`
	IsFallacy       bool               `json:"-"`
	FallacyType     *string            `json:"-"`
	AppealType      *string            `json:"-"`
	Scores          *debate.PostScores `json:"scores,omitempty"`
	Percentage      *float64           `json:"percentage,omitempty"`
	Bonus           float64            `json:"bonus"`
	Feedback        string             `json:"feedback,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// ChallengeTarget is what the post actually contained.
func (p *DebatePost) ChallengeTarget() debate.ChallengeTarget {
	t := debate.ChallengeTarget{IsFallacy: p.IsFallacy}
	if p.FallacyType != nil {
		t.FallacyType = *p.FallacyType
	}
	if p.AppealType != nil {
		t.AppealType = *p.AppealType
	}
	return t
}

// DebateChallenge is a student's attempt to identify a technique in an AI post.
type DebateChallenge struct {
	ID          uuid.UUID `json:"id"`
	PostID      uuid.UUID `json:"post_id"`
	StudentID   uuid.UUID `json:"student_id"`
	Guess       string    `json:"guess"`
	Explanation string    `json:"explanation"`
	IsCorrect   bool      `json:"is_correct"`
	Points      float64   `json:"points"`
	CreatedAt   time.Time `json:"created_at"`
}

// DebateFeedback is coaching generated after a debate finished.
type DebateFeedback struct {
	StudentDebateID uuid.UUID `json:"student_debate_id"`
	DebateNumber    int       `json:"debate_number"`
	debate.Coaching
}

// DebatePostRequest is a student statement.
type DebatePostRequest struct {
	Content string `json:"content" binding:"required,min=20,max=4000"`
}

// ChallengeRequest flags an AI post.
type ChallengeRequest struct {
	PostID      string `json:"post_id" binding:"required,uuid"`
	Guess       string `json:"guess" binding:"required,max=64"`
	Explanation string `json:"explanation" binding:"max=2000"`
}

// SelectPositionRequest chooses the side for the final debate.
type SelectPositionRequest struct {
	Position string `json:"position" binding:"required,oneof=pro con"`
}

// DebatePostResponse is a scored student post. Completion is set when the
// post closed a debate.
type DebatePostResponse struct {
	Post       *DebatePost        `json:"post"`
	Completion *debate.Completion `json:"completion,omitempty"`
	Feedback   *DebateFeedback    `json:"feedback,omitempty"`
	NextAction debate.Action      `json:"next_action"`
}

// DebateView is a student's debate with its current posts and next action.
type DebateView struct {
	Debate     *StudentDebate   `json:"debate"`
	Topic      string           `json:"topic"`
	Position   string           `json:"position"`
	NextAction debate.Action    `json:"next_action"`
	Posts      []DebatePost     `json:"posts"`
	Feedback   []DebateFeedback `json:"feedback"`
}
