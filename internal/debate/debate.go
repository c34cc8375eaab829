// Package debate implements the three-debate, five-statement progression used
// by debate assignments: turn-taking, fallacy scheduling, round completion,
// coaching and challenge scoring. Randomness is injected through Rand.
package debate

import (
	"math"
	"time"

	"github.com/umadex/umadex-backend/internal/apperror"
)

const (
	DebatesPerAssignment = 3
	StatementsPerDebate  = 5
	RoundsPerDebate      = 3
)

// Action is what the student should do next.
type Action string

const (
	ActionSubmitPost     Action = "submit_post"
	ActionAwaitAI        Action = "await_ai"
	ActionDebateComplete Action = "debate_complete"
	ActionChoosePosition Action = "choose_position"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusDebate1    Status = "debate_1"
	StatusDebate2    Status = "debate_2"
	StatusDebate3    Status = "debate_3"
	StatusCompleted  Status = "completed"
)

// StatusFor returns the in-progress status of debate n.
func StatusFor(n int) Status {
	switch n {
	case 1:
		return StatusDebate1
	case 2:
		return StatusDebate2
	default:
		return StatusDebate3
	}
}

type Position string

const (
	PositionPro Position = "pro"
	PositionCon Position = "con"
)

func (p Position) Valid() bool { return p == PositionPro || p == PositionCon }

// Opposite is the side the AI argues.
func (p Position) Opposite() Position {
	if p == PositionPro {
		return PositionCon
	}
	return PositionPro
}

var (
	ErrInvalidPosition       = apperror.New(apperror.KindValidation, "INVALID_POSITION", "position must be pro or con")
	ErrPositionAlreadyChosen = apperror.New(apperror.KindInvalidState, "POSITION_ALREADY_CHOSEN", "the final debate position has already been chosen")
	ErrPositionNotAvailable  = apperror.New(apperror.KindInvalidState, "POSITION_NOT_AVAILABLE", "the final position can only be chosen when the third debate begins")
	ErrNotStudentTurn        = apperror.New(apperror.KindInvalidState, "NOT_STUDENT_TURN", "it is not the student's turn to post")
	ErrNotAITurn             = apperror.New(apperror.KindInvalidState, "NOT_AI_TURN", "the AI is not due to respond")
	ErrDebateCompleted       = apperror.New(apperror.KindInvalidState, "DEBATE_COMPLETED", "this debate assignment is already completed")
	ErrDeadlinePassed        = apperror.New(apperror.KindInvalidState, "DEBATE_DEADLINE_PASSED", "the deadline for this debate has passed")
)

// Rand is the randomness the engine consumes. *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

// State is a student's progress through one debate assignment.
type State struct {
	CurrentDebate          int
	CurrentRound           int
	Positions              [DebatesPerAssignment]Position
	Status                 Status
	FallacyScheduledDebate int
	FallacyCounter         int
	Deadline               time.Time
	DebateScores           [DebatesPerAssignment]*float64
	FinalGrade             *float64
}

// NewState starts a debate assignment: pro for debate 1, con for debate 2,
// the third chosen later, and a fallacy scheduled for one random debate.
func NewState(r Rand, timeLimitHours int, now time.Time) State {
	return State{
		CurrentDebate:          1,
		CurrentRound:           1,
		Positions:              [DebatesPerAssignment]Position{PositionPro, PositionCon, ""},
		Status:                 StatusNotStarted,
		FallacyScheduledDebate: ScheduleFallacy(r),
		Deadline:               now.Add(time.Duration(timeLimitHours) * time.Hour),
	}
}

// CurrentPosition is the student's side in the current debate, empty when
// the third position has not been chosen.
func (s State) CurrentPosition() Position {
	return s.Positions[s.CurrentDebate-1]
}

// ScheduleFallacy picks the debate (1..3) that may receive a fallacy.
func ScheduleFallacy(r Rand) int {
	return r.IntN(DebatesPerAssignment) + 1
}

// DetermineNextAction depends only on the number of posts in the current
// debate, except that debate 3 first requires a chosen position.
func DetermineNextAction(s State, postCount int) Action {
	if s.Status == StatusCompleted {
		return ActionDebateComplete
	}
	if s.CurrentDebate == DebatesPerAssignment && s.Positions[DebatesPerAssignment-1] == "" {
		return ActionChoosePosition
	}
	switch {
	case postCount >= StatementsPerDebate:
		return ActionDebateComplete
	case postCount%2 == 0:
		return ActionSubmitPost
	default:
		return ActionAwaitAI
	}
}

// CheckStudentPost verifies a student may post now.
func CheckStudentPost(s State, postCount int, now time.Time) error {
	if s.Status == StatusCompleted {
		return ErrDebateCompleted
	}
	if !s.Deadline.IsZero() && now.After(s.Deadline) {
		return ErrDeadlinePassed
	}
	switch DetermineNextAction(s, postCount) {
	case ActionSubmitPost:
		return nil
	case ActionChoosePosition:
		return ErrPositionNotAvailable.Withf("choose a position first")
	default:
		return ErrNotStudentTurn
	}
}

// CheckAIPost verifies the AI is due to respond.
func CheckAIPost(s State, postCount int) error {
	if s.Status == StatusCompleted {
		return ErrDebateCompleted
	}
	if DetermineNextAction(s, postCount) != ActionAwaitAI {
		return ErrNotAITurn
	}
	return nil
}

// RoundForStatement maps statement n (1..5) onto rounds 1..3.
func RoundForStatement(n int) int {
	r := int(math.Ceil(float64(n) / 2))
	return max(1, min(r, RoundsPerDebate))
}

// RecordPost updates status and round after statement number n was posted.
func RecordPost(s *State, statementNumber int) {
	if s.Status == StatusNotStarted {
		s.Status = StatusFor(s.CurrentDebate)
	}
	s.CurrentRound = RoundForStatement(statementNumber)
}

// SelectFinalPosition sets the third debate's side exactly once.
func SelectFinalPosition(s *State, p Position) error {
	if !p.Valid() {
		return ErrInvalidPosition
	}
	if s.Positions[DebatesPerAssignment-1] != "" {
		return ErrPositionAlreadyChosen
	}
	if s.CurrentDebate != DebatesPerAssignment || s.Status == StatusCompleted {
		return ErrPositionNotAvailable
	}
	s.Positions[DebatesPerAssignment-1] = p
	return nil
}

// Completion reports what finishing the current debate did.
type Completion struct {
	FinishedDebate int      `json:"finished_debate"`
	Percentage     float64  `json:"percentage"`
	AdvancedTo     int      `json:"advanced_to,omitempty"`
	Completed      bool     `json:"completed"`
	FinalGrade     *float64 `json:"final_grade,omitempty"`
}

// CompleteDebate closes the current debate with its percentage. Debates 1
// and 2 advance with an extended deadline; debate 3 completes the
// assignment with the mean of the three percentages.
func CompleteDebate(s *State, percentage float64, timeLimitHours int) Completion {
	finished := s.CurrentDebate
	pct := clampPercent(percentage)
	s.DebateScores[finished-1] = &pct

	s.FallacyCounter++
	if s.FallacyCounter >= DebatesPerAssignment {
		s.FallacyCounter = 0
	}

	c := Completion{FinishedDebate: finished, Percentage: pct}
	if finished < DebatesPerAssignment {
		s.CurrentDebate = finished + 1
		s.CurrentRound = 1
		s.Status = StatusFor(s.CurrentDebate)
		s.Deadline = s.Deadline.Add(time.Duration(timeLimitHours) * time.Hour)
		c.AdvancedTo = s.CurrentDebate
		return c
	}

	var sum float64
	for _, p := range s.DebateScores {
		if p != nil {
			sum += *p
		}
	}
	grade := math.Round(sum/DebatesPerAssignment*100) / 100
	s.FinalGrade = &grade
	s.Status = StatusCompleted
	c.Completed = true
	c.FinalGrade = &grade
	return c
}

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
