// Package progress implements the per-unit question flow, the difficulty
// ladder and the assignment-level rollup for reading assignments. All state
// is passed in and returned; persistence is the caller's concern.
package progress

import (
	"time"

	"github.com/umadex/umadex-backend/internal/apperror"
)

// Phase is the question type a unit is waiting on.
type Phase string

const (
	PhaseSummary       Phase = "summary"
	PhaseComprehension Phase = "comprehension"
)

// BypassFeedback is stored as the evaluation feedback when a unit phase is
// passed with an instructor code.
const BypassFeedback = "Instructor override accepted"

var (
	ErrChunkAlreadyComplete = apperror.New(apperror.KindInvalidState, "CHUNK_ALREADY_COMPLETE", "this chunk is already complete, move on to the next one")
	ErrWrongPhase           = apperror.New(apperror.KindInvalidState, "WRONG_QUESTION_TYPE", "the submitted question type is not the active one")
	ErrInvalidPhase         = apperror.New(apperror.KindValidation, "INVALID_QUESTION_TYPE", "question type must be summary or comprehension")
)

// ParsePhase validates a client-supplied question type.
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PhaseSummary, PhaseComprehension:
		return Phase(s), nil
	}
	return "", ErrInvalidPhase.Withf("got %q", s)
}

// UnitState is the progress of one student on one chunk.
type UnitState struct {
	SummaryCompleted       bool
	ComprehensionCompleted bool
	CurrentDifficulty      int
	CompletedAt            *time.Time
}

// Complete reports whether both phases are done.
func (s UnitState) Complete() bool {
	return s.SummaryCompleted && s.ComprehensionCompleted
}

// ActivePhase returns the question type the unit is waiting on.
func (s UnitState) ActivePhase() (Phase, error) {
	if s.Complete() {
		return "", ErrChunkAlreadyComplete
	}
	if s.SummaryCompleted {
		return PhaseComprehension, nil
	}
	return PhaseSummary, nil
}

// CanSimplify reports whether a simpler question may be requested now.
func (s UnitState) CanSimplify() error {
	phase, err := s.ActivePhase()
	if err != nil {
		return err
	}
	if phase != PhaseComprehension {
		return ErrSimplifyNotAllowed
	}
	return nil
}

// Evaluation is the evaluator's verdict on a unit answer.
type Evaluation struct {
	IsCorrect                 bool
	Confidence                float64
	Feedback                  string
	SuggestedDifficultyChange *int
}

// Transition describes the effect of one submission.
type Transition struct {
	Phase         Phase
	Correct       bool
	Bypassed      bool
	UnitComplete  bool
	NextPhase     Phase
	Feedback      string
	NewDifficulty int
}

// Advance mirrors the client-facing flag: true only when the unit completed.
func (t Transition) Advance() bool { return t.UnitComplete }

// Submit applies an evaluated answer for the given phase. The state is only
// modified on a correct answer.
func Submit(s *UnitState, phase Phase, ev Evaluation, now time.Time) (Transition, error) {
	active, err := s.ActivePhase()
	if err != nil {
		return Transition{}, err
	}
	if phase != active {
		return Transition{}, ErrWrongPhase.Withf("expected %s, got %s", active, phase)
	}

	t := Transition{
		Phase:         active,
		Correct:       ev.IsCorrect,
		Feedback:      ev.Feedback,
		NextPhase:     active,
		NewDifficulty: s.CurrentDifficulty,
	}
	if !ev.IsCorrect {
		return t, nil
	}

	if active == PhaseSummary {
		s.SummaryCompleted = true
		t.NextPhase = PhaseComprehension
		return t, nil
	}

	if ShouldIncreaseDifficulty(ev.Confidence, ev.SuggestedDifficultyChange) {
		s.CurrentDifficulty = Next(s.CurrentDifficulty, Increase)
	}
	completeUnit(s, now)
	t.UnitComplete = true
	t.NextPhase = ""
	t.NewDifficulty = s.CurrentDifficulty
	return t, nil
}

// Bypass passes the active phase without evaluation. Bypassing comprehension
// also marks summary so the two flags stay consistent.
func Bypass(s *UnitState, now time.Time) (Transition, error) {
	active, err := s.ActivePhase()
	if err != nil {
		return Transition{}, err
	}

	t := Transition{
		Phase:         active,
		Correct:       true,
		Bypassed:      true,
		Feedback:      BypassFeedback,
		NewDifficulty: s.CurrentDifficulty,
	}
	if active == PhaseSummary {
		s.SummaryCompleted = true
		t.NextPhase = PhaseComprehension
		return t, nil
	}

	completeUnit(s, now)
	t.UnitComplete = true
	return t, nil
}

func completeUnit(s *UnitState, now time.Time) {
	s.SummaryCompleted = true
	s.ComprehensionCompleted = true
	if s.CompletedAt == nil {
		at := now
		s.CompletedAt = &at
	}
}
