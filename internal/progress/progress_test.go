package progress

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umadex/umadex-backend/internal/apperror"
)

var now = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

// ─── Difficulty ─────────────────────────────────────────────────────────

func TestNext_StaysInBounds(t *testing.T) {
	assert.Equal(t, 1, Next(1, Decrease))
	assert.Equal(t, 8, Next(8, Increase))
	assert.Equal(t, 6, Next(5, Increase))
	assert.Equal(t, 4, Next(5, Decrease))
	assert.Equal(t, 5, Next(5, Hold))

	for level := -3; level <= 12; level++ {
		for _, o := range []Outcome{Hold, Increase, Decrease} {
			got := Next(level, o)
			assert.GreaterOrEqual(t, got, MinDifficulty)
			assert.LessOrEqual(t, got, MaxDifficulty)
		}
	}
}

func TestSimplify(t *testing.T) {
	got, err := Simplify(3)
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	got, err = Simplify(1)
	assert.True(t, errors.Is(err, ErrAlreadyMinimum))
	assert.Equal(t, 1, got)
}

func TestInitialDifficulty(t *testing.T) {
	got, err := InitialDifficulty(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultDifficulty, got)

	got, err = InitialDifficulty(7)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	_, err = InitialDifficulty(9)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestShouldIncreaseDifficulty(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		suggested  *int
		want       bool
	}{
		{"confident with positive suggestion", 0.85, intPtr(1), true},
		{"unsure with positive suggestion", 0.6, intPtr(1), false},
		{"confident with negative suggestion", 0.95, intPtr(-1), false},
		{"confident with zero suggestion", 0.95, intPtr(0), false},
		{"very confident without suggestion", 0.9, nil, true},
		{"confident without suggestion", 0.85, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldIncreaseDifficulty(tt.confidence, tt.suggested))
		})
	}
}

// ─── Chunk state machine ───────────────────────────────────────────────

func TestSubmit_SummaryThenComprehensionCompletesOnce(t *testing.T) {
	s := &UnitState{CurrentDifficulty: 5}
	completions := 0

	tr, err := Submit(s, PhaseSummary, Evaluation{IsCorrect: true, Feedback: "good"}, now)
	require.NoError(t, err)
	assert.False(t, tr.Advance())
	assert.Equal(t, PhaseComprehension, tr.NextPhase)
	if tr.UnitComplete {
		completions++
	}

	tr, err = Submit(s, PhaseComprehension, Evaluation{IsCorrect: true, Confidence: 0.95}, now)
	require.NoError(t, err)
	assert.True(t, tr.Advance())
	assert.Empty(t, tr.NextPhase)
	assert.Equal(t, 6, tr.NewDifficulty)
	if tr.UnitComplete {
		completions++
	}

	assert.Equal(t, 1, completions)
	require.NotNil(t, s.CompletedAt)
	assert.Equal(t, now, *s.CompletedAt)

	_, err = Submit(s, PhaseComprehension, Evaluation{IsCorrect: true}, now)
	assert.True(t, errors.Is(err, ErrChunkAlreadyComplete))
}

func TestSubmit_SecondSummaryIsInvalidState(t *testing.T) {
	s := &UnitState{CurrentDifficulty: 5}
	_, err := Submit(s, PhaseSummary, Evaluation{IsCorrect: true}, now)
	require.NoError(t, err)

	_, err = Submit(s, PhaseSummary, Evaluation{IsCorrect: true}, now)
	assert.True(t, errors.Is(err, ErrWrongPhase))
	assert.Equal(t, apperror.KindInvalidState, apperror.KindOf(err))
}

func TestSubmit_IncorrectLeavesStateUnchanged(t *testing.T) {
	s := &UnitState{SummaryCompleted: true, CurrentDifficulty: 4}
	before := *s

	tr, err := Submit(s, PhaseComprehension, Evaluation{IsCorrect: false, Feedback: "try again"}, now)
	require.NoError(t, err)
	assert.False(t, tr.Advance())
	assert.Equal(t, PhaseComprehension, tr.NextPhase)
	assert.Equal(t, "try again", tr.Feedback)
	assert.Equal(t, before, *s)
}

func TestSubmit_NoIncreaseWhenHeuristicDeclines(t *testing.T) {
	s := &UnitState{SummaryCompleted: true, CurrentDifficulty: 8}
	tr, err := Submit(s, PhaseComprehension, Evaluation{IsCorrect: true, Confidence: 0.99}, now)
	require.NoError(t, err)
	assert.Equal(t, 8, tr.NewDifficulty)

	s = &UnitState{SummaryCompleted: true, CurrentDifficulty: 3}
	tr, err = Submit(s, PhaseComprehension, Evaluation{IsCorrect: true, Confidence: 0.5}, now)
	require.NoError(t, err)
	assert.Equal(t, 3, tr.NewDifficulty)
}

func TestBypass(t *testing.T) {
	s := &UnitState{CurrentDifficulty: 5}

	tr, err := Bypass(s, now)
	require.NoError(t, err)
	assert.True(t, tr.Bypassed)
	assert.Equal(t, BypassFeedback, tr.Feedback)
	assert.Equal(t, PhaseSummary, tr.Phase)
	assert.True(t, s.SummaryCompleted)
	assert.False(t, s.ComprehensionCompleted)

	tr, err = Bypass(s, now)
	require.NoError(t, err)
	assert.True(t, tr.UnitComplete)
	assert.True(t, s.Complete())

	_, err = Bypass(s, now)
	assert.True(t, errors.Is(err, ErrChunkAlreadyComplete))
}

func TestCanSimplify(t *testing.T) {
	assert.True(t, errors.Is((UnitState{}).CanSimplify(), ErrSimplifyNotAllowed))
	assert.NoError(t, (UnitState{SummaryCompleted: true}).CanSimplify())
	assert.True(t, errors.Is((UnitState{SummaryCompleted: true, ComprehensionCompleted: true}).CanSimplify(), ErrChunkAlreadyComplete))
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("summary")
	require.NoError(t, err)
	assert.Equal(t, PhaseSummary, p)

	_, err = ParsePhase("essay")
	assert.True(t, errors.Is(err, ErrInvalidPhase))
}

// ─── Assignment rollup ─────────────────────────────────────────────────

func TestCompleteUnit_AdvancesAndCompletesOnce(t *testing.T) {
	a, err := NewAssignmentState(0)
	require.NoError(t, err)
	assert.Equal(t, 5, a.DifficultyLevel)

	r, err := CompleteUnit(&a, 1, 3, now)
	require.NoError(t, err)
	assert.False(t, r.AssignmentCompleted)
	assert.Equal(t, 2, a.CurrentUnitIndex)
	assert.Equal(t, 1, a.TotalUnitsCompleted)

	r, err = CompleteUnit(&a, 1, 3, now)
	require.NoError(t, err)
	assert.True(t, r.AlreadyTracked)
	assert.Equal(t, 1, a.TotalUnitsCompleted)

	_, err = CompleteUnit(&a, 2, 3, now)
	require.NoError(t, err)
	r, err = CompleteUnit(&a, 3, 3, now)
	require.NoError(t, err)
	assert.True(t, r.AssignmentCompleted)
	assert.Equal(t, StatusCompleted, a.Status)
	require.NotNil(t, a.CompletedAt)

	later := now.Add(time.Hour)
	r, err = CompleteUnit(&a, 3, 3, later)
	require.NoError(t, err)
	assert.True(t, r.AlreadyTracked)
	assert.False(t, r.AssignmentCompleted)
	assert.Equal(t, now, *a.CompletedAt)
}

func TestCompleteUnit_RejectsOutOfRange(t *testing.T) {
	a, err := NewAssignmentState(2)
	require.NoError(t, err)
	_, err = CompleteUnit(&a, 4, 3, now)
	assert.True(t, errors.Is(err, ErrInvalidUnitIndex))
}
