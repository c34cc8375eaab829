package debate

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRand returns the same values on every call.
type fixedRand struct {
	n int
	f float64
}

func (r fixedRand) IntN(int) int     { return r.n }
func (r fixedRand) Float64() float64 { return r.f }

var start = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

func TestDetermineNextAction_ByPostCount(t *testing.T) {
	s := NewState(fixedRand{n: 0}, 48, start)
	want := []Action{ActionSubmitPost, ActionAwaitAI, ActionSubmitPost, ActionAwaitAI, ActionSubmitPost, ActionDebateComplete}
	for count, action := range want {
		assert.Equal(t, action, DetermineNextAction(s, count), "count %d", count)
	}
	assert.Equal(t, ActionDebateComplete, DetermineNextAction(s, 9))
}

func TestDetermineNextAction_ThirdDebateNeedsPosition(t *testing.T) {
	s := NewState(fixedRand{}, 48, start)
	s.CurrentDebate = 3
	s.Status = StatusDebate3
	for count := 0; count <= 6; count++ {
		assert.Equal(t, ActionChoosePosition, DetermineNextAction(s, count))
	}

	require.NoError(t, SelectFinalPosition(&s, PositionCon))
	assert.Equal(t, ActionSubmitPost, DetermineNextAction(s, 0))
	assert.Equal(t, PositionCon, s.CurrentPosition())
}

func TestNewState(t *testing.T) {
	s := NewState(fixedRand{n: 2}, 24, start)
	assert.Equal(t, 3, s.FallacyScheduledDebate)
	assert.Equal(t, PositionPro, s.Positions[0])
	assert.Equal(t, PositionCon, s.Positions[1])
	assert.Empty(t, s.Positions[2])
	assert.Equal(t, StatusNotStarted, s.Status)
	assert.Equal(t, start.Add(24*time.Hour), s.Deadline)
}

func TestScheduleFallacy_Range(t *testing.T) {
	for n := 0; n < 3; n++ {
		got := ScheduleFallacy(fixedRand{n: n})
		assert.GreaterOrEqual(t, got, 1)
		assert.LessOrEqual(t, got, 3)
	}
}

func TestSelectFinalPosition(t *testing.T) {
	s := NewState(fixedRand{}, 24, start)
	assert.True(t, errors.Is(SelectFinalPosition(&s, PositionPro), ErrPositionNotAvailable))

	s.CurrentDebate = 3
	assert.True(t, errors.Is(SelectFinalPosition(&s, "maybe"), ErrInvalidPosition))
	require.NoError(t, SelectFinalPosition(&s, PositionPro))
	assert.True(t, errors.Is(SelectFinalPosition(&s, PositionCon), ErrPositionAlreadyChosen))
}

func TestPositionOpposite(t *testing.T) {
	assert.Equal(t, PositionCon, PositionPro.Opposite())
	assert.Equal(t, PositionPro, PositionCon.Opposite())
}

func TestCheckTurns(t *testing.T) {
	s := NewState(fixedRand{}, 24, start)
	assert.NoError(t, CheckStudentPost(s, 0, start))
	assert.True(t, errors.Is(CheckStudentPost(s, 1, start), ErrNotStudentTurn))
	assert.True(t, errors.Is(CheckAIPost(s, 0), ErrNotAITurn))
	assert.NoError(t, CheckAIPost(s, 3))
	assert.True(t, errors.Is(CheckStudentPost(s, 0, start.Add(25*time.Hour)), ErrDeadlinePassed))
}

func TestRoundForStatement(t *testing.T) {
	want := map[int]int{1: 1, 2: 1, 3: 2, 4: 2, 5: 3}
	for n, round := range want {
		assert.Equal(t, round, RoundForStatement(n), "statement %d", n)
	}
}

func TestRecordPost(t *testing.T) {
	s := NewState(fixedRand{}, 24, start)
	RecordPost(&s, 1)
	assert.Equal(t, StatusDebate1, s.Status)
	RecordPost(&s, 3)
	assert.Equal(t, 2, s.CurrentRound)
}

func TestShouldInjectFallacy(t *testing.T) {
	s := NewState(fixedRand{n: 1}, 24, start) // scheduled for debate 2
	s.CurrentDebate = 2

	// statement 2 is round 1 (20%), statement 4 is round 2 (60%)
	assert.True(t, ShouldInjectFallacy(s, 2, false, fixedRand{f: 0.19}))
	assert.False(t, ShouldInjectFallacy(s, 2, false, fixedRand{f: 0.2}))
	assert.True(t, ShouldInjectFallacy(s, 4, false, fixedRand{f: 0.59}))
	assert.False(t, ShouldInjectFallacy(s, 4, false, fixedRand{f: 0.6}))

	assert.False(t, ShouldInjectFallacy(s, 4, true, fixedRand{f: 0}), "only one per debate")
	assert.False(t, ShouldInjectFallacy(s, 3, false, fixedRand{f: 0}), "student statement")

	s.CurrentDebate = 1
	assert.False(t, ShouldInjectFallacy(s, 2, false, fixedRand{f: 0}), "not the scheduled debate")
}

func TestFallacyProbability(t *testing.T) {
	assert.Equal(t, 0.2, FallacyProbability(1))
	assert.Equal(t, 0.6, FallacyProbability(2))
	assert.Equal(t, 0.2, FallacyProbability(3))
}

func TestCompleteDebate_AdvancesThenCompletes(t *testing.T) {
	s := NewState(fixedRand{}, 24, start)
	s.Status = StatusDebate1

	c := CompleteDebate(&s, 80, 24)
	assert.Equal(t, 2, c.AdvancedTo)
	assert.Equal(t, 2, s.CurrentDebate)
	assert.Equal(t, 1, s.CurrentRound)
	assert.Equal(t, StatusDebate2, s.Status)
	assert.Equal(t, start.Add(48*time.Hour), s.Deadline)
	assert.Equal(t, 1, s.FallacyCounter)

	CompleteDebate(&s, 70, 24)
	assert.Equal(t, 3, s.CurrentDebate)
	assert.Equal(t, 2, s.FallacyCounter)

	require.NoError(t, SelectFinalPosition(&s, PositionPro))
	c = CompleteDebate(&s, 90, 24)
	assert.True(t, c.Completed)
	require.NotNil(t, c.FinalGrade)
	assert.Equal(t, 80.0, *c.FinalGrade)
	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, 0, s.FallacyCounter, "counter wraps at 3")
	assert.Equal(t, ActionDebateComplete, DetermineNextAction(s, 0))
}

func TestPostScores(t *testing.T) {
	p := PostScores{Clarity: 4, Evidence: 3, Logic: 5, Persuasiveness: 4, Rebuttal: 2}
	require.NoError(t, p.Validate())
	assert.InDelta(t, 3.6, p.Average(), 1e-9)
	assert.Equal(t, 72.0, p.Percentage())

	bad := p
	bad.Rebuttal = 6
	assert.True(t, errors.Is(bad.Validate(), ErrInvalidSubScore))
}

func TestDebatePercentage_BonusClamped(t *testing.T) {
	posts := []ScoredPost{{Percentage: 98, Bonus: 5}, {Percentage: 60}, {Percentage: 1, Bonus: -3}}
	assert.Equal(t, 53.33, DebatePercentage(posts))
	assert.Equal(t, 0.0, DebatePercentage(nil))
}

func TestCoach(t *testing.T) {
	c := Coach([]PostScores{
		{Clarity: 5, Evidence: 3, Logic: 4, Persuasiveness: 4, Rebuttal: 2},
		{Clarity: 4, Evidence: 3, Logic: 4, Persuasiveness: 3, Rebuttal: 3},
	})
	assert.Len(t, c.Strengths, 2) // clarity 4.5, logic 4.0
	assert.Len(t, c.Improvements, 3)
	assert.Len(t, c.Suggestions, 3)
	assert.InDelta(t, 3.5, c.Average, 1e-9)
}

func TestScoreChallenge(t *testing.T) {
	target := ChallengeTarget{IsFallacy: true, FallacyType: "strawman"}

	out := ScoreChallenge(target, "strawman", "")
	assert.True(t, out.Correct)
	assert.Equal(t, 3.0, out.Points)

	out = ScoreChallenge(target, "strawman", strings.Repeat("x", 40))
	assert.Equal(t, 4.0, out.Points)

	out = ScoreChallenge(target, "strawman", strings.Repeat("x", 120))
	assert.Equal(t, 5.0, out.Points)

	out = ScoreChallenge(target, "bandwagon", strings.Repeat("x", 200))
	assert.False(t, out.Correct)
	assert.Equal(t, -1.0, out.Points)

	out = ScoreChallenge(ChallengeTarget{}, "strawman", "")
	assert.Equal(t, -1.0, out.Points, "non-fallacious post")

	out = ScoreChallenge(ChallengeTarget{AppealType: "pathos"}, "pathos", "")
	assert.True(t, out.Correct)
}

func TestCheckChallenge(t *testing.T) {
	s := State{CurrentDebate: 2, Status: StatusDebate2}
	assert.NoError(t, CheckChallenge(s, 2))
	assert.True(t, errors.Is(CheckChallenge(s, 1), ErrChallengeClosed), "debate 1 already scored")

	s = State{CurrentDebate: 3, Status: StatusCompleted}
	assert.True(t, errors.Is(CheckChallenge(s, 3), ErrDebateCompleted))
}

func TestNormalizeChallenge(t *testing.T) {
	g, err := NormalizeChallenge(" Ad Hominem ")
	require.NoError(t, err)
	assert.Equal(t, "ad_hominem", g)

	_, err = NormalizeChallenge("vibes")
	assert.True(t, errors.Is(err, ErrInvalidChallenge))
}
