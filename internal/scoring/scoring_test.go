package scoring

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umadex/umadex-backend/internal/evaluator"
	"github.com/umadex/umadex-backend/internal/rubric"
)

func evalsWith(scores ...int) []Evaluation {
	out := make([]Evaluation, len(scores))
	for i, s := range scores {
		out[i] = Evaluation{QuestionIndex: i, RubricScore: s, Confidence: 0.9, Rationale: "ok"}
	}
	return out
}

func TestGrade_PassFailAndPoints(t *testing.T) {
	res, err := Grade(evalsWith(4, 4, 3, 3, 3, 2, 4, 3, 4, 2))
	require.NoError(t, err)
	assert.Equal(t, 82.0, res.Score)
	assert.True(t, res.Passed)
	assert.False(t, res.NeedsReview)
	assert.Equal(t, 10.0, res.Evaluations[0].PointsEarned)
	assert.Equal(t, 10.0, res.Evaluations[0].MaxPoints)

	res, err = Grade(evalsWith(3, 3, 2, 2, 3, 2, 3, 3, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, 68.0, res.Score)
	assert.False(t, res.Passed)
}

func TestGrade_WrongCount(t *testing.T) {
	_, err := Grade(evalsWith(4, 4, 4))
	assert.True(t, errors.Is(err, rubric.ErrInvalidQuestionCount))
}

func TestGrade_ReviewFlags(t *testing.T) {
	t.Run("low confidence", func(t *testing.T) {
		evals := evalsWith(4, 4, 3, 3, 3, 2, 4, 3, 4, 2)
		evals[5].Confidence = 0.65
		res, err := Grade(evals)
		require.NoError(t, err)
		assert.True(t, res.NeedsReview)
		assert.Contains(t, res.QualityNotes, NoteLowConfidence)
	})

	t.Run("unusual pattern", func(t *testing.T) {
		evals := evalsWith(4, 4, 3, 3, 3, 2, 4, 3, 4, 2)
		evals[1].UnusualPatterns = []string{"copied_from_source"}
		res, err := Grade(evals)
		require.NoError(t, err)
		assert.True(t, res.NeedsReview)
		assert.Contains(t, res.QualityNotes, "copied_from_source")
	})

	t.Run("uniform mid band", func(t *testing.T) {
		res, err := Grade(evalsWith(2, 2, 2, 2, 2, 2, 2, 2, 3, 4))
		require.NoError(t, err)
		assert.Contains(t, res.QualityNotes, NoteUniformScores)
	})

	t.Run("uniform top band is not flagged", func(t *testing.T) {
		res, err := Grade(evalsWith(4, 4, 4, 4, 4, 4, 4, 4, 4, 4))
		require.NoError(t, err)
		assert.False(t, res.NeedsReview)
		assert.Equal(t, 100.0, res.Score)
	})

	t.Run("polarized", func(t *testing.T) {
		res, err := Grade(evalsWith(0, 0, 0, 4, 4, 4, 2, 2, 3, 3))
		require.NoError(t, err)
		assert.Contains(t, res.QualityNotes, NotePolarizedScore)
	})
}

func TestFallbackEvaluation(t *testing.T) {
	tests := []struct {
		answer string
		want   int
	}{
		{"", 1},
		{"too short", 1},
		{strings.Repeat("a", 19), 1},
		{strings.Repeat("a", 20), 2},
		{strings.Repeat("a", 49), 2},
		{strings.Repeat("a", 50), 3},
		{strings.Repeat("é", 30), 2},
	}
	for _, tt := range tests {
		e := FallbackEvaluation(2, tt.answer)
		assert.Equal(t, tt.want, e.RubricScore, "len %d", len(tt.answer))
		assert.Equal(t, FallbackConfidence, e.Confidence)
		assert.Contains(t, e.UnusualPatterns, NoteFallbackUsed)
	}
}

func TestOverrideQuestion_LowersTotalByTwo(t *testing.T) {
	evals := evalsWith(4, 4, 4, 4, 3, 3, 2, 2, 1, 1)
	before, err := Grade(evals)
	require.NoError(t, err)
	assert.Equal(t, 70.0, before.Score)
	assert.True(t, before.Passed)

	after, ov, err := OverrideQuestion(before.Evaluations, 3, 82, "Missing one detail")
	require.NoError(t, err)
	assert.Equal(t, before.Score-2, after.Score)
	assert.False(t, after.Passed)
	assert.Equal(t, 10.0, ov.OriginalScore)
	assert.Equal(t, 3, ov.NewRubric.Score)
	assert.Equal(t, 8.0, after.Evaluations[3].PointsEarned)
	assert.Equal(t, "Missing one detail", after.Evaluations[3].Feedback)

	// input untouched
	assert.Equal(t, 4, before.Evaluations[3].RubricScore)
}

func TestOverrideQuestion_Errors(t *testing.T) {
	evals := evalsWith(4, 4, 4, 4, 3, 3, 2, 2, 2, 1)
	_, _, err := OverrideQuestion(evals, 3, 120, "")
	assert.True(t, errors.Is(err, rubric.ErrInvalidOverride))

	_, _, err = OverrideQuestion(evals, 12, 50, "")
	assert.True(t, errors.Is(err, ErrInvalidQuestion))
}

func TestOverrideOverall(t *testing.T) {
	total, passed, err := OverrideOverall(140)
	require.NoError(t, err)
	assert.Equal(t, 100.0, total)
	assert.True(t, passed)

	total, passed, err = OverrideOverall(69.5)
	require.NoError(t, err)
	assert.Equal(t, 69.5, total)
	assert.False(t, passed)
}

// ─── Engine ─────────────────────────────────────────────────────────────

type stubEvaluator struct {
	calls atomic.Int32
	fail  bool
	score int
}

func (s *stubEvaluator) EvaluateRubric(_ context.Context, r evaluator.RubricRequest) (*evaluator.RubricResult, error) {
	s.calls.Add(1)
	if s.fail {
		return nil, &evaluator.EvaluationFailure{Purpose: evaluator.PurposeRubric, Err: errors.New("timeout")}
	}
	return &evaluator.RubricResult{Score: s.score, Rationale: "fine", Confidence: 0.9}, nil
}

func tenQuestions() ([]Question, map[int]string) {
	qs := make([]Question, 10)
	answers := make(map[int]string, 10)
	for i := range qs {
		qs[i] = Question{Index: i, Text: "Explain", AnswerKey: "key"}
		answers[i] = strings.Repeat("word ", i*3)
	}
	return qs, answers
}

func TestEngine_EvaluatorFailureFallsBack(t *testing.T) {
	ev := &stubEvaluator{fail: true}
	engine := NewEngine(ev, zerolog.Nop())
	qs, answers := tenQuestions()

	res, err := engine.Evaluate(context.Background(), qs, answers)
	require.NoError(t, err)
	require.Len(t, res.Evaluations, 10)
	for i, e := range res.Evaluations {
		assert.Equal(t, i, e.QuestionIndex)
		assert.Equal(t, FallbackConfidence, e.Confidence)
	}
	assert.Contains(t, res.QualityNotes, NoteFallbackUsed)
	assert.True(t, res.NeedsReview)
	assert.EqualValues(t, 10, ev.calls.Load())
}

func TestEngine_UsesEvaluatorScores(t *testing.T) {
	engine := NewEngine(&stubEvaluator{score: 4}, zerolog.Nop())
	qs, answers := tenQuestions()

	res, err := engine.Evaluate(context.Background(), qs, answers)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Score)
	assert.False(t, res.NeedsReview)
}
