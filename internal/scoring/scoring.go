// Package scoring turns per-question rubric evaluations into an attempt
// score with pass/fail and review flags, and applies teacher overrides.
package scoring

import (
	"strings"
	"unicode/utf8"

	"github.com/umadex/umadex-backend/internal/apperror"
	"github.com/umadex/umadex-backend/internal/rubric"
)

// Quality notes attached to a graded attempt.
const (
	NoteFallbackUsed   = "fallback_evaluation_used"
	NoteLowConfidence  = "low_confidence"
	NoteUniformScores  = "uniform_mid_band_scores"
	NotePolarizedScore = "polarized_scores"
)

const (
	// ReviewConfidence is the confidence below which an attempt is flagged.
	ReviewConfidence = 0.7

	// FallbackConfidence is the confidence assigned to heuristic scores.
	FallbackConfidence = 0.5

	uniformThreshold  = 8
	polarizedExtremes = 3
)

var (
	ErrInvalidAttemptState = apperror.New(apperror.KindInvalidState, "INVALID_ATTEMPT_STATE", "the attempt is not in a gradable state")
	ErrInvalidQuestion     = apperror.New(apperror.KindValidation, "INVALID_QUESTION_INDEX", "question index is outside the test")
)

// Evaluation is the graded result of one question.
type Evaluation struct {
	QuestionIndex   int      `json:"question_index"`
	RubricScore     int      `json:"rubric_score"`
	PointsEarned    float64  `json:"points_earned"`
	MaxPoints       float64  `json:"max_points"`
	Rationale       string   `json:"rationale"`
	Feedback        string   `json:"feedback,omitempty"`
	Confidence      float64  `json:"confidence"`
	UnusualPatterns []string `json:"unusual_patterns,omitempty"`
}

// Result is an attempt-level grade.
type Result struct {
	Score        float64      `json:"score"`
	Passed       bool         `json:"passed"`
	NeedsReview  bool         `json:"needs_review"`
	QualityNotes []string     `json:"quality_notes"`
	Evaluations  []Evaluation `json:"evaluations"`
}

// Grade scores exactly rubric.QuestionsPerTest evaluations. Points are
// derived from each rubric score; the inputs are not modified.
func Grade(evals []Evaluation) (Result, error) {
	scores := make([]int, len(evals))
	for i, e := range evals {
		scores[i] = e.RubricScore
	}
	total, err := rubric.TotalFor(scores)
	if err != nil {
		return Result{}, err
	}

	graded := make([]Evaluation, len(evals))
	for i, e := range evals {
		pts, _ := rubric.PointsFor(e.RubricScore)
		e.PointsEarned = float64(pts)
		e.MaxPoints = rubric.MaxPointsPerQuestion
		graded[i] = e
	}

	notes := qualityNotes(graded)
	return Result{
		Score:        float64(total),
		Passed:       rubric.Passed(float64(total)),
		NeedsReview:  len(notes) > 0,
		QualityNotes: notes,
		Evaluations:  graded,
	}, nil
}

// qualityNotes lists every reason the attempt should be reviewed by hand.
func qualityNotes(evals []Evaluation) []string {
	var notes []string
	seen := map[string]bool{}
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			notes = append(notes, n)
		}
	}

	counts := [rubric.MaxScore + 1]int{}
	for _, e := range evals {
		counts[e.RubricScore]++
		if e.Confidence < ReviewConfidence {
			add(NoteLowConfidence)
		}
		for _, p := range e.UnusualPatterns {
			if p = strings.TrimSpace(p); p != "" {
				add(p)
			}
		}
	}

	for s := 1; s <= 3; s++ {
		if counts[s] >= uniformThreshold {
			add(NoteUniformScores)
		}
	}
	if counts[0] >= polarizedExtremes && counts[rubric.MaxScore] >= polarizedExtremes {
		add(NotePolarizedScore)
	}
	if notes == nil {
		notes = []string{}
	}
	return notes
}

// FallbackEvaluation scores an answer by length when the AI evaluator is
// unavailable.
func FallbackEvaluation(index int, answer string) Evaluation {
	n := utf8.RuneCountInString(strings.TrimSpace(answer))
	score := 3
	switch {
	case n < 20:
		score = 1
	case n < 50:
		score = 2
	}
	return Evaluation{
		QuestionIndex:   index,
		RubricScore:     score,
		Rationale:       "Scored automatically from answer length because the AI evaluator was unavailable.",
		Confidence:      FallbackConfidence,
		UnusualPatterns: []string{NoteFallbackUsed},
	}
}

// QuestionOverride records the before/after of a question-level override.
type QuestionOverride struct {
	QuestionIndex int
	OriginalScore float64
	NewRubric     rubric.Level
}

// OverrideQuestion maps a 0-100 teacher score onto the rubric for one
// question and regrades the attempt.
func OverrideQuestion(evals []Evaluation, index int, percent float64, feedback string) (Result, QuestionOverride, error) {
	level, err := rubric.BandForOverride(percent)
	if err != nil {
		return Result{}, QuestionOverride{}, err
	}

	pos := -1
	for i, e := range evals {
		if e.QuestionIndex == index {
			pos = i
			break
		}
	}
	if pos < 0 {
		return Result{}, QuestionOverride{}, ErrInvalidQuestion.Withf("question %d", index)
	}

	updated := make([]Evaluation, len(evals))
	copy(updated, evals)
	prev := updated[pos]
	updated[pos].RubricScore = level.Score
	updated[pos].Confidence = 1
	if feedback != "" {
		updated[pos].Feedback = feedback
	}

	res, err := Grade(updated)
	if err != nil {
		return Result{}, QuestionOverride{}, err
	}
	prevPts, _ := rubric.PointsFor(prev.RubricScore)
	return res, QuestionOverride{QuestionIndex: index, OriginalScore: float64(prevPts), NewRubric: level}, nil
}

// OverrideOverall replaces the attempt total. Scores above 100 are capped.
func OverrideOverall(score float64) (total float64, passed bool, err error) {
	total, err = rubric.CapOverall(score)
	if err != nil {
		return 0, false, err
	}
	return total, rubric.Passed(total), nil
}
