// Package rubric holds the fixed five-level scoring rubric used for test
// answers. Every function is pure.
package rubric

import "github.com/umadex/umadex-backend/internal/apperror"

const (
	MinScore = 0
	MaxScore = 4

	// QuestionsPerTest is the fixed number of questions on a test.
	QuestionsPerTest = 10

	// MaxPointsPerQuestion is the points value of a rubric-4 answer.
	MaxPointsPerQuestion = 10

	// PassingScore is the minimum total for a passing attempt.
	PassingScore = 70
)

var (
	ErrInvalidScore         = apperror.New(apperror.KindValidation, "INVALID_RUBRIC_SCORE", "rubric score must be between 0 and 4")
	ErrInvalidQuestionCount = apperror.New(apperror.KindValidation, "INVALID_QUESTION_COUNT", "exactly 10 rubric scores are required")
	ErrInvalidOverride      = apperror.New(apperror.KindValidation, "INVALID_OVERRIDE_SCORE", "override score must be between 0 and 100")
)

// Level describes one row of the rubric.
type Level struct {
	Score  int    `json:"score"`
	Points int    `json:"points"`
	Label  string `json:"label"`
}

var levels = [MaxScore + 1]Level{
	{Score: 0, Points: 0, Label: "No understanding"},
	{Score: 1, Points: 2, Label: "Minimal understanding"},
	{Score: 2, Points: 5, Label: "Partial understanding"},
	{Score: 3, Points: 8, Label: "Good understanding"},
	{Score: 4, Points: 10, Label: "Complete understanding"},
}

// Levels returns the rubric rows ordered by score.
func Levels() []Level {
	out := make([]Level, len(levels))
	copy(out, levels[:])
	return out
}

// LevelFor returns the rubric row for score.
func LevelFor(score int) (Level, error) {
	if score < MinScore || score > MaxScore {
		return Level{}, ErrInvalidScore.Withf("got %d", score)
	}
	return levels[score], nil
}

// PointsFor converts a rubric score into points.
func PointsFor(score int) (int, error) {
	l, err := LevelFor(score)
	if err != nil {
		return 0, err
	}
	return l.Points, nil
}

// TotalFor sums the points of exactly QuestionsPerTest rubric scores.
func TotalFor(scores []int) (int, error) {
	if len(scores) != QuestionsPerTest {
		return 0, ErrInvalidQuestionCount.Withf("got %d", len(scores))
	}
	total := 0
	for _, s := range scores {
		p, err := PointsFor(s)
		if err != nil {
			return 0, err
		}
		total += p
	}
	return total, nil
}

// Passed reports whether a total clears the passing line.
func Passed(total float64) bool {
	return total >= PassingScore
}

// BandForOverride maps a teacher's 0-100 question override onto the rubric.
// The thresholds (90/80/60/30) are not derived from the point values.
func BandForOverride(percent float64) (Level, error) {
	if percent < 0 || percent > 100 {
		return Level{}, ErrInvalidOverride.Withf("got %.2f", percent)
	}
	switch {
	case percent >= 90:
		return levels[4], nil
	case percent >= 80:
		return levels[3], nil
	case percent >= 60:
		return levels[2], nil
	case percent >= 30:
		return levels[1], nil
	default:
		return levels[0], nil
	}
}

// CapOverall clamps an overall override to the valid range. Negative values
// are rejected rather than clamped.
func CapOverall(score float64) (float64, error) {
	if score < 0 {
		return 0, ErrInvalidOverride.Withf("got %.2f", score)
	}
	if score > 100 {
		return 100, nil
	}
	return score, nil
}
