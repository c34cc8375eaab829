package progress

import "github.com/umadex/umadex-backend/internal/apperror"

const (
	MinDifficulty     = 1
	MaxDifficulty     = 8
	DefaultDifficulty = 5
)

// Thresholds for the increase heuristic.
const (
	increaseWithSuggestion    = 0.8
	increaseWithoutSuggestion = 0.9
)

var (
	ErrAlreadyMinimum     = apperror.New(apperror.KindInvalidState, "ALREADY_MINIMUM_DIFFICULTY", "difficulty is already at the lowest level")
	ErrSimplifyNotAllowed = apperror.New(apperror.KindInvalidState, "SIMPLIFY_NOT_ALLOWED", "a simpler question is only available for comprehension questions")
	ErrInvalidDifficulty  = apperror.New(apperror.KindValidation, "INVALID_DIFFICULTY", "difficulty must be between 1 and 8")
)

// Outcome is the direction a difficulty level moves.
type Outcome int

const (
	Hold Outcome = iota
	Increase
	Decrease
)

// Next returns level moved one step in the direction of outcome, clamped to
// [MinDifficulty, MaxDifficulty].
func Next(level int, outcome Outcome) int {
	switch outcome {
	case Increase:
		level++
	case Decrease:
		level--
	}
	return Clamp(level)
}

// Clamp bounds level to the valid range.
func Clamp(level int) int {
	if level < MinDifficulty {
		return MinDifficulty
	}
	if level > MaxDifficulty {
		return MaxDifficulty
	}
	return level
}

// InitialDifficulty validates an assignment-provided starting level. Zero
// selects DefaultDifficulty.
func InitialDifficulty(level int) (int, error) {
	if level == 0 {
		return DefaultDifficulty, nil
	}
	if level < MinDifficulty || level > MaxDifficulty {
		return 0, ErrInvalidDifficulty.Withf("got %d", level)
	}
	return level, nil
}

// Simplify lowers level by one, failing at the minimum.
func Simplify(level int) (int, error) {
	if level <= MinDifficulty {
		return MinDifficulty, ErrAlreadyMinimum
	}
	return Next(level, Decrease), nil
}

// ShouldIncreaseDifficulty decides whether a correct comprehension answer
// earns a harder next question. suggested is the evaluator's proposed change,
// nil when it offered none.
func ShouldIncreaseDifficulty(confidence float64, suggested *int) bool {
	if suggested != nil {
		return *suggested > 0 && confidence >= increaseWithSuggestion
	}
	return confidence >= increaseWithoutSuggestion
}
