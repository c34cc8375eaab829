package debate

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/umadex/umadex-backend/internal/apperror"
)

var (
	ErrInvalidSubScore    = apperror.New(apperror.KindValidation, "INVALID_SUB_SCORE", "debate rubric scores must be between 1 and 5")
	ErrAlreadyChallenged  = apperror.New(apperror.KindConflict, "ALREADY_CHALLENGED", "this post has already been challenged")
	ErrInvalidChallenge   = apperror.New(apperror.KindValidation, "INVALID_CHALLENGE_TYPE", "unknown fallacy or appeal type")
	ErrChallengeNotAIPost = apperror.New(apperror.KindValidation, "CHALLENGE_NOT_AI_POST", "only AI posts can be challenged")
	ErrChallengeClosed    = apperror.New(apperror.KindInvalidState, "CHALLENGE_DEBATE_CLOSED", "posts of a scored debate can no longer be challenged")
)

// coachingThreshold separates strengths from areas to improve.
const coachingThreshold = 4.0

// Fallacy types the AI may be asked to include.
var Fallacies = []string{
	"ad_hominem",
	"strawman",
	"false_dilemma",
	"slippery_slope",
	"appeal_to_authority",
	"bandwagon",
	"red_herring",
	"circular_reasoning",
}

// Appeals a student may identify instead of a fallacy.
var Appeals = []string{"ethos", "pathos", "logos"}

// PostScores are the five 1-5 rubric scores of a student statement.
type PostScores struct {
	Clarity        int `json:"clarity"`
	Evidence       int `json:"evidence"`
	Logic          int `json:"logic"`
	Persuasiveness int `json:"persuasiveness"`
	Rebuttal       int `json:"rebuttal"`
}

// FallbackScores is used when the evaluator cannot score a post.
var FallbackScores = PostScores{Clarity: 3, Evidence: 3, Logic: 3, Persuasiveness: 3, Rebuttal: 3}

func (p PostScores) values() [5]int {
	return [5]int{p.Clarity, p.Evidence, p.Logic, p.Persuasiveness, p.Rebuttal}
}

func (p PostScores) Validate() error {
	for _, v := range p.values() {
		if v < 1 || v > 5 {
			return ErrInvalidSubScore.Withf("got %d", v)
		}
	}
	return nil
}

func (p PostScores) Average() float64 {
	sum := 0
	for _, v := range p.values() {
		sum += v
	}
	return float64(sum) / 5
}

// Percentage scales the average (1..5) onto 0..100.
func (p PostScores) Percentage() float64 {
	return math.Round(p.Average()*20*100) / 100
}

// ScoredPost is a student post's percentage and accumulated bonus.
type ScoredPost struct {
	Percentage float64
	Bonus      float64
}

// Effective is the post score with its bonus, bounded to 0..100.
func (p ScoredPost) Effective() float64 {
	return clampPercent(p.Percentage + p.Bonus)
}

// DebatePercentage averages the effective scores of a debate's student posts.
func DebatePercentage(posts []ScoredPost) float64 {
	if len(posts) == 0 {
		return 0
	}
	var sum float64
	for _, p := range posts {
		sum += p.Effective()
	}
	return math.Round(sum/float64(len(posts))*100) / 100
}

// ─── Fallacy injection ──────────────────────────────────────────────────

// FallacyProbability is the chance of injecting a fallacy in a round.
func FallacyProbability(round int) float64 {
	if round <= 1 || round >= RoundsPerDebate {
		return 0.2
	}
	return 0.6
}

// ShouldInjectFallacy decides whether the AI's statement n of the current
// debate carries a fallacy. Only statements 2 and 4 of the scheduled debate
// qualify, and at most one fallacy is injected per debate.
func ShouldInjectFallacy(s State, statementNumber int, alreadyInjected bool, r Rand) bool {
	if alreadyInjected || s.CurrentDebate != s.FallacyScheduledDebate {
		return false
	}
	if statementNumber != 2 && statementNumber != 4 {
		return false
	}
	return r.Float64() < FallacyProbability(RoundForStatement(statementNumber))
}

// PickFallacy chooses a fallacy type uniformly.
func PickFallacy(r Rand) string {
	return Fallacies[r.IntN(len(Fallacies))]
}

// ─── Coaching ───────────────────────────────────────────────────────────

// Coaching is post-debate feedback.
type Coaching struct {
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Suggestions  []string `json:"suggestions"`
	Average      float64  `json:"average"`
}

var criteria = [5]struct {
	name       string
	suggestion string
}{
	{"clarity", "State your main claim in the first sentence and keep each point short."},
	{"evidence", "Support each claim with a fact, example or source."},
	{"logic", "Check that every conclusion follows from the reasons you give."},
	{"persuasiveness", "Explain why your point matters to the audience."},
	{"rebuttal", "Quote your opponent's strongest point and answer it directly."},
}

// Coach compares the mean of each criterion across posts with 4.0.
func Coach(posts []PostScores) Coaching {
	c := Coaching{Strengths: []string{}, Improvements: []string{}, Suggestions: []string{}}
	if len(posts) == 0 {
		return c
	}

	var means [5]float64
	var overall float64
	for _, p := range posts {
		for i, v := range p.values() {
			means[i] += float64(v)
		}
		overall += p.Average()
	}
	for i, crit := range criteria {
		m := means[i] / float64(len(posts))
		if m >= coachingThreshold {
			c.Strengths = append(c.Strengths, fmt.Sprintf("Strong %s (%.1f/5)", crit.name, m))
			continue
		}
		c.Improvements = append(c.Improvements, fmt.Sprintf("Work on %s (%.1f/5)", crit.name, m))
		c.Suggestions = append(c.Suggestions, crit.suggestion)
	}
	c.Average = math.Round(overall/float64(len(posts))*100) / 100
	return c
}

// ─── Challenges ─────────────────────────────────────────────────────────

// ChallengeTarget is what an AI post actually contained.
type ChallengeTarget struct {
	IsFallacy   bool
	FallacyType string
	AppealType  string
}

// ChallengeOutcome is the scored result of a challenge.
type ChallengeOutcome struct {
	Correct bool
	Points  float64
}

// NormalizeChallenge validates and canonicalizes a challenge guess.
func NormalizeChallenge(guess string) (string, error) {
	g := strings.ToLower(strings.TrimSpace(guess))
	g = strings.ReplaceAll(g, " ", "_")
	if slices.Contains(Fallacies, g) || slices.Contains(Appeals, g) {
		return g, nil
	}
	return "", ErrInvalidChallenge.Withf("got %q", guess)
}

// CheckChallenge reports whether a post from debate postDebate can still be
// challenged. Once a debate is scored its percentage is final, so only
// posts of the open debate accept challenges.
func CheckChallenge(s State, postDebate int) error {
	if s.Status == StatusCompleted {
		return ErrDebateCompleted
	}
	if postDebate != s.CurrentDebate {
		return ErrChallengeClosed
	}
	return nil
}

// ScoreChallenge awards 3 to 5 points for a correct identification, more
// with a substantive explanation, and -1 for a wrong one.
func ScoreChallenge(target ChallengeTarget, guess, explanation string) ChallengeOutcome {
	correct := (target.IsFallacy && guess == target.FallacyType) ||
		(target.AppealType != "" && guess == target.AppealType)
	if !correct {
		return ChallengeOutcome{Points: -1}
	}

	points := 3.0
	switch n := len([]rune(strings.TrimSpace(explanation))); {
	case n >= 120:
		points = 5
	case n >= 40:
		points = 4
	}
	return ChallengeOutcome{Correct: true, Points: points}
}
