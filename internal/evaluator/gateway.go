// Package evaluator is the AI evaluation gateway. It turns domain requests
// into schema-constrained LLM calls and decodes the results. Any provider
// failure or malformed output surfaces as *EvaluationFailure so callers can
// fall back to deterministic scoring.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/apperror"
	"github.com/umadex/umadex-backend/internal/llm"
)

// Purposes label LLM calls in logs and metrics.
const (
	PurposeUnitAnswer     = "unit_answer"
	PurposeRubric         = "test_rubric"
	PurposeDebateScore    = "debate_score"
	PurposeDebateResponse = "debate_response"
	PurposeUnitQuestion   = "unit_question"
	PurposeTestQuestions  = "test_questions"
)

// ErrEvaluationUnavailable classifies every EvaluationFailure.
var ErrEvaluationUnavailable = apperror.New(apperror.KindExternalEvaluator, "EVALUATION_UNAVAILABLE", "the AI evaluator could not produce a result")

// EvaluationFailure wraps a provider or decoding error for one purpose.
type EvaluationFailure struct {
	Purpose string
	Err     error
}

func (e *EvaluationFailure) Error() string {
	return fmt.Sprintf("%s evaluation failed: %v", e.Purpose, e.Err)
}

func (e *EvaluationFailure) Unwrap() []error {
	return []error{ErrEvaluationUnavailable, e.Err}
}

type AnswerRequest struct {
	QuestionType  string
	Question      string
	StudentAnswer string
	Difficulty    int
	Content       string
}

type AnswerResult struct {
	IsCorrect                 bool    `json:"is_correct"`
	Confidence                float64 `json:"confidence"`
	Feedback                  string  `json:"feedback"`
	SuggestedDifficultyChange *int    `json:"suggested_difficulty_change"`
}

type RubricRequest struct {
	QuestionIndex int
	Question      string
	AnswerKey     string
	StudentAnswer string
	Rubric        string
}

type RubricResult struct {
	Score           int      `json:"score"`
	Rationale       string   `json:"rationale"`
	Feedback        string   `json:"feedback"`
	Confidence      float64  `json:"confidence"`
	UnusualPatterns []string `json:"unusual_patterns"`
}

type DebatePostRequest struct {
	Topic           string
	Position        string
	Statement       string
	DebateNumber    int
	StatementNumber int
}

type PostScores struct {
	Clarity        int    `json:"clarity"`
	Evidence       int    `json:"evidence"`
	Logic          int    `json:"logic"`
	Persuasiveness int    `json:"persuasiveness"`
	Rebuttal       int    `json:"rebuttal"`
	Feedback       string `json:"feedback"`
}

type DebateResponseRequest struct {
	Topic           string
	Position        string
	StatementNumber int
	History         []string
	// FallacyType, when set, asks for a statement containing that fallacy.
	FallacyType string
}

type DebateResponse struct {
	Content string `json:"content"`
	// AppealType is the rhetorical appeal the statement leans on most.
	AppealType string `json:"appeal_type"`
}

type UnitQuestionRequest struct {
	QuestionType string
	Difficulty   int
	Content      string
}

type UnitQuestion struct {
	Question       string `json:"question"`
	ExpectedAnswer string `json:"expected_answer"`
}

type TestQuestionsRequest struct {
	Title   string
	Content string
	Count   int
}

type TestQuestion struct {
	Question  string `json:"question"`
	AnswerKey string `json:"answer_key"`
}

// Gateway calls the configured LLM provider for every evaluation and
// generation purpose.
type Gateway struct {
	provider llm.Provider
	log      zerolog.Logger
}

func NewGateway(provider llm.Provider, log zerolog.Logger) *Gateway {
	return &Gateway{
		provider: provider,
		log:      log.With().Str("component", "evaluator").Logger(),
	}
}

// EvaluateAnswer judges a reading unit answer.
func (g *Gateway) EvaluateAnswer(ctx context.Context, r AnswerRequest) (*AnswerResult, error) {
	var out AnswerResult
	if err := g.call(ctx, PurposeUnitAnswer, systemReading, answerPrompt(r), answerSchema, 512, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EvaluateRubric scores a test answer on the 0-4 rubric.
func (g *Gateway) EvaluateRubric(ctx context.Context, r RubricRequest) (*RubricResult, error) {
	var out RubricResult
	if err := g.call(ctx, PurposeRubric, systemRubric, rubricPrompt(r), rubricSchema, 768, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) ScoreDebatePost(ctx context.Context, r DebatePostRequest) (*PostScores, error) {
	var out PostScores
	if err := g.call(ctx, PurposeDebateScore, systemDebate, debatePostPrompt(r), debatePostSchema, 512, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) GenerateDebateResponse(ctx context.Context, r DebateResponseRequest) (*DebateResponse, error) {
	var out DebateResponse
	if err := g.call(ctx, PurposeDebateResponse, systemDebate, debateResponsePrompt(r), debateResponseSchema, 1024, &out); err != nil {
		return nil, err
	}
	if out.Content == "" {
		return nil, &EvaluationFailure{Purpose: PurposeDebateResponse, Err: fmt.Errorf("empty statement")}
	}
	return &out, nil
}

func (g *Gateway) GenerateUnitQuestion(ctx context.Context, r UnitQuestionRequest) (*UnitQuestion, error) {
	var out UnitQuestion
	if err := g.call(ctx, PurposeUnitQuestion, systemAuthor, unitQuestionPrompt(r), unitQuestionSchema, 512, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateTestQuestions returns exactly r.Count questions or fails.
func (g *Gateway) GenerateTestQuestions(ctx context.Context, r TestQuestionsRequest) ([]TestQuestion, error) {
	var out struct {
		Questions []TestQuestion `json:"questions"`
	}
	if err := g.call(ctx, PurposeTestQuestions, systemAuthor, testQuestionsPrompt(r), testQuestionsSchema, 4096, &out); err != nil {
		return nil, err
	}
	if len(out.Questions) != r.Count {
		return nil, &EvaluationFailure{
			Purpose: PurposeTestQuestions,
			Err:     fmt.Errorf("expected %d questions, got %d", r.Count, len(out.Questions)),
		}
	}
	return out.Questions, nil
}

func (g *Gateway) call(ctx context.Context, purpose, system, prompt string, schema *llm.Schema, maxTokens int, dst any) error {
	ctx = llm.WithPurpose(ctx, purpose)
	resp, err := g.provider.Generate(ctx, llm.UserPrompt(system, prompt, schema, maxTokens))
	if err != nil {
		return &EvaluationFailure{Purpose: purpose, Err: err}
	}
	if err := json.Unmarshal(resp.Content, dst); err != nil {
		g.log.Warn().Err(err).Str("purpose", purpose).Msg("Undecodable evaluator output")
		return &EvaluationFailure{Purpose: purpose, Err: &llm.ErrInvalidResponse{Content: resp.Content, Err: err}}
	}
	return nil
}
