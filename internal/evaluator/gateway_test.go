package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umadex/umadex-backend/internal/apperror"
	"github.com/umadex/umadex-backend/internal/llm"
)

func newGateway(responses ...llm.MockResponse) (*Gateway, *llm.MockProvider) {
	mock := llm.NewMockProvider(responses...)
	return NewGateway(mock, zerolog.Nop()), mock
}

func raw(s string) llm.MockResponse {
	return llm.MockResponse{Content: json.RawMessage(s)}
}

func TestEvaluateRubric_Decodes(t *testing.T) {
	g, mock := newGateway(raw(`{"score":3,"rationale":"mostly right","feedback":"cite the text","confidence":0.82,"unusual_patterns":[]}`))

	res, err := g.EvaluateRubric(context.Background(), RubricRequest{Question: "Why?", AnswerKey: "Because", StudentAnswer: "Because of X"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Score)
	assert.Equal(t, 0.82, res.Confidence)
	require.Len(t, mock.Calls, 1)
	assert.Equal(t, rubricSchema, mock.Calls[0].Schema)
}

func TestEvaluateRubric_MalformedIsEvaluationFailure(t *testing.T) {
	g, _ := newGateway(raw(`The answer earns a 3.`))

	_, err := g.EvaluateRubric(context.Background(), RubricRequest{})
	var failure *EvaluationFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, PurposeRubric, failure.Purpose)
	assert.True(t, errors.Is(err, ErrEvaluationUnavailable))
	assert.Equal(t, apperror.KindExternalEvaluator, apperror.KindOf(err))

	var inv *llm.ErrInvalidResponse
	assert.ErrorAs(t, err, &inv)
}

func TestEvaluateRubric_OutOfRangeScoreRejected(t *testing.T) {
	g, _ := newGateway(raw(`{"score":9,"rationale":"x","feedback":"","confidence":0.9,"unusual_patterns":[]}`))
	_, err := g.EvaluateRubric(context.Background(), RubricRequest{})
	assert.True(t, errors.Is(err, ErrEvaluationUnavailable))
}

func TestEvaluateAnswer(t *testing.T) {
	g, _ := newGateway(raw(`{"is_correct":true,"confidence":0.93,"feedback":"Nice","suggested_difficulty_change":1}`))

	res, err := g.EvaluateAnswer(context.Background(), AnswerRequest{QuestionType: "comprehension", Question: "q", StudentAnswer: "a", Difficulty: 5})
	require.NoError(t, err)
	assert.True(t, res.IsCorrect)
	require.NotNil(t, res.SuggestedDifficultyChange)
	assert.Equal(t, 1, *res.SuggestedDifficultyChange)
}

func TestEvaluateAnswer_ProviderDown(t *testing.T) {
	g, _ := newGateway()
	_, err := g.EvaluateAnswer(context.Background(), AnswerRequest{})
	var unavailable *llm.ErrProviderUnavailable
	assert.ErrorAs(t, err, &unavailable)
	assert.True(t, errors.Is(err, ErrEvaluationUnavailable))
}

func TestScoreDebatePost(t *testing.T) {
	g, _ := newGateway(raw(`{"clarity":4,"evidence":3,"logic":5,"persuasiveness":4,"rebuttal":2,"feedback":"Add sources"}`))
	res, err := g.ScoreDebatePost(context.Background(), DebatePostRequest{Topic: "t", Statement: "s"})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Logic)
}

func TestGenerateDebateResponse_IncludesFallacyInstruction(t *testing.T) {
	g, mock := newGateway(raw(`{"content":"Everyone agrees, so it must be true.","appeal_type":"pathos"}`))
	res, err := g.GenerateDebateResponse(context.Background(), DebateResponseRequest{
		Topic: "Homework", Position: "con", StatementNumber: 2, FallacyType: "bandwagon",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Content)
	assert.Contains(t, mock.Calls[0].Messages[0].Content, "bandwagon")
}

func TestGenerateTestQuestions_CountMismatch(t *testing.T) {
	g, _ := newGateway(raw(`{"questions":[{"question":"q1","answer_key":"a1"}]}`))
	_, err := g.GenerateTestQuestions(context.Background(), TestQuestionsRequest{Title: "t", Content: "c", Count: 10})
	assert.True(t, errors.Is(err, ErrEvaluationUnavailable))
}
