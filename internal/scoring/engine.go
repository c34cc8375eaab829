package scoring

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/evaluator"
	"github.com/umadex/umadex-backend/internal/metrics"
)

// RubricEvaluator is the part of the evaluation gateway the engine needs.
type RubricEvaluator interface {
	EvaluateRubric(ctx context.Context, r evaluator.RubricRequest) (*evaluator.RubricResult, error)
}

// Question is one test question with its grading material.
type Question struct {
	Index     int
	Text      string
	AnswerKey string
	Rubric    string
}

// Engine evaluates a submitted attempt question by question and grades it.
type Engine struct {
	evaluator RubricEvaluator
	log       zerolog.Logger
}

func NewEngine(ev RubricEvaluator, log zerolog.Logger) *Engine {
	return &Engine{evaluator: ev, log: log.With().Str("component", "scoring").Logger()}
}

// Evaluate scores every question concurrently. Evaluator failures are
// replaced with FallbackEvaluation, so the only errors returned are
// structural (wrong question count).
func (e *Engine) Evaluate(ctx context.Context, questions []Question, answers map[int]string) (Result, error) {
	evals := make([]Evaluation, len(questions))

	var wg sync.WaitGroup
	for i, q := range questions {
		wg.Go(func() {
			evals[i] = e.evaluateOne(ctx, q, answers[q.Index])
		})
	}
	wg.Wait()

	sort.Slice(evals, func(a, b int) bool { return evals[a].QuestionIndex < evals[b].QuestionIndex })
	return Grade(evals)
}

func (e *Engine) evaluateOne(ctx context.Context, q Question, answer string) Evaluation {
	res, err := e.evaluator.EvaluateRubric(ctx, evaluator.RubricRequest{
		QuestionIndex: q.Index,
		Question:      q.Text,
		AnswerKey:     q.AnswerKey,
		StudentAnswer: answer,
		Rubric:        q.Rubric,
	})
	if err != nil {
		e.log.Warn().Err(err).Int("question_index", q.Index).Msg("Rubric evaluation failed, using fallback")
		metrics.Evaluations.WithLabelValues(evaluator.PurposeRubric, "fallback").Inc()
		return FallbackEvaluation(q.Index, answer)
	}

	metrics.Evaluations.WithLabelValues(evaluator.PurposeRubric, "ai").Inc()
	return Evaluation{
		QuestionIndex:   q.Index,
		RubricScore:     res.Score,
		Rationale:       res.Rationale,
		Feedback:        res.Feedback,
		Confidence:      res.Confidence,
		UnusualPatterns: res.UnusualPatterns,
	}
}
