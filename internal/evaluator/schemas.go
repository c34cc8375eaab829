package evaluator

import "github.com/umadex/umadex-backend/internal/llm"

func obj(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

var (
	str        = map[string]any{"type": "string"}
	confidence = map[string]any{"type": "number", "minimum": 0, "maximum": 1}
	subScore   = map[string]any{"type": "integer", "minimum": 1, "maximum": 5}
	strList    = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
)

var answerSchema = &llm.Schema{
	Name:        "unit-answer-evaluation",
	Description: "Correctness verdict for a reading comprehension answer",
	Definition: obj(
		[]string{"is_correct", "confidence", "feedback", "suggested_difficulty_change"},
		map[string]any{
			"is_correct":                  map[string]any{"type": "boolean"},
			"confidence":                  confidence,
			"feedback":                    str,
			"suggested_difficulty_change": map[string]any{"type": "integer", "minimum": -1, "maximum": 1},
		},
	),
}

var rubricSchema = &llm.Schema{
	Name:        "rubric-evaluation",
	Description: "Rubric score (0-4) for a test answer",
	Definition: obj(
		[]string{"score", "rationale", "feedback", "confidence", "unusual_patterns"},
		map[string]any{
			"score":            map[string]any{"type": "integer", "minimum": 0, "maximum": 4},
			"rationale":        str,
			"feedback":         str,
			"confidence":       confidence,
			"unusual_patterns": strList,
		},
	),
}

var debatePostSchema = &llm.Schema{
	Name:        "debate-post-scores",
	Description: "Five 1-5 rubric scores for a debate statement",
	Definition: obj(
		[]string{"clarity", "evidence", "logic", "persuasiveness", "rebuttal", "feedback"},
		map[string]any{
			"clarity":        subScore,
			"evidence":       subScore,
			"logic":          subScore,
			"persuasiveness": subScore,
			"rebuttal":       subScore,
			"feedback":       str,
		},
	),
}

var debateResponseSchema = &llm.Schema{
	Name:        "debate-ai-statement",
	Description: "The opposing side's next statement",
	Definition: obj(
		[]string{"content", "appeal_type"},
		map[string]any{
			"content":     str,
			"appeal_type": map[string]any{"type": "string", "enum": []string{"ethos", "pathos", "logos"}},
		},
	),
}

var unitQuestionSchema = &llm.Schema{
	Name:        "unit-question",
	Description: "One question about a reading chunk",
	Definition: obj(
		[]string{"question", "expected_answer"},
		map[string]any{"question": str, "expected_answer": str},
	),
}

var testQuestionsSchema = &llm.Schema{
	Name:        "test-questions",
	Description: "Open-response test questions with answer keys",
	Definition: obj(
		[]string{"questions"},
		map[string]any{
			"questions": map[string]any{
				"type": "array",
				"items": obj(
					[]string{"question", "answer_key"},
					map[string]any{"question": str, "answer_key": str},
				),
			},
		},
	),
}
