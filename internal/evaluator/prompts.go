package evaluator

import (
	"fmt"
	"strings"
)

const (
	systemReading = "You grade middle and high school reading responses. Be encouraging and precise. Reply only with JSON."
	systemRubric  = "You grade open-response test answers against an answer key using a 0-4 rubric. Reply only with JSON."
	systemDebate  = "You are a debate coach and sparring partner for students. Reply only with JSON."
	systemAuthor  = "You write reading assessment questions for students. Reply only with JSON."
)

func answerPrompt(r AnswerRequest) string {
	return fmt.Sprintf(`Passage (difficulty %d of 8):
%s

Question type: %s
Question: %s
Student answer: %s

Decide whether the answer is correct for this question type. Suggest a difficulty change of -1, 0 or 1.`,
		r.Difficulty, r.Content, r.QuestionType, r.Question, r.StudentAnswer)
}

func rubricPrompt(r RubricRequest) string {
	return fmt.Sprintf(`Rubric:
%s

Question: %s
Answer key: %s
Student answer: %s

Score the answer from 0 to 4, explain why, and list any unusual patterns (copied text, off-topic, nonsense).`,
		r.Rubric, r.Question, r.AnswerKey, r.StudentAnswer)
}

func debatePostPrompt(r DebatePostRequest) string {
	return fmt.Sprintf(`Debate topic: %s
Student position: %s
Debate %d, statement %d:
%s

Score clarity, evidence, logic, persuasiveness and rebuttal from 1 to 5 and give short feedback.`,
		r.Topic, r.Position, r.DebateNumber, r.StatementNumber, r.Statement)
}

func debateResponsePrompt(r DebateResponseRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Debate topic: %s\nYou argue the %s side. Statement %d of 5.\n\nSo far:\n", r.Topic, r.Position, r.StatementNumber)
	for i, h := range r.History {
		fmt.Fprintf(&b, "%d. %s\n", i+1, h)
	}
	if r.FallacyType != "" {
		fmt.Fprintf(&b, "\nDeliberately include one %s fallacy in your argument without naming it.\n", r.FallacyType)
	}
	b.WriteString("\nWrite your next statement in under 200 words and name the appeal (ethos, pathos or logos) it relies on most.")
	return b.String()
}

func unitQuestionPrompt(r UnitQuestionRequest) string {
	return fmt.Sprintf(`Passage:
%s

Write one %s question at difficulty %d of 8. Summary questions ask the student to restate the main idea; comprehension questions probe a specific detail or inference.`,
		r.Content, r.QuestionType, r.Difficulty)
}

func testQuestionsPrompt(r TestQuestionsRequest) string {
	return fmt.Sprintf(`Source material from %q:
%s

Write exactly %d open-response questions with an answer key for each.`,
		r.Title, r.Content, r.Count)
}
