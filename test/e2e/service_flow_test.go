//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umadex/umadex-backend/internal/apperror"
	"github.com/umadex/umadex-backend/internal/bypass"
	"github.com/umadex/umadex-backend/internal/config"
	"github.com/umadex/umadex-backend/internal/database"
	"github.com/umadex/umadex-backend/internal/evaluator"
	"github.com/umadex/umadex-backend/internal/llm"
	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/progress"
	"github.com/umadex/umadex-backend/internal/repository"
	"github.com/umadex/umadex-backend/internal/schedule"
	"github.com/umadex/umadex-backend/internal/scoring"
	"github.com/umadex/umadex-backend/internal/service"
)

// The tests in this file drive the services in process against the e2e
// database, with a mock LLM provider so evaluator verdicts are scripted.

type stack struct {
	pool        *pgxpool.Pool
	provider    *llm.MockProvider
	attemptRepo *repository.AttemptRepository
	reading     *service.ReadingService
	tests       *service.TestService
	schedules   *service.ScheduleService
	grading     *service.GradingService
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()
	cfg := config.Load()
	log := zerolog.Nop()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	provider := llm.NewMockProvider()
	gateway := evaluator.NewGateway(provider, log)

	testRepo := repository.NewTestRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	bypassRepo := repository.NewBypassRepository(pool)
	validator := bypass.NewValidator(bypassRepo, bypass.NewRedisLimiter(rdb, cfg.BypassMaxFailures, cfg.BypassWindow), log)

	monitorSvc := service.NewMonitorService(repository.NewMonitorRepository(pool), testRepo, rdb, log)
	scheduleSvc := service.NewScheduleService(pool, testRepo, attemptRepo, bypassRepo, validator, log)

	return &stack{
		pool:        pool,
		provider:    provider,
		attemptRepo: attemptRepo,
		reading:     service.NewReadingService(pool, repository.NewReadingRepository(pool), bypassRepo, validator, gateway, log),
		tests:       service.NewTestService(pool, testRepo, attemptRepo, bypassRepo, scheduleSvc, monitorSvc, validator, rdb, cfg.SecurityViolationLimit, log),
		schedules:   scheduleSvc,
		grading:     service.NewGradingService(pool, testRepo, attemptRepo, scoring.NewEngine(gateway, log), monitorSvc, log),
	}
}

func (s *stack) exec(t *testing.T, sql string, args ...any) {
	t.Helper()
	_, err := s.pool.Exec(context.Background(), sql, args...)
	require.NoError(t, err)
}

// seedTest creates a published ten-question test owned by the e2e teacher.
func (s *stack) seedTest(t *testing.T, attemptLimit int, sched *schedule.Schedule) uuid.UUID {
	t.Helper()
	id := uuid.New()
	var raw []byte
	if sched != nil {
		var err error
		raw, err = json.Marshal(sched)
		require.NoError(t, err)
	}
	s.exec(t, `INSERT INTO tests (id, teacher_id, classroom_id, title, status, attempt_limit, schedule)
		VALUES ($1, $2, $3, 'Service Test', 'published', $4, $5)`,
		id, teacherID, classroomID, attemptLimit, raw)
	s.exec(t, `INSERT INTO test_questions (test_id, question_index, question, answer_key)
		SELECT $1, i, 'Question ' || i, 'Answer ' || i FROM generate_series(0, 9) AS i`, id)
	return id
}

// seedOverrideCode issues a single-use schedule override for the e2e student.
func (s *stack) seedOverrideCode(t *testing.T, testID uuid.UUID) string {
	t.Helper()
	code, err := bypass.GenerateCode()
	require.NoError(t, err)
	s.exec(t, `INSERT INTO override_codes (teacher_id, student_id, context_type, context_id, code, expires_at)
		VALUES ($1, $2, $3, $4, $5, NOW() + INTERVAL '1 hour')`,
		teacherID, studentID, bypass.ContextTestSchedule, testID, code)
	return code
}

func (s *stack) codeUses(t *testing.T, code string) int {
	t.Helper()
	var uses int
	require.NoError(t, s.pool.QueryRow(context.Background(),
		`SELECT current_uses FROM override_codes WHERE code = $1`, code).Scan(&uses))
	return uses
}

// closedSchedule has a single window two days from now, so the test is
// never open while it runs.
func closedSchedule() *schedule.Schedule {
	day := strings.ToLower(time.Now().UTC().Add(48 * time.Hour).Weekday().String())
	return &schedule.Schedule{
		Timezone: "UTC",
		IsActive: true,
		Windows:  []schedule.Window{{Days: []string{day}, Start: "00:00", End: "00:01"}},
	}
}

func suggested(n int) *int { return &n }

func TestReadingFlow(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	assignmentID := uuid.New()
	s.exec(t, `INSERT INTO reading_assignments (id, teacher_id, classroom_id, title, initial_difficulty)
		VALUES ($1, $2, $3, 'Tides', 5)`, assignmentID, teacherID, classroomID)
	s.exec(t, `INSERT INTO reading_chunks (assignment_id, chunk_order, content) VALUES
		($1, 1, 'The moon pulls on the oceans.'),
		($1, 2, 'Water bulges on both sides of the earth.')`, assignmentID)

	submit := func(chunk int, phase, answer string) *model.SubmitAnswerResponse {
		t.Helper()
		resp, err := s.reading.SubmitAnswer(ctx, studentID, assignmentID, chunk, model.SubmitAnswerRequest{
			QuestionType: phase,
			Answer:       answer,
		})
		require.NoError(t, err)
		return resp
	}

	t.Run("SummaryThenComprehension", func(t *testing.T) {
		s.provider.Respond(evaluator.AnswerResult{IsCorrect: true, Confidence: 0.9, Feedback: "Good summary.", SuggestedDifficultyChange: suggested(0)})
		resp := submit(1, "summary", "The moon's gravity causes tides.")
		assert.True(t, resp.IsCorrect)
		require.NotNil(t, resp.NextQuestionType)
		assert.Equal(t, "comprehension", *resp.NextQuestionType)
		assert.Equal(t, 5, resp.Difficulty)

		s.provider.Respond(evaluator.AnswerResult{IsCorrect: true, Confidence: 0.9, Feedback: "Correct.", SuggestedDifficultyChange: suggested(1)})
		resp = submit(1, "comprehension", "Because the moon pulls the water toward it.")
		assert.True(t, resp.IsCorrect)
		assert.True(t, resp.Advance)
		assert.Nil(t, resp.NextQuestionType)
		assert.Equal(t, 6, resp.Difficulty)
		assert.Equal(t, 2, resp.NextChunk)
		assert.False(t, resp.AssignmentCompleted)

		p, err := s.reading.GetProgress(ctx, studentID, assignmentID)
		require.NoError(t, err)
		assert.Equal(t, 6, p.Assignment.DifficultyLevel)
		assert.Equal(t, []int{1}, p.Assignment.ChunksCompleted)
	})

	t.Run("PlainWordIsEvaluated", func(t *testing.T) {
		before := s.provider.CallCount()
		s.provider.Respond(evaluator.AnswerResult{IsCorrect: false, Confidence: 0.8, Feedback: "Say more.", SuggestedDifficultyChange: suggested(0)})
		resp := submit(2, "summary", "pressure")
		assert.False(t, resp.IsCorrect)
		assert.False(t, resp.Bypassed)
		assert.Equal(t, before+1, s.provider.CallCount())
	})

	t.Run("BypassCompletesAssignment", func(t *testing.T) {
		before := s.provider.CallCount()

		resp := submit(2, "summary", "!BYPASS-"+permanentCode)
		assert.True(t, resp.Bypassed)
		assert.Equal(t, string(bypass.CodePermanent), resp.BypassCodeType)
		require.NotNil(t, resp.NextQuestionType)
		assert.Equal(t, "comprehension", *resp.NextQuestionType)
		assert.False(t, resp.AssignmentCompleted)

		resp = submit(2, "comprehension", "!bypass-"+permanentCode)
		assert.True(t, resp.Bypassed)
		assert.True(t, resp.AssignmentCompleted)
		assert.Equal(t, before, s.provider.CallCount(), "codes never reach the evaluator")

		p, err := s.reading.GetProgress(ctx, studentID, assignmentID)
		require.NoError(t, err)
		assert.Equal(t, progress.StatusCompleted, p.Assignment.Status)
		assert.Equal(t, 2, p.Assignment.TotalChunksCompleted)
		assert.NotNil(t, p.Assignment.CompletedAt)
		for _, c := range p.Chunks {
			assert.True(t, c.SummaryCompleted)
			assert.True(t, c.ComprehensionCompleted)
		}
	})

	t.Run("CompletedChunkRejectsAnswers", func(t *testing.T) {
		_, err := s.reading.SubmitAnswer(ctx, studentID, assignmentID, 2, model.SubmitAnswerRequest{
			QuestionType: "summary",
			Answer:       "!BYPASS-" + permanentCode,
		})
		assert.ErrorIs(t, err, progress.ErrChunkAlreadyComplete)
	})
}

func TestOverrideQuestionScore(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	testID := s.seedTest(t, 1, nil)

	a, err := s.attemptRepo.Create(ctx, testID, studentID, 1)
	require.NoError(t, err)
	now := time.Now()
	a.Status = model.AttemptSubmitted
	a.SubmittedAt = &now
	a.Answers = map[int]string{}
	for i := range 10 {
		a.Answers[i] = fmt.Sprintf("A complete answer for question %d", i)
	}
	require.NoError(t, s.attemptRepo.Update(ctx, a))

	for range 10 {
		s.provider.Respond(evaluator.RubricResult{Score: 4, Rationale: "Complete.", Feedback: "Well done.", Confidence: 0.9, UnusualPatterns: []string{}})
	}
	graded, err := s.grading.GradeAttempt(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, graded.Score)
	require.Equal(t, 100.0, *graded.Score)

	tests := []struct {
		name  string
		score float64
		want  float64
	}{
		{"82 maps to the 80 band", 82, 98},
		{"override is idempotent", 82, 98},
		{"back to full marks", 95, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := 3
			res, err := s.grading.OverrideScore(ctx, teacherID, a.ID, model.OverrideScoreRequest{
				QuestionIndex: &q,
				Score:         tt.score,
				Reason:        "Partial credit on question 3",
			})
			require.NoError(t, err)
			require.NotNil(t, res.Attempt.Score)
			assert.Equal(t, tt.want, *res.Attempt.Score)

			for _, e := range res.Evaluations {
				if e.QuestionIndex == q {
					assert.Equal(t, tt.want-90, e.PointsEarned)
				} else {
					assert.Equal(t, 10.0, e.PointsEarned)
				}
			}
		})
	}
}

func TestScheduleOverrideIsSpentWithTheAttempt(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	t.Run("AttemptLimitLeavesCodeUnused", func(t *testing.T) {
		testID := s.seedTest(t, 1, closedSchedule())
		a, err := s.attemptRepo.Create(ctx, testID, studentID, 1)
		require.NoError(t, err)
		s.exec(t, `UPDATE test_attempts SET status = 'submitted', submitted_at = NOW() WHERE id = $1`, a.ID)
		code := s.seedOverrideCode(t, testID)

		_, err = s.tests.StartTestAttempt(ctx, studentID, testID, code)
		assert.ErrorIs(t, err, service.ErrAttemptLimitReached)
		assert.Equal(t, 0, s.codeUses(t, code))
	})

	t.Run("CodeOpensClosedTest", func(t *testing.T) {
		testID := s.seedTest(t, 1, closedSchedule())
		code := s.seedOverrideCode(t, testID)

		_, err := s.tests.StartTestAttempt(ctx, studentID, testID, "")
		assert.ErrorIs(t, err, service.ErrTestNotAvailable)

		a, err := s.tests.StartTestAttempt(ctx, studentID, testID, code)
		require.NoError(t, err)
		assert.Equal(t, model.AttemptInProgress, a.Status)
		assert.Equal(t, 1, s.codeUses(t, code))

		var usages int
		require.NoError(t, s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM override_usages WHERE student_id = $1 AND context_id = $2`,
			studentID, testID).Scan(&usages))
		assert.Equal(t, 1, usages)
	})

	t.Run("AttemptMustBelongToStudent", func(t *testing.T) {
		testID := s.seedTest(t, 1, closedSchedule())
		other := uuid.New()
		s.exec(t, `INSERT INTO students (id, name, email) VALUES ($1, 'Other Student', $2)`,
			other, "student-"+other.String()+"@example.com")
		s.exec(t, `INSERT INTO classroom_students (classroom_id, student_id) VALUES ($1, $2)`, classroomID, other)
		theirs, err := s.attemptRepo.Create(ctx, testID, other, 1)
		require.NoError(t, err)
		code := s.seedOverrideCode(t, testID)

		_, err = s.schedules.ValidateAndUseOverride(ctx, studentID, testID, code, &theirs.ID)
		assert.ErrorIs(t, err, apperror.ErrForbidden)
		assert.Equal(t, 0, s.codeUses(t, code))
	})
}
