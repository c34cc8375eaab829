package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/apperror"
	"github.com/umadex/umadex-backend/internal/bypass"
	"github.com/umadex/umadex-backend/internal/database"
	"github.com/umadex/umadex-backend/internal/evaluator"
	"github.com/umadex/umadex-backend/internal/metrics"
	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/progress"
	"github.com/umadex/umadex-backend/internal/repository"
)

// Feedback shown when a code-shaped answer is not a valid code, and when
// the evaluator is unreachable.
const (
	invalidCodeFeedback     = "That override code is not valid."
	evaluationRetryFeedback = "We could not check your answer right now. Please try again in a moment."
)

// ReadingEvaluator is the part of the evaluation gateway used by UMARead.
type ReadingEvaluator interface {
	EvaluateAnswer(ctx context.Context, r evaluator.AnswerRequest) (*evaluator.AnswerResult, error)
	GenerateUnitQuestion(ctx context.Context, r evaluator.UnitQuestionRequest) (*evaluator.UnitQuestion, error)
}

// ReadingService runs the UMARead chunk flow: question fetch, answer
// submission with bypass, simplification and the assignment rollup.
type ReadingService struct {
	pool        *pgxpool.Pool
	readingRepo *repository.ReadingRepository
	bypassRepo  *repository.BypassRepository
	validator   *bypass.Validator
	evaluator   ReadingEvaluator
	log         zerolog.Logger
	now         func() time.Time
}

// NewReadingService creates a new ReadingService.
func NewReadingService(
	pool *pgxpool.Pool,
	readingRepo *repository.ReadingRepository,
	bypassRepo *repository.BypassRepository,
	validator *bypass.Validator,
	ev ReadingEvaluator,
	log zerolog.Logger,
) *ReadingService {
	return &ReadingService{
		pool:        pool,
		readingRepo: readingRepo,
		bypassRepo:  bypassRepo,
		validator:   validator,
		evaluator:   ev,
		log:         log.With().Str("component", "reading").Logger(),
		now:         time.Now,
	}
}

// ─── Unit lifecycle ─────────────────────────────────────────────────────

func (s *ReadingService) loadAssignment(ctx context.Context, studentID, assignmentID uuid.UUID) (*model.ReadingAssignment, error) {
	a, err := s.readingRepo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	ok, err := s.readingRepo.IsEnrolled(ctx, a.ClassroomID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !ok {
		return nil, ErrNotEnrolled
	}
	return a, nil
}

func (s *ReadingService) ensureAssignmentProgress(ctx context.Context, a *model.ReadingAssignment, studentID uuid.UUID) (*model.AssignmentProgress, error) {
	p, err := s.readingRepo.GetAssignmentProgress(ctx, studentID, a.ID, false)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	state, err := progress.NewAssignmentState(a.InitialDifficulty)
	if err != nil {
		return nil, err
	}
	p = &model.AssignmentProgress{StudentID: studentID, AssignmentID: a.ID}
	p.Apply(state)
	return s.readingRepo.CreateAssignmentProgress(ctx, p)
}

// StartUnit makes sure the student has progress rows for the assignment and
// the chunk, creating them lazily. A chunk past the student's current one
// is locked.
func (s *ReadingService) StartUnit(ctx context.Context, studentID, assignmentID uuid.UUID, chunk int) (*model.ChunkProgress, error) {
	a, err := s.loadAssignment(ctx, studentID, assignmentID)
	if err != nil {
		return nil, err
	}
	_, cp, err := s.startUnit(ctx, a, studentID, chunk)
	return cp, err
}

func (s *ReadingService) startUnit(ctx context.Context, a *model.ReadingAssignment, studentID uuid.UUID, chunk int) (*model.AssignmentProgress, *model.ChunkProgress, error) {
	if chunk < 1 || chunk > a.ChunkCount {
		return nil, nil, progress.ErrInvalidUnitIndex.Withf("chunk %d of %d", chunk, a.ChunkCount)
	}
	ap, err := s.ensureAssignmentProgress(ctx, a, studentID)
	if err != nil {
		return nil, nil, err
	}
	if chunk > ap.CurrentChunk {
		return nil, nil, ErrChunkLocked.Withf("current chunk is %d", ap.CurrentChunk)
	}

	cp, err := s.readingRepo.GetChunkProgress(ctx, studentID, a.ID, chunk, false)
	if err == nil {
		return ap, cp, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, nil, err
	}
	cp, err = s.readingRepo.CreateChunkProgress(ctx, &model.ChunkProgress{
		StudentID:         studentID,
		AssignmentID:      a.ID,
		ChunkNumber:       chunk,
		CurrentDifficulty: ap.DifficultyLevel,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create chunk progress: %w", err)
	}
	return ap, cp, nil
}

// ─── Questions ──────────────────────────────────────────────────────────

// GetCurrentQuestion returns the question for the chunk's active phase.
// A question is generated once per phase and difficulty and then served
// from the progress row.
func (s *ReadingService) GetCurrentQuestion(ctx context.Context, studentID, assignmentID uuid.UUID, chunk int) (*model.QuestionResponse, error) {
	a, err := s.loadAssignment(ctx, studentID, assignmentID)
	if err != nil {
		return nil, err
	}
	_, cp, err := s.startUnit(ctx, a, studentID, chunk)
	if err != nil {
		return nil, err
	}
	return s.currentQuestion(ctx, a, cp)
}

func (s *ReadingService) currentQuestion(ctx context.Context, a *model.ReadingAssignment, cp *model.ChunkProgress) (*model.QuestionResponse, error) {
	phase, err := cp.State().ActivePhase()
	if err != nil {
		return nil, err
	}
	content, err := s.readingRepo.GetChunk(ctx, a.ID, cp.ChunkNumber)
	if err != nil {
		return nil, err
	}

	resp := &model.QuestionResponse{
		ChunkNumber:  cp.ChunkNumber,
		QuestionType: string(phase),
		Difficulty:   cp.CurrentDifficulty,
		Content:      content.Content,
	}
	if q, ok := cp.CachedQuestion(phase, cp.CurrentDifficulty); ok {
		resp.Question = q
		return resp, nil
	}

	question, expected := s.generateQuestion(ctx, phase, cp.CurrentDifficulty, content.Content)

	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := s.readingRepo.WithTx(tx)
		locked, err := repo.GetChunkProgress(ctx, cp.StudentID, cp.AssignmentID, cp.ChunkNumber, true)
		if err != nil {
			return err
		}
		// A concurrent fetch may have stored a question first.
		if q, ok := locked.CachedQuestion(phase, locked.CurrentDifficulty); ok {
			question = q
			return nil
		}
		locked.SetQuestion(phase, locked.CurrentDifficulty, question, expected)
		resp.Difficulty = locked.CurrentDifficulty
		return repo.UpdateChunkProgress(ctx, locked)
	})
	if err != nil {
		return nil, fmt.Errorf("store question: %w", err)
	}

	resp.Question = question
	return resp, nil
}

func (s *ReadingService) generateQuestion(ctx context.Context, phase progress.Phase, difficulty int, content string) (string, string) {
	q, err := s.evaluator.GenerateUnitQuestion(ctx, evaluator.UnitQuestionRequest{
		QuestionType: string(phase),
		Difficulty:   difficulty,
		Content:      content,
	})
	if err == nil {
		return q.Question, q.ExpectedAnswer
	}

	s.log.Warn().Err(err).Str("phase", string(phase)).Int("difficulty", difficulty).Msg("Question generation failed, using fallback question")
	metrics.Evaluations.WithLabelValues(evaluator.PurposeUnitQuestion, "fallback").Inc()
	if phase == progress.PhaseSummary {
		return "Summarize the main idea of this section in two or three sentences.", ""
	}
	return "What is the most important detail in this section, and why does it matter?", ""
}

// RequestSimplerQuestion lowers the chunk's difficulty by one and returns a
// freshly generated comprehension question.
func (s *ReadingService) RequestSimplerQuestion(ctx context.Context, studentID, assignmentID uuid.UUID, chunk int) (*model.QuestionResponse, error) {
	a, err := s.loadAssignment(ctx, studentID, assignmentID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.startUnit(ctx, a, studentID, chunk); err != nil {
		return nil, err
	}

	var cp *model.ChunkProgress
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := s.readingRepo.WithTx(tx)
		locked, err := repo.GetChunkProgress(ctx, studentID, assignmentID, chunk, true)
		if err != nil {
			return err
		}
		if err := locked.State().CanSimplify(); err != nil {
			return err
		}
		level, err := progress.Simplify(locked.CurrentDifficulty)
		if err != nil {
			return err
		}
		locked.CurrentDifficulty = level
		locked.ClearQuestion()
		if err := repo.UpdateChunkProgress(ctx, locked); err != nil {
			return err
		}

		ap, err := repo.GetAssignmentProgress(ctx, studentID, assignmentID, true)
		if err != nil {
			return err
		}
		ap.DifficultyLevel = level
		if err := repo.UpdateAssignmentProgress(ctx, ap); err != nil {
			return err
		}
		cp = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("student_id", studentID.String()).
		Str("assignment_id", assignmentID.String()).
		Int("chunk", chunk).
		Int("difficulty", cp.CurrentDifficulty).
		Msg("Difficulty lowered on request")
	return s.currentQuestion(ctx, a, cp)
}

// ─── Answers ────────────────────────────────────────────────────────────

// SubmitAnswer evaluates an answer for the chunk's active phase. A
// code-shaped answer is checked as a bypass code first and never reaches
// the evaluator.
func (s *ReadingService) SubmitAnswer(ctx context.Context, studentID, assignmentID uuid.UUID, chunk int, req model.SubmitAnswerRequest) (*model.SubmitAnswerResponse, error) {
	phase, err := progress.ParsePhase(req.QuestionType)
	if err != nil {
		return nil, err
	}
	a, err := s.loadAssignment(ctx, studentID, assignmentID)
	if err != nil {
		return nil, err
	}
	ap, cp, err := s.startUnit(ctx, a, studentID, chunk)
	if err != nil {
		return nil, err
	}
	active, err := cp.State().ActivePhase()
	if err != nil {
		return nil, err
	}
	if active != phase {
		return nil, progress.ErrWrongPhase.Withf("expected %s, got %s", active, phase)
	}
	content, err := s.readingRepo.GetChunk(ctx, a.ID, chunk)
	if err != nil {
		return nil, err
	}

	if bypass.LooksLikeCode(req.Answer) {
		invalid := &model.SubmitAnswerResponse{
			Feedback:   invalidCodeFeedback,
			Difficulty: cp.CurrentDifficulty,
			NextChunk:  ap.CurrentChunk,
		}
		return s.applyBypass(ctx, a, studentID, chunk, content.ID, req.Answer, invalid)
	}

	question, _ := cp.CachedQuestion(phase, cp.CurrentDifficulty)
	result, err := s.evaluator.EvaluateAnswer(ctx, evaluator.AnswerRequest{
		QuestionType:  string(phase),
		Question:      question,
		StudentAnswer: req.Answer,
		Difficulty:    cp.CurrentDifficulty,
		Content:       content.Content,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("student_id", studentID.String()).Int("chunk", chunk).Msg("Answer evaluation failed")
		metrics.Evaluations.WithLabelValues(evaluator.PurposeUnitAnswer, "fallback").Inc()
		return &model.SubmitAnswerResponse{
			Feedback:   evaluationRetryFeedback,
			Difficulty: cp.CurrentDifficulty,
			NextChunk:  ap.CurrentChunk,
		}, nil
	}
	metrics.Evaluations.WithLabelValues(evaluator.PurposeUnitAnswer, "ai").Inc()

	ev := progress.Evaluation{
		IsCorrect:                 result.IsCorrect,
		Confidence:                result.Confidence,
		Feedback:                  result.Feedback,
		SuggestedDifficultyChange: result.SuggestedDifficultyChange,
	}
	return s.applyTransition(ctx, a, studentID, chunk, req.Answer, question, func(st *progress.UnitState) (progress.Transition, error) {
		return progress.Submit(st, phase, ev, s.now())
	})
}

// applyBypass checks code and, when valid, bypasses the active phase. The
// code is consumed in the transaction that records the bypass, so a chunk
// completed concurrently leaves a one-time code unspent.
func (s *ReadingService) applyBypass(
	ctx context.Context,
	a *model.ReadingAssignment,
	studentID uuid.UUID,
	chunk int,
	chunkID uuid.UUID,
	code string,
	invalid *model.SubmitAnswerResponse,
) (*model.SubmitAnswerResponse, error) {
	var resp *model.SubmitAnswerResponse
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		bypassRepo := s.bypassRepo.WithTx(tx)
		res, err := s.validator.WithStore(bypassRepo).Validate(ctx, code, bypass.Context{Type: bypass.ContextReadingChunk, ID: chunkID}, studentID)
		if err != nil {
			return err
		}
		switch {
		case res.CodeType == bypass.CodeRateLimited:
			return ErrBypassRateLimited
		case !res.Valid:
			resp = invalid
			return nil
		}

		resp, err = s.transition(ctx, tx, a, studentID, chunk, "[bypass code]", "", func(st *progress.UnitState) (progress.Transition, error) {
			return progress.Bypass(st, s.now())
		})
		if err != nil {
			return err
		}
		if err := bypassRepo.RecordUsage(ctx, &model.OverrideUsage{
			StudentID:   studentID,
			TeacherID:   res.OwnerID,
			ContextType: string(bypass.ContextReadingChunk),
			ContextID:   chunkID,
			CodeType:    string(res.CodeType),
		}); err != nil {
			return fmt.Errorf("record bypass usage: %w", err)
		}
		resp.BypassCodeType = string(res.CodeType)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// applyTransition runs transition in its own transaction.
func (s *ReadingService) applyTransition(
	ctx context.Context,
	a *model.ReadingAssignment,
	studentID uuid.UUID,
	chunk int,
	answer, question string,
	step func(*progress.UnitState) (progress.Transition, error),
) (*model.SubmitAnswerResponse, error) {
	var resp *model.SubmitAnswerResponse
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		resp, err = s.transition(ctx, tx, a, studentID, chunk, answer, question, step)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// transition locks the chunk row, applies step and, when the chunk
// completes, rolls the completion into the assignment.
func (s *ReadingService) transition(
	ctx context.Context,
	tx pgx.Tx,
	a *model.ReadingAssignment,
	studentID uuid.UUID,
	chunk int,
	answer, question string,
	step func(*progress.UnitState) (progress.Transition, error),
) (*model.SubmitAnswerResponse, error) {
	resp := &model.SubmitAnswerResponse{}

	repo := s.readingRepo.WithTx(tx)
	cp, err := repo.GetChunkProgress(ctx, studentID, a.ID, chunk, true)
	if err != nil {
		return nil, err
	}

	state := cp.State()
	t, err := step(&state)
	if err != nil {
		return nil, err
	}
	cp.Apply(state)
	cp.Attempts++
	if t.Correct {
		cp.ClearQuestion()
	}
	if err := repo.UpdateChunkProgress(ctx, cp); err != nil {
		return nil, err
	}
	if err := repo.InsertResponse(ctx, &model.ReadingResponse{
		ChunkProgressID: cp.ID,
		QuestionType:    string(t.Phase),
		Question:        question,
		Answer:          answer,
		IsCorrect:       t.Correct,
		Bypassed:        t.Bypassed,
		Feedback:        t.Feedback,
		Difficulty:      t.NewDifficulty,
	}); err != nil {
		return nil, fmt.Errorf("insert response: %w", err)
	}

	ap, err := repo.GetAssignmentProgress(ctx, studentID, a.ID, true)
	if err != nil {
		return nil, err
	}
	if t.UnitComplete {
		as := ap.State()
		as.DifficultyLevel = t.NewDifficulty
		rollup, err := progress.CompleteUnit(&as, chunk, a.ChunkCount, s.now())
		if err != nil {
			return nil, err
		}
		ap.Apply(as)
		if err := repo.UpdateAssignmentProgress(ctx, ap); err != nil {
			return nil, err
		}
		resp.AssignmentCompleted = rollup.AssignmentCompleted
	}

	resp.IsCorrect = t.Correct
	resp.Feedback = t.Feedback
	resp.Advance = t.Advance()
	resp.Bypassed = t.Bypassed
	resp.Difficulty = t.NewDifficulty
	resp.NextChunk = ap.CurrentChunk
	if t.NextPhase != "" {
		next := string(t.NextPhase)
		resp.NextQuestionType = &next
	}
	return resp, nil
}

// ─── Progress ───────────────────────────────────────────────────────────

// GetProgress returns the assignment rollup with every chunk row.
func (s *ReadingService) GetProgress(ctx context.Context, studentID, assignmentID uuid.UUID) (*model.ReadingProgressResponse, error) {
	a, err := s.loadAssignment(ctx, studentID, assignmentID)
	if err != nil {
		return nil, err
	}
	ap, err := s.ensureAssignmentProgress(ctx, a, studentID)
	if err != nil {
		return nil, err
	}
	chunks, err := s.readingRepo.ListChunkProgress(ctx, studentID, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("list chunk progress: %w", err)
	}
	if chunks == nil {
		chunks = []model.ChunkProgress{}
	}
	return &model.ReadingProgressResponse{
		Assignment:  ap,
		TotalChunks: a.ChunkCount,
		Chunks:      chunks,
	}, nil
}
