package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/database"
	"github.com/umadex/umadex-backend/internal/debate"
	"github.com/umadex/umadex-backend/internal/evaluator"
	"github.com/umadex/umadex-backend/internal/metrics"
	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/repository"
)

// fallbackAIStatement is posted when the evaluator cannot produce a reply.
const fallbackAIStatement = "That is an interesting point, but I am not convinced. " +
	"What evidence would show that your position holds in most cases, not just the one you described?"

// DebateEvaluator is the part of the evaluation gateway used by UMADebate.
type DebateEvaluator interface {
	ScoreDebatePost(ctx context.Context, r evaluator.DebatePostRequest) (*evaluator.PostScores, error)
	GenerateDebateResponse(ctx context.Context, r evaluator.DebateResponseRequest) (*evaluator.DebateResponse, error)
}

// globalRand draws from the runtime's concurrency-safe source.
type globalRand struct{}

func (globalRand) IntN(n int) int   { return rand.IntN(n) }
func (globalRand) Float64() float64 { return rand.Float64() }

// DebateService runs UMADebate: three debates of five statements with AI
// turns, scoring, challenges and coaching.
type DebateService struct {
	pool       *pgxpool.Pool
	debateRepo *repository.DebateRepository
	evaluator  DebateEvaluator
	rng        debate.Rand
	log        zerolog.Logger
	now        func() time.Time
}

// NewDebateService creates a new DebateService.
func NewDebateService(pool *pgxpool.Pool, debateRepo *repository.DebateRepository, ev DebateEvaluator, log zerolog.Logger) *DebateService {
	return &DebateService{
		pool:       pool,
		debateRepo: debateRepo,
		evaluator:  ev,
		rng:        globalRand{},
		log:        log.With().Str("component", "debate").Logger(),
		now:        time.Now,
	}
}

func (s *DebateService) loadAssignment(ctx context.Context, studentID, assignmentID uuid.UUID) (*model.DebateAssignment, error) {
	a, err := s.debateRepo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	ok, err := s.debateRepo.IsEnrolled(ctx, a.ClassroomID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !ok {
		return nil, ErrNotEnrolled
	}
	return a, nil
}

// ─── Lifecycle ──────────────────────────────────────────────────────────

// CreateDebate starts the assignment for the student. Calling it again
// returns the existing debate unchanged.
func (s *DebateService) CreateDebate(ctx context.Context, studentID, assignmentID uuid.UUID) (*model.DebateView, error) {
	a, err := s.loadAssignment(ctx, studentID, assignmentID)
	if err != nil {
		return nil, err
	}

	d := &model.StudentDebate{StudentID: studentID, AssignmentID: a.ID}
	d.Apply(debate.NewState(s.rng, a.TimeLimitHours, s.now()))
	d, created, err := s.debateRepo.CreateStudentDebate(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("create student debate: %w", err)
	}
	if created {
		s.log.Info().
			Str("student_id", studentID.String()).
			Str("assignment_id", a.ID.String()).
			Int("fallacy_debate", d.FallacyScheduledDebate).
			Msg("Debate started")
	}
	return s.view(ctx, a, d)
}

// GetDebate returns the student's debate with the posts of the current round.
func (s *DebateService) GetDebate(ctx context.Context, studentID, assignmentID uuid.UUID) (*model.DebateView, error) {
	a, err := s.loadAssignment(ctx, studentID, assignmentID)
	if err != nil {
		return nil, err
	}
	d, err := s.debateRepo.GetStudentDebate(ctx, studentID, a.ID, false)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, a, d)
}

func (s *DebateService) view(ctx context.Context, a *model.DebateAssignment, d *model.StudentDebate) (*model.DebateView, error) {
	posts, err := s.debateRepo.ListPosts(ctx, d.ID, d.CurrentDebate)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	feedback, err := s.debateRepo.ListFeedback(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	state := d.State()
	return &model.DebateView{
		Debate:     d,
		Topic:      a.Topic,
		Position:   string(state.CurrentPosition()),
		NextAction: debate.DetermineNextAction(state, len(posts)),
		Posts:      nonNilPosts(posts),
		Feedback:   nonNilFeedback(feedback),
	}, nil
}

// SelectFinalPosition sets the student's side for the third debate.
func (s *DebateService) SelectFinalPosition(ctx context.Context, studentID, assignmentID uuid.UUID, req model.SelectPositionRequest) (*model.DebateView, error) {
	a, err := s.loadAssignment(ctx, studentID, assignmentID)
	if err != nil {
		return nil, err
	}

	var d *model.StudentDebate
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := s.debateRepo.WithTx(tx)
		locked, err := repo.GetStudentDebate(ctx, studentID, a.ID, true)
		if err != nil {
			return err
		}
		state := locked.State()
		if err := debate.SelectFinalPosition(&state, debate.Position(req.Position)); err != nil {
			return err
		}
		locked.Apply(state)
		d = locked
		return repo.UpdateStudentDebate(ctx, locked)
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, a, d)
}

// ─── Posts ──────────────────────────────────────────────────────────────

// SubmitDebatePost scores and stores a student statement. The fifth
// statement closes the debate: coaching is stored when enabled and the
// student advances or, after the third debate, receives the final grade.
func (s *DebateService) SubmitDebatePost(ctx context.Context, studentID, assignmentID uuid.UUID, req model.DebatePostRequest) (*model.DebatePostResponse, error) {
	a, err := s.loadAssignment(ctx, studentID, assignmentID)
	if err != nil {
		return nil, err
	}
	d, err := s.debateRepo.GetStudentDebate(ctx, studentID, a.ID, false)
	if err != nil {
		return nil, err
	}
	posts, err := s.debateRepo.ListPosts(ctx, d.ID, d.CurrentDebate)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	state := d.State()
	if err := debate.CheckStudentPost(state, len(posts), s.now()); err != nil {
		return nil, err
	}

	// Scoring runs outside the transaction; the turn is re-checked under lock.
	scores, feedback := s.scorePost(ctx, a, state, req.Content, len(posts)+1)

	resp := &model.DebatePostResponse{}
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := s.debateRepo.WithTx(tx)
		locked, err := repo.GetStudentDebate(ctx, studentID, a.ID, true)
		if err != nil {
			return err
		}
		current, err := repo.ListPosts(ctx, locked.ID, locked.CurrentDebate)
		if err != nil {
			return err
		}
		st := locked.State()
		if err := debate.CheckStudentPost(st, len(current), s.now()); err != nil {
			return err
		}

		n := len(current) + 1
		pct := scores.Percentage()
		post := &model.DebatePost{
			StudentDebateID: locked.ID,
			DebateNumber:    locked.CurrentDebate,
			StatementNumber: n,
			PostType:        model.PostStudent,
			Content:         req.Content,
			Scores:          &scores,
			Percentage:      &pct,
			Feedback:        feedback,
		}
		if err := repo.InsertPost(ctx, post); err != nil {
			if database.IsUniqueViolation(err) {
				return debate.ErrNotStudentTurn
			}
			return fmt.Errorf("insert post: %w", err)
		}
		debate.RecordPost(&st, n)
		resp.Post = post

		count := n
		if n == debate.StatementsPerDebate {
			c, fb, err := s.completeDebate(ctx, repo, a, locked, &st, append(current, *post))
			if err != nil {
				return err
			}
			resp.Completion = &c
			resp.Feedback = fb
			count = 0
		}

		locked.Apply(st)
		if err := repo.UpdateStudentDebate(ctx, locked); err != nil {
			return err
		}
		resp.NextAction = debate.DetermineNextAction(st, count)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if c := resp.Completion; c != nil {
		ev := s.log.Info().
			Str("student_id", studentID.String()).
			Str("assignment_id", a.ID.String()).
			Int("debate", c.FinishedDebate).
			Float64("percentage", c.Percentage)
		if c.FinalGrade != nil {
			ev = ev.Float64("final_grade", *c.FinalGrade)
		}
		ev.Msg("Debate finished")
	}
	return resp, nil
}

func (s *DebateService) scorePost(ctx context.Context, a *model.DebateAssignment, st debate.State, content string, n int) (debate.PostScores, string) {
	res, err := s.evaluator.ScoreDebatePost(ctx, evaluator.DebatePostRequest{
		Topic:           a.Topic,
		Position:        string(st.CurrentPosition()),
		Statement:       content,
		DebateNumber:    st.CurrentDebate,
		StatementNumber: n,
	})
	if err == nil {
		scores := debate.PostScores{
			Clarity:        res.Clarity,
			Evidence:       res.Evidence,
			Logic:          res.Logic,
			Persuasiveness: res.Persuasiveness,
			Rebuttal:       res.Rebuttal,
		}
		if err = scores.Validate(); err == nil {
			metrics.Evaluations.WithLabelValues(evaluator.PurposeDebateScore, "ai").Inc()
			return scores, res.Feedback
		}
	}

	s.log.Warn().Err(err).Str("assignment_id", a.ID.String()).Int("statement", n).Msg("Post scoring failed, using neutral scores")
	metrics.Evaluations.WithLabelValues(evaluator.PurposeDebateScore, "fallback").Inc()
	return debate.FallbackScores, ""
}

// completeDebate closes the current debate inside the caller's transaction.
func (s *DebateService) completeDebate(
	ctx context.Context,
	repo *repository.DebateRepository,
	a *model.DebateAssignment,
	d *model.StudentDebate,
	st *debate.State,
	posts []model.DebatePost,
) (debate.Completion, *model.DebateFeedback, error) {
	var scored []debate.ScoredPost
	var scores []debate.PostScores
	for _, p := range posts {
		if p.PostType != model.PostStudent || p.Percentage == nil {
			continue
		}
		scored = append(scored, debate.ScoredPost{Percentage: *p.Percentage, Bonus: p.Bonus})
		if p.Scores != nil {
			scores = append(scores, *p.Scores)
		}
	}

	finished := st.CurrentDebate
	c := debate.CompleteDebate(st, debate.DebatePercentage(scored), a.TimeLimitHours)
	if !a.CoachingEnabled {
		return c, nil, nil
	}

	fb := &model.DebateFeedback{
		StudentDebateID: d.ID,
		DebateNumber:    finished,
		Coaching:        debate.Coach(scores),
	}
	if _, err := repo.InsertFeedback(ctx, fb); err != nil {
		return c, nil, fmt.Errorf("insert feedback: %w", err)
	}
	return c, fb, nil
}

// RequestAIResponse generates and stores the AI's statement for the
// current turn. In the scheduled debate the statement may carry a fallacy.
func (s *DebateService) RequestAIResponse(ctx context.Context, studentID, assignmentID uuid.UUID) (*model.DebatePost, error) {
	a, err := s.loadAssignment(ctx, studentID, assignmentID)
	if err != nil {
		return nil, err
	}
	d, err := s.debateRepo.GetStudentDebate(ctx, studentID, a.ID, false)
	if err != nil {
		return nil, err
	}
	posts, err := s.debateRepo.ListPosts(ctx, d.ID, d.CurrentDebate)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	state := d.State()
	if err := debate.CheckAIPost(state, len(posts)); err != nil {
		return nil, err
	}

	n := len(posts) + 1
	already, err := s.debateRepo.HasFallacy(ctx, d.ID, d.CurrentDebate)
	if err != nil {
		return nil, fmt.Errorf("check fallacy: %w", err)
	}
	var fallacy string
	if debate.ShouldInjectFallacy(state, n, already, s.rng) {
		fallacy = debate.PickFallacy(s.rng)
	}

	history := make([]string, 0, len(posts))
	for _, p := range posts {
		history = append(history, p.Content)
	}

	post := &model.DebatePost{
		StudentDebateID: d.ID,
		DebateNumber:    d.CurrentDebate,
		StatementNumber: n,
		PostType:        model.PostAI,
	}
	res, err := s.evaluator.GenerateDebateResponse(ctx, evaluator.DebateResponseRequest{
		Topic:           a.Topic,
		Position:        string(state.CurrentPosition().Opposite()),
		StatementNumber: n,
		History:         history,
		FallacyType:     fallacy,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("assignment_id", a.ID.String()).Int("statement", n).Msg("AI response failed, using fallback statement")
		metrics.Evaluations.WithLabelValues(evaluator.PurposeDebateResponse, "fallback").Inc()
		post.Content = fallbackAIStatement
	} else {
		metrics.Evaluations.WithLabelValues(evaluator.PurposeDebateResponse, "ai").Inc()
		post.Content = res.Content
		if fallacy != "" {
			post.IsFallacy = true
			post.FallacyType = &fallacy
		}
		if slices.Contains(debate.Appeals, res.AppealType) {
			appeal := res.AppealType
			post.AppealType = &appeal
		}
	}

	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := s.debateRepo.WithTx(tx)
		locked, err := repo.GetStudentDebate(ctx, studentID, a.ID, true)
		if err != nil {
			return err
		}
		current, err := repo.ListPosts(ctx, locked.ID, locked.CurrentDebate)
		if err != nil {
			return err
		}
		st := locked.State()
		if err := debate.CheckAIPost(st, len(current)); err != nil {
			return err
		}
		if locked.CurrentDebate != post.DebateNumber || len(current)+1 != n {
			return debate.ErrNotAITurn
		}
		if err := repo.InsertPost(ctx, post); err != nil {
			if database.IsUniqueViolation(err) {
				return debate.ErrNotAITurn
			}
			return fmt.Errorf("insert post: %w", err)
		}
		debate.RecordPost(&st, n)
		locked.Apply(st)
		return repo.UpdateStudentDebate(ctx, locked)
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("student_id", studentID.String()).
		Int("debate", post.DebateNumber).
		Int("statement", n).
		Bool("fallacy", post.IsFallacy).
		Msg("AI statement posted")
	return post, nil
}

// ─── Challenges ─────────────────────────────────────────────────────────

// SubmitChallenge scores a student's identification of a fallacy or appeal
// in an AI post of the open debate and adds the points to their most recent
// post, which belongs to that same debate.
func (s *DebateService) SubmitChallenge(ctx context.Context, studentID, assignmentID uuid.UUID, req model.ChallengeRequest) (*model.DebateChallenge, error) {
	postID, err := uuid.Parse(req.PostID)
	if err != nil {
		return nil, debate.ErrInvalidChallenge.Withf("invalid post id")
	}
	a, err := s.loadAssignment(ctx, studentID, assignmentID)
	if err != nil {
		return nil, err
	}
	d, err := s.debateRepo.GetStudentDebate(ctx, studentID, a.ID, false)
	if err != nil {
		return nil, err
	}
	post, err := s.debateRepo.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.StudentDebateID != d.ID {
		return nil, ErrNotOwner.Withf("post belongs to another debate")
	}
	if post.PostType != model.PostAI {
		return nil, debate.ErrChallengeNotAIPost
	}
	if err := debate.CheckChallenge(d.State(), post.DebateNumber); err != nil {
		return nil, err
	}
	guess, err := debate.NormalizeChallenge(req.Guess)
	if err != nil {
		return nil, err
	}

	outcome := debate.ScoreChallenge(post.ChallengeTarget(), guess, req.Explanation)
	ch := &model.DebateChallenge{
		PostID:      post.ID,
		StudentID:   studentID,
		Guess:       guess,
		Explanation: req.Explanation,
		IsCorrect:   outcome.Correct,
		Points:      outcome.Points,
	}

	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := s.debateRepo.WithTx(tx)
		// The AI's closing statement may have scored the debate meanwhile.
		locked, err := repo.GetStudentDebate(ctx, studentID, a.ID, true)
		if err != nil {
			return err
		}
		if err := debate.CheckChallenge(locked.State(), post.DebateNumber); err != nil {
			return err
		}
		if err := repo.InsertChallenge(ctx, ch); err != nil {
			if database.IsUniqueViolation(err) {
				return debate.ErrAlreadyChallenged
			}
			return fmt.Errorf("insert challenge: %w", err)
		}
		latest, err := repo.LatestStudentPost(ctx, d.ID)
		if err != nil {
			return err
		}
		return repo.AddBonus(ctx, latest.ID, outcome.Points)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("student_id", studentID.String()).
		Str("post_id", post.ID.String()).
		Str("guess", guess).
		Bool("correct", outcome.Correct).
		Float64("points", outcome.Points).
		Msg("Challenge scored")
	return ch, nil
}

func nonNilPosts(p []model.DebatePost) []model.DebatePost {
	if p == nil {
		return []model.DebatePost{}
	}
	return p
}

func nonNilFeedback(f []model.DebateFeedback) []model.DebateFeedback {
	if f == nil {
		return []model.DebateFeedback{}
	}
	return f
}
