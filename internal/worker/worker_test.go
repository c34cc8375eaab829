package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umadex/umadex-backend/internal/apperror"
	"github.com/umadex/umadex-backend/internal/model"
)

func TestOutcome(t *testing.T) {
	boom := errors.New("connection reset")
	tests := []struct {
		name    string
		err     error
		retries int
		want    string
	}{
		{"success", nil, 0, resultOK},
		{"infrastructure error retried", boom, 0, resultRetried},
		{"conflict retried", apperror.ErrConflict, 2, resultRetried},
		{"retries exhausted", boom, MaxRetries, resultFailed},
		{"state error dropped", apperror.New(apperror.KindInvalidState, "X", "x"), 0, resultDropped},
		{"not found dropped", apperror.ErrNotFound.Withf("attempt"), 0, resultDropped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outcome(tt.err, tt.retries))
		})
	}
}

// pushRecorder records RPush calls; every other command panics on the nil
// embedded interface.
type pushRecorder struct {
	redis.Cmdable
	queue  string
	values []any
	ctxErr error
}

func (p *pushRecorder) RPush(ctx context.Context, key string, values ...any) *redis.IntCmd {
	p.queue = key
	p.values = values
	p.ctxErr = ctx.Err()
	return redis.NewIntResult(int64(len(values)), nil)
}

func TestRequeue_SurvivesExpiredJobContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	rec := &pushRecorder{}
	job := model.GradeAttemptJob{AttemptID: uuid.New()}
	requeue(ctx, rec, "queue:grade", job, 0, zerolog.Nop())

	assert.Equal(t, "queue:grade", rec.queue)
	require.Len(t, rec.values, 1)
	assert.NoError(t, rec.ctxErr)
	assert.Contains(t, string(rec.values[0].([]byte)), job.AttemptID.String())
}

type stubGrader struct {
	calls []uuid.UUID
	err   error
}

func (g *stubGrader) GradeAttempt(_ context.Context, id uuid.UUID) (*model.TestAttempt, error) {
	g.calls = append(g.calls, id)
	return &model.TestAttempt{ID: id}, g.err
}

func TestGradingWorker_HandleSkipsInvalidPayload(t *testing.T) {
	g := &stubGrader{}
	w := NewGradingWorker(g, nil, zerolog.Nop())

	w.handle(context.Background(), "not json")
	w.handle(context.Background(), `{"attempt_id":"00000000-0000-0000-0000-000000000000"}`)
	assert.Empty(t, g.calls)
}

func TestGradingWorker_HandleGrades(t *testing.T) {
	g := &stubGrader{err: apperror.New(apperror.KindInvalidState, "ALREADY_GRADED", "done")}
	w := NewGradingWorker(g, nil, zerolog.Nop())

	id := uuid.New()
	// A dropped job is never requeued, so the nil client is not touched.
	w.handle(context.Background(), `{"attempt_id":"`+id.String()+`"}`)
	assert.Equal(t, []uuid.UUID{id}, g.calls)
}

type stubRunner struct {
	jobs []model.GenerateQuestionsJob
}

func (r *stubRunner) Run(_ context.Context, job model.GenerateQuestionsJob) error {
	r.jobs = append(r.jobs, job)
	return nil
}

func TestGenerationWorker_Handle(t *testing.T) {
	r := &stubRunner{}
	w := NewGenerationWorker(r, nil, zerolog.Nop())

	logID, testID := uuid.New(), uuid.New()
	w.handle(context.Background(), `{"log_id":"`+logID.String()+`","test_id":"`+testID.String()+`"}`)
	w.handle(context.Background(), `{"test_id":"`+testID.String()+`"}`)

	if assert.Len(t, r.jobs, 1) {
		assert.Equal(t, logID, r.jobs[0].LogID)
		assert.Equal(t, testID, r.jobs[0].TestID)
	}
}
