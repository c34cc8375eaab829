package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/umadex/umadex-backend/internal/middleware"
	"github.com/umadex/umadex-backend/internal/repository"
	"github.com/umadex/umadex-backend/internal/service"
)

type fakePipelineSource struct {
	status  *service.PipelineStatus
	err     error
	teacher uuid.UUID
}

func (f *fakePipelineSource) GetPipelineStatus(_ context.Context, teacherID uuid.UUID) (*service.PipelineStatus, error) {
	f.teacher = teacherID
	return f.status, f.err
}

func TestPipelineStatusSSE_StreamsTeacherBacklog(t *testing.T) {
	teacher := uuid.New()
	src := &fakePipelineSource{status: &service.PipelineStatus{
		PipelineStats: repository.PipelineStats{PendingGrading: 3, NeedsReview: 1, LockedAttempts: 2},
		QueuedGrading: 2,
	}}
	h := NewPipelineHandler(src, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c, w := newContext(nil)
	c.Request = c.Request.WithContext(ctx)
	c.Set(middleware.ContextKeyClaims, &service.Claims{UserID: teacher, Role: service.RoleTeacher})

	h.PipelineStatusSSE(c)

	assert.Equal(t, teacher, src.teacher)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "data: "), body)
	assert.Contains(t, body, `"pending_grading":3`)
	assert.Contains(t, body, `"needs_review":1`)
	assert.Contains(t, body, `"locked_attempts":2`)
	assert.Contains(t, body, `"queued_grading":2`)
}

func TestPipelineStatusSSE_FailsBeforeStreaming(t *testing.T) {
	src := &fakePipelineSource{err: errors.New("connection refused")}
	h := NewPipelineHandler(src, zerolog.Nop())

	c, w := newContext(nil)
	c.Set(middleware.ContextKeyClaims, &service.Claims{UserID: uuid.New(), Role: service.RoleTeacher})

	h.PipelineStatusSSE(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEqual(t, "text/event-stream", w.Header().Get("Content-Type"))
}
