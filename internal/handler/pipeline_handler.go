package handler

import (
	"context"
	"encoding/json"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/response"
	"github.com/umadex/umadex-backend/internal/service"
)

const (
	pipelineInterval = 7 * time.Second
	pipelineTimeout  = 5 * time.Second
)

// PipelineStatusSource is the part of MonitorService the stream reads.
type PipelineStatusSource interface {
	GetPipelineStatus(ctx context.Context, teacherID uuid.UUID) (*service.PipelineStatus, error)
}

// PipelineHandler streams a teacher's grading and generation backlog via SSE.
type PipelineHandler struct {
	source    PipelineStatusSource
	startTime time.Time
	log       zerolog.Logger
}

func NewPipelineHandler(source PipelineStatusSource, log zerolog.Logger) *PipelineHandler {
	return &PipelineHandler{
		source:    source,
		startTime: time.Now(),
		log:       log.With().Str("component", "pipeline_handler").Logger(),
	}
}

type pipelineSnapshot struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	*service.PipelineStatus

	// Go Application
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	NumGC      uint32 `json:"num_gc"`
}

// PipelineStatusSSE godoc
// GET /api/v1/teacher/pipeline
func (h *PipelineHandler) PipelineStatusSSE(c *gin.Context) {
	teacherID, ok := callerID(c)
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	// The first read runs before the stream opens so a failing database
	// still gets a normal error response.
	first, err := h.collect(reqCtx, teacherID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Str("teacher_id", teacherID.String()).Msg("Teacher connected to pipeline SSE")
	h.write(c, first)

	ticker := time.NewTicker(pipelineInterval)
	defer ticker.Stop()

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("teacher_id", teacherID.String()).Msg("Teacher disconnected from pipeline SSE")
			return
		case <-ticker.C:
			snap, err := h.collect(reqCtx, teacherID)
			if err != nil {
				h.log.Warn().Err(err).Str("teacher_id", teacherID.String()).Msg("Failed to read pipeline status")
				continue
			}
			h.write(c, snap)
		}
	}
}

func (h *PipelineHandler) write(c *gin.Context, snap *pipelineSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	writeSSEData(c, data)
}

func (h *PipelineHandler) collect(parent context.Context, teacherID uuid.UUID) (*pipelineSnapshot, error) {
	ctx, cancel := context.WithTimeout(parent, pipelineTimeout)
	defer cancel()

	status, err := h.source.GetPipelineStatus(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return &pipelineSnapshot{
		Timestamp:      time.Now().Unix(),
		Uptime:         time.Since(h.startTime).Truncate(time.Second).String(),
		PipelineStatus: status,
		Goroutines:     runtime.NumGoroutine(),
		HeapAlloc:      ms.HeapAlloc,
		NumGC:          ms.NumGC,
	}, nil
}
