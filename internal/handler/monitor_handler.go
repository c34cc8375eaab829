package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/response"
	"github.com/umadex/umadex-backend/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // keeps a slow query from blocking the SSE loop
)

type MonitorHandler struct {
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(monitorService *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorTestSSE godoc
// GET /api/v1/teacher/tests/:test_id/monitor
func (h *MonitorHandler) MonitorTestSSE(c *gin.Context) {
	teacherID, ok := callerID(c)
	if !ok {
		return
	}
	testID, ok := pathUUID(c, "test_id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	// Ownership is checked by the snapshot before any SSE header goes out.
	snap, err := h.monitorService.GetSnapshot(reqCtx, teacherID, testID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("message", gin.H{"type": "snapshot", "data": snap})
	c.Writer.Flush()

	pubsub := h.monitorService.Subscribe(reqCtx, testID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Skip refresh queries until something has happened on the test.
	dirty := false

	h.log.Info().Str("test_id", testID.String()).Msg("Teacher attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("test_id", testID.String()).Msg("Teacher disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Events are already JSON; forward as-is.
			writeSSEData(c, []byte(msg.Payload))
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			dirty = false
			h.sendRefresh(c, reqCtx, teacherID, testID)

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

// sendRefresh re-reads the snapshot so counters drift back in line with the
// database if an event was dropped.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, teacherID, testID uuid.UUID) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	snap, err := h.monitorService.GetSnapshot(ctx, teacherID, testID)
	if err != nil {
		h.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Failed to refresh monitor snapshot")
		return
	}
	c.SSEvent("message", gin.H{"type": "refresh", "data": snap})
	c.Writer.Flush()
}

func writeSSEData(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
