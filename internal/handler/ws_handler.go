package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/apperror"
	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/response"
	"github.com/umadex/umadex-backend/internal/service"
	ws "github.com/umadex/umadex-backend/internal/websocket"
)

// wsOpTimeout bounds each service call made on behalf of a socket message.
const wsOpTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a test attempt over a WebSocket.
type WSHandler struct {
	testService *service.TestService
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(testService *service.TestService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		testService: testService,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream
// Autosaves answers, reports security incidents and submits the attempt.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	attemptID, ok := pathUUID(c, "attempt_id")
	if !ok {
		return
	}

	// Ownership and state are checked before upgrading so failures get a
	// normal HTTP response.
	attempt, err := h.testService.GetAttempt(c.Request.Context(), studentID, attemptID)
	if err != nil {
		response.FailError(c, err)
		return
	}
	if attempt.Status != model.AttemptInProgress {
		response.FailError(c, service.ErrAttemptNotOpen)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("student_id", studentID.String()).
		Str("attempt_id", attemptID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionSaveAnswer:
			h.handleSaveAnswer(conn, wsLog, studentID, attemptID, &msg)
		case ws.ActionViolation:
			h.handleViolation(conn, wsLog, studentID, attemptID, &msg)
		case ws.ActionSubmit:
			if h.handleSubmit(conn, wsLog, studentID, attemptID) {
				return
			}
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		}
	}
}

func (h *WSHandler) handleSaveAnswer(conn *websocket.Conn, wsLog zerolog.Logger, studentID, attemptID uuid.UUID, msg *ws.RequestPayload) {
	if msg.QuestionIndex == nil {
		ws.WriteError(conn, string(response.ErrValidation), "question_index is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	if err := h.testService.SaveAnswer(ctx, studentID, attemptID, *msg.QuestionIndex, msg.Answer); err != nil {
		h.writeServiceError(conn, wsLog, err)
		return
	}
	ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, QuestionIndex: *msg.QuestionIndex})
}

func (h *WSHandler) handleViolation(conn *websocket.Conn, wsLog zerolog.Logger, studentID, attemptID uuid.UUID, msg *ws.RequestPayload) {
	if msg.Type == "" || len(msg.Type) > 64 {
		ws.WriteError(conn, string(response.ErrValidation), "type is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	attempt, err := h.testService.RecordSecurityViolation(ctx, studentID, attemptID, msg.Type)
	if err != nil {
		h.writeServiceError(conn, wsLog, err)
		return
	}

	event := ws.EventRecorded
	if attempt.IsLocked {
		event = ws.EventLocked
		wsLog.Warn().Int("violations", len(attempt.SecurityViolations)).Msg("Attempt locked")
	}
	ws.WriteTyped(conn, ws.ViolationResponse{
		Event:      event,
		Violations: len(attempt.SecurityViolations),
		IsLocked:   attempt.IsLocked,
	})
}

// handleSubmit reports whether the attempt was closed.
func (h *WSHandler) handleSubmit(conn *websocket.Conn, wsLog zerolog.Logger, studentID, attemptID uuid.UUID) bool {
	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	attempt, err := h.testService.SubmitTest(ctx, studentID, attemptID)
	if err != nil {
		h.writeServiceError(conn, wsLog, err)
		return false
	}

	wsLog.Info().Msg("Attempt submitted")
	ws.WriteTyped(conn, ws.SubmittedResponse{
		Event:     ws.EventSubmitted,
		AttemptID: attempt.ID.String(),
		Status:    string(attempt.Status),
	})
	return true
}

func (h *WSHandler) writeServiceError(conn *websocket.Conn, wsLog zerolog.Logger, err error) {
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Kind != apperror.KindInternal {
		ws.WriteError(conn, appErr.Code, appErr.Message)
		return
	}
	wsLog.Error().Err(err).Msg("Stream operation failed")
	ws.WriteError(conn, string(response.ErrInternal), response.GetMessage(response.ErrInternal))
}
