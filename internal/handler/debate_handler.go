package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/response"
	"github.com/umadex/umadex-backend/internal/service"
)

// DebateHandler serves UMADebate to students.
type DebateHandler struct {
	debateService *service.DebateService
}

// NewDebateHandler creates a new DebateHandler.
func NewDebateHandler(debateService *service.DebateService) *DebateHandler {
	return &DebateHandler{debateService: debateService}
}

// CreateDebate godoc
// POST /api/v1/student/debates/:assignment_id
// Starts the student's debate. Repeating the call returns the existing one.
func (h *DebateHandler) CreateDebate(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	assignmentID, ok := pathUUID(c, "assignment_id")
	if !ok {
		return
	}

	view, err := h.debateService.CreateDebate(c.Request.Context(), studentID, assignmentID)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// GetDebate godoc
// GET /api/v1/student/debates/:assignment_id
func (h *DebateHandler) GetDebate(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	assignmentID, ok := pathUUID(c, "assignment_id")
	if !ok {
		return
	}

	view, err := h.debateService.GetDebate(c.Request.Context(), studentID, assignmentID)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// SelectPosition godoc
// POST /api/v1/student/debates/:assignment_id/position
func (h *DebateHandler) SelectPosition(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	assignmentID, ok := pathUUID(c, "assignment_id")
	if !ok {
		return
	}

	var req model.SelectPositionRequest
	if !bind(c, &req) {
		return
	}

	view, err := h.debateService.SelectFinalPosition(c.Request.Context(), studentID, assignmentID, req)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// SubmitPost godoc
// POST /api/v1/student/debates/:assignment_id/posts
func (h *DebateHandler) SubmitPost(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	assignmentID, ok := pathUUID(c, "assignment_id")
	if !ok {
		return
	}

	var req model.DebatePostRequest
	if !bind(c, &req) {
		return
	}

	res, err := h.debateService.SubmitDebatePost(c.Request.Context(), studentID, assignmentID, req)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

// RequestAIResponse godoc
// POST /api/v1/student/debates/:assignment_id/ai-response
func (h *DebateHandler) RequestAIResponse(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	assignmentID, ok := pathUUID(c, "assignment_id")
	if !ok {
		return
	}

	post, err := h.debateService.RequestAIResponse(c.Request.Context(), studentID, assignmentID)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"post": post})
}

// SubmitChallenge godoc
// POST /api/v1/student/debates/:assignment_id/challenges
func (h *DebateHandler) SubmitChallenge(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	assignmentID, ok := pathUUID(c, "assignment_id")
	if !ok {
		return
	}

	var req model.ChallengeRequest
	if !bind(c, &req) {
		return
	}

	challenge, err := h.debateService.SubmitChallenge(c.Request.Context(), studentID, assignmentID, req)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"challenge": challenge})
}
