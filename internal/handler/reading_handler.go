package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/response"
	"github.com/umadex/umadex-backend/internal/service"
)

// ReadingHandler serves the student side of UMARead assignments.
type ReadingHandler struct {
	readingService *service.ReadingService
}

// NewReadingHandler creates a new ReadingHandler.
func NewReadingHandler(readingService *service.ReadingService) *ReadingHandler {
	return &ReadingHandler{readingService: readingService}
}

// StartUnit godoc
// POST /api/v1/student/reading/:assignment_id/chunks/:chunk/start
func (h *ReadingHandler) StartUnit(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	assignmentID, ok := pathUUID(c, "assignment_id")
	if !ok {
		return
	}
	chunk, ok := pathChunk(c)
	if !ok {
		return
	}

	unit, err := h.readingService.StartUnit(c.Request.Context(), studentID, assignmentID, chunk)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unit": unit})
}

// GetCurrentQuestion godoc
// GET /api/v1/student/reading/:assignment_id/chunks/:chunk/question
func (h *ReadingHandler) GetCurrentQuestion(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	assignmentID, ok := pathUUID(c, "assignment_id")
	if !ok {
		return
	}
	chunk, ok := pathChunk(c)
	if !ok {
		return
	}

	q, err := h.readingService.GetCurrentQuestion(c.Request.Context(), studentID, assignmentID, chunk)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": q})
}

// RequestSimplerQuestion godoc
// POST /api/v1/student/reading/:assignment_id/chunks/:chunk/simpler
// Lowers the difficulty of the current comprehension question.
func (h *ReadingHandler) RequestSimplerQuestion(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	assignmentID, ok := pathUUID(c, "assignment_id")
	if !ok {
		return
	}
	chunk, ok := pathChunk(c)
	if !ok {
		return
	}

	q, err := h.readingService.RequestSimplerQuestion(c.Request.Context(), studentID, assignmentID, chunk)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": q})
}

// SubmitAnswer godoc
// POST /api/v1/student/reading/:assignment_id/chunks/:chunk/answer
func (h *ReadingHandler) SubmitAnswer(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	assignmentID, ok := pathUUID(c, "assignment_id")
	if !ok {
		return
	}
	chunk, ok := pathChunk(c)
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if !bind(c, &req) {
		return
	}

	res, err := h.readingService.SubmitAnswer(c.Request.Context(), studentID, assignmentID, chunk, req)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// GetProgress godoc
// GET /api/v1/student/reading/:assignment_id/progress
func (h *ReadingHandler) GetProgress(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	assignmentID, ok := pathUUID(c, "assignment_id")
	if !ok {
		return
	}

	progress, err := h.readingService.GetProgress(c.Request.Context(), studentID, assignmentID)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, progress)
}
