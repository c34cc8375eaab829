package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/response"
	"github.com/umadex/umadex-backend/internal/service"
)

// TestHandler serves test attempts to students over REST. The websocket
// stream in ws_handler.go covers the same autosave, violation and submit
// operations for connected clients.
type TestHandler struct {
	testService     *service.TestService
	gradingService  *service.GradingService
	scheduleService *service.ScheduleService
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(testService *service.TestService, gradingService *service.GradingService, scheduleService *service.ScheduleService) *TestHandler {
	return &TestHandler{
		testService:     testService,
		gradingService:  gradingService,
		scheduleService: scheduleService,
	}
}

// GetAvailability godoc
// GET /api/v1/student/tests/:test_id/availability
func (h *TestHandler) GetAvailability(c *gin.Context) {
	testID, ok := pathUUID(c, "test_id")
	if !ok {
		return
	}

	avail, err := h.scheduleService.CheckTestAvailability(c.Request.Context(), testID)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, avail)
}

// UseScheduleOverride godoc
// POST /api/v1/student/tests/:test_id/schedule-override
// Checks an override code for a closed test. Supplying attempt_id records the usage.
func (h *TestHandler) UseScheduleOverride(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	testID, ok := pathUUID(c, "test_id")
	if !ok {
		return
	}

	var req model.ScheduleOverrideRequest
	if !bind(c, &req) {
		return
	}
	var attemptID *uuid.UUID
	if req.AttemptID != nil {
		id := uuid.MustParse(*req.AttemptID)
		attemptID = &id
	}

	res, err := h.scheduleService.ValidateAndUseOverride(c.Request.Context(), studentID, testID, req.Code, attemptID)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// StartAttempt godoc
// POST /api/v1/student/tests/:test_id/attempts
// Opens a new attempt. An override code lets the student in outside the schedule.
func (h *TestHandler) StartAttempt(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	testID, ok := pathUUID(c, "test_id")
	if !ok {
		return
	}

	var req model.StartAttemptRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}

	attempt, err := h.testService.StartTestAttempt(c.Request.Context(), studentID, testID, req.OverrideCode)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"attempt": attempt})
}

// GetAttempt godoc
// GET /api/v1/student/attempts/:attempt_id
func (h *TestHandler) GetAttempt(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	attemptID, ok := pathUUID(c, "attempt_id")
	if !ok {
		return
	}

	attempt, err := h.testService.GetAttempt(c.Request.Context(), studentID, attemptID)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// GetQuestions godoc
// GET /api/v1/student/attempts/:attempt_id/questions
func (h *TestHandler) GetQuestions(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	attemptID, ok := pathUUID(c, "attempt_id")
	if !ok {
		return
	}

	questions, err := h.testService.GetQuestions(c.Request.Context(), studentID, attemptID)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// SaveAnswer godoc
// PUT /api/v1/student/attempts/:attempt_id/answers
func (h *TestHandler) SaveAnswer(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	attemptID, ok := pathUUID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if !bind(c, &req) {
		return
	}

	if err := h.testService.SaveAnswer(c.Request.Context(), studentID, attemptID, *req.QuestionIndex, req.Answer); err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question_index": *req.QuestionIndex})
}

// Submit godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Closes the attempt and queues it for grading.
func (h *TestHandler) Submit(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	attemptID, ok := pathUUID(c, "attempt_id")
	if !ok {
		return
	}

	attempt, err := h.testService.SubmitTest(c.Request.Context(), studentID, attemptID)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"attempt": attempt})
}

// RecordViolation godoc
// POST /api/v1/student/attempts/:attempt_id/violations
func (h *TestHandler) RecordViolation(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	attemptID, ok := pathUUID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.SecurityViolationRequest
	if !bind(c, &req) {
		return
	}

	attempt, err := h.testService.RecordSecurityViolation(c.Request.Context(), studentID, attemptID, req.Type)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// Unlock godoc
// POST /api/v1/student/attempts/:attempt_id/unlock
func (h *TestHandler) Unlock(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	attemptID, ok := pathUUID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.UnlockAttemptRequest
	if !bind(c, &req) {
		return
	}

	attempt, err := h.testService.UnlockAttempt(c.Request.Context(), studentID, attemptID, req.Code)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// GetResult godoc
// GET /api/v1/student/attempts/:attempt_id/result
func (h *TestHandler) GetResult(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}
	attemptID, ok := pathUUID(c, "attempt_id")
	if !ok {
		return
	}

	result, err := h.gradingService.GetResultForStudent(c.Request.Context(), studentID, attemptID)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
