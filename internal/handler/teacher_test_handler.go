package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/response"
	"github.com/umadex/umadex-backend/internal/service"
)

// TeacherTestHandler handles test management and grading review endpoints.
type TeacherTestHandler struct {
	scheduleService   *service.ScheduleService
	gradingService    *service.GradingService
	generationService *service.QuestionGenerationService
}

// NewTeacherTestHandler creates a new TeacherTestHandler.
func NewTeacherTestHandler(
	scheduleService *service.ScheduleService,
	gradingService *service.GradingService,
	generationService *service.QuestionGenerationService,
) *TeacherTestHandler {
	return &TeacherTestHandler{
		scheduleService:   scheduleService,
		gradingService:    gradingService,
		generationService: generationService,
	}
}

// SetSchedule godoc
// PUT /api/v1/teacher/tests/:test_id/schedule
func (h *TeacherTestHandler) SetSchedule(c *gin.Context) {
	teacherID, ok := callerID(c)
	if !ok {
		return
	}
	testID, ok := pathUUID(c, "test_id")
	if !ok {
		return
	}

	var req model.ScheduleRequest
	if !bind(c, &req) {
		return
	}

	sched, err := h.scheduleService.SetSchedule(c.Request.Context(), teacherID, testID, req)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"schedule": sched})
}

// TriggerGeneration godoc
// POST /api/v1/teacher/tests/:test_id/generate-questions
// Queues question generation. Poll the returned log for the outcome.
func (h *TeacherTestHandler) TriggerGeneration(c *gin.Context) {
	teacherID, ok := callerID(c)
	if !ok {
		return
	}
	testID, ok := pathUUID(c, "test_id")
	if !ok {
		return
	}

	log, err := h.generationService.Trigger(c.Request.Context(), teacherID, testID)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"generation": log})
}

// GetGeneration godoc
// GET /api/v1/teacher/generations/:log_id
func (h *TeacherTestHandler) GetGeneration(c *gin.Context) {
	teacherID, ok := callerID(c)
	if !ok {
		return
	}
	logID, ok := pathUUID(c, "log_id")
	if !ok {
		return
	}

	log, err := h.generationService.GetGenerationLog(c.Request.Context(), teacherID, logID)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"generation": log})
}

// GetResult godoc
// GET /api/v1/teacher/attempts/:attempt_id/result
func (h *TeacherTestHandler) GetResult(c *gin.Context) {
	teacherID, ok := callerID(c)
	if !ok {
		return
	}
	attemptID, ok := pathUUID(c, "attempt_id")
	if !ok {
		return
	}

	result, err := h.gradingService.GetResultForTeacher(c.Request.Context(), teacherID, attemptID)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// RegenerateEvaluation godoc
// POST /api/v1/teacher/attempts/:attempt_id/regenerate
// Re-runs AI grading synchronously on a submitted or graded attempt.
func (h *TeacherTestHandler) RegenerateEvaluation(c *gin.Context) {
	teacherID, ok := callerID(c)
	if !ok {
		return
	}
	attemptID, ok := pathUUID(c, "attempt_id")
	if !ok {
		return
	}

	result, err := h.gradingService.RegenerateEvaluation(c.Request.Context(), teacherID, attemptID)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// OverrideScore godoc
// POST /api/v1/teacher/attempts/:attempt_id/overrides
func (h *TeacherTestHandler) OverrideScore(c *gin.Context) {
	teacherID, ok := callerID(c)
	if !ok {
		return
	}
	attemptID, ok := pathUUID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.OverrideScoreRequest
	if !bind(c, &req) {
		return
	}

	result, err := h.gradingService.OverrideScore(c.Request.Context(), teacherID, attemptID, req)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
