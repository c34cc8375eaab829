package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/umadex/umadex-backend/internal/model"
	"github.com/umadex/umadex-backend/internal/response"
	"github.com/umadex/umadex-backend/internal/service"
)

// BypassHandler handles bypass code validation and management.
type BypassHandler struct {
	bypassService *service.BypassService
}

// NewBypassHandler creates a new BypassHandler.
func NewBypassHandler(bypassService *service.BypassService) *BypassHandler {
	return &BypassHandler{bypassService: bypassService}
}

// Validate godoc
// POST /api/v1/student/bypass/validate
func (h *BypassHandler) Validate(c *gin.Context) {
	studentID, ok := callerID(c)
	if !ok {
		return
	}

	var req model.ValidateBypassRequest
	if !bind(c, &req) {
		return
	}

	res, err := h.bypassService.ValidateBypassCode(c.Request.Context(), studentID, req)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// SetPermanentCode godoc
// PUT /api/v1/teacher/bypass-code
func (h *BypassHandler) SetPermanentCode(c *gin.Context) {
	teacherID, ok := callerID(c)
	if !ok {
		return
	}

	var req model.SetBypassCodeRequest
	if !bind(c, &req) {
		return
	}

	if err := h.bypassService.SetPermanentCode(c.Request.Context(), teacherID, req.Code); err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

// GenerateOverrideCode godoc
// POST /api/v1/teacher/override-codes
func (h *BypassHandler) GenerateOverrideCode(c *gin.Context) {
	teacherID, ok := callerID(c)
	if !ok {
		return
	}

	var req model.GenerateOverrideCodeRequest
	if !bind(c, &req) {
		return
	}

	code, err := h.bypassService.GenerateOverrideCode(c.Request.Context(), teacherID, req)
	if err != nil {
		response.FailError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"override_code": code})
}
