package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/umadex/umadex-backend/internal/middleware"
	"github.com/umadex/umadex-backend/internal/response"
	"github.com/umadex/umadex-backend/internal/validator"
)

// callerID returns the authenticated user id, writing 401 when absent.
func callerID(c *gin.Context) (uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return uuid.Nil, false
	}
	return claims.UserID, true
}

// pathUUID parses the named path parameter, writing 400 when malformed.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// pathChunk parses the 1-based :chunk parameter.
func pathChunk(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("chunk"))
	if err != nil || n < 1 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"chunk": "chunk must be a positive integer"})
		return 0, false
	}
	return n, true
}

// bind decodes and validates the JSON body, writing 400 on failure.
func bind(c *gin.Context, dst any) bool {
	if fields := validator.Bind(c, dst); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return false
	}
	return true
}
