package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/umadex/umadex-backend/internal/middleware"
	"github.com/umadex/umadex-backend/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newContext(params gin.Params) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = params
	return c, w
}

func TestPathChunk(t *testing.T) {
	tests := []struct {
		raw    string
		want   int
		wantOK bool
	}{
		{"1", 1, true},
		{"12", 12, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			c, w := newContext(gin.Params{{Key: "chunk", Value: tt.raw}})
			got, ok := pathChunk(c)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
			if !ok {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestPathUUID(t *testing.T) {
	id := uuid.New()
	c, _ := newContext(gin.Params{{Key: "attempt_id", Value: id.String()}})
	got, ok := pathUUID(c, "attempt_id")
	assert.True(t, ok)
	assert.Equal(t, id, got)

	c, w := newContext(gin.Params{{Key: "attempt_id", Value: "nope"}})
	_, ok = pathUUID(c, "attempt_id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_ID")
}

func TestCallerID(t *testing.T) {
	c, w := newContext(nil)
	_, ok := callerID(c)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	id := uuid.New()
	c, _ = newContext(nil)
	c.Set(middleware.ContextKeyClaims, &service.Claims{UserID: id, Role: service.RoleStudent})
	got, ok := callerID(c)
	assert.True(t, ok)
	assert.Equal(t, id, got)
}

func TestBuildUpgraderOrigins(t *testing.T) {
	open := buildUpgrader(nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://anything.example")
	assert.True(t, open.CheckOrigin(req))

	strict := buildUpgrader([]string{"https://app.umadex.test"})
	assert.False(t, strict.CheckOrigin(req))
	req.Header.Set("Origin", "https://APP.umadex.test")
	assert.True(t, strict.CheckOrigin(req))
}
