package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totem-events/backend/internal/apperr"
)

func TestError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name    string
		err     error
		status  int
		message string
		code    string
		field   string
	}{
		{"validation", apperr.Validation("title", "is required"), http.StatusBadRequest, "invalid title: is required", "validation", "title"},
		{"wrapped validation", fmt.Errorf("create: %w", apperr.Validation("tags", "is required")), http.StatusBadRequest, "create: invalid tags: is required", "validation", "tags"},
		{"not found", apperr.NotFound("event"), http.StatusNotFound, "event not found", "not_found", ""},
		{"unauthorized", apperr.Unauthorized("no permission"), http.StatusForbidden, "no permission", "unauthorized", ""},
		{"duplicate", apperr.Duplicate("permission already granted"), http.StatusConflict, "permission already granted", "duplicate", ""},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, "internal server error", "internal", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			Error(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.True(t, c.IsAborted())
			var body Body
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.message, body.Error)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.field, body.Field)
		})
	}
}

func TestErrorRecordsInternalCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, apperr.Internal("write blob", errors.New("bucket gone")))

	require.Len(t, c.Errors, 1)
	assert.Contains(t, c.Errors[0].Error(), "bucket gone")
	assert.NotContains(t, w.Body.String(), "bucket gone")
}

func TestOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	OK(c, gin.H{"status": "ok"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"status":"ok"}}`, w.Body.String())
}
