// Package response writes the JSON envelope shared by every endpoint.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/totem-events/backend/internal/apperr"
)

// Body is the standard API response envelope. Code and Field are set on classified errors.
type Body struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400 for input the handler could not bind.
func BadRequest(c *gin.Context, msg string) {
	fail(c, http.StatusBadRequest, Body{Error: msg, Code: apperr.KindValidation.String()})
}

// Unauthorized sends 401 for a missing or invalid token.
func Unauthorized(c *gin.Context, msg string) {
	fail(c, http.StatusUnauthorized, Body{Error: msg})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, msg string) {
	fail(c, http.StatusForbidden, Body{Error: msg, Code: apperr.KindUnauthorized.String()})
}

// TooManyRequests sends 429.
func TooManyRequests(c *gin.Context, msg string) {
	fail(c, http.StatusTooManyRequests, Body{Error: msg})
}

// Error writes err with the status of its kind. Internal causes are attached to the gin
// context for the request logger and replaced by a generic message.
func Error(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	body := Body{Error: err.Error(), Code: kind.String()}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Field = ae.Field
	}

	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindUnauthorized:
		status = http.StatusForbidden
	case apperr.KindDuplicate:
		status = http.StatusConflict
	default:
		_ = c.Error(err)
		body = Body{Error: "internal server error", Code: kind.String()}
	}
	fail(c, status, body)
}

func fail(c *gin.Context, status int, body Body) {
	body.Success = false
	c.AbortWithStatusJSON(status, body)
}
