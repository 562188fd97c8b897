// Package handlers provides HTTP handler implementations for the public API.
//
// This file holds the response writers. Every error leaves through failField
// as an ErrorResponse with a stable code:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "product not found"
//	}
package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-catalog-backend/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Offending input field, set on validation_failed
	Field string `json:"field,omitempty" example:"title"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"product not found"`
}

func fail(c *gin.Context, status int, code, msg string) {
	failField(c, status, code, "", msg)
}

// failField aborts with an ErrorResponse. 5xx are logged at error level,
// client errors at debug so a noisy client cannot flood the logs.
func failField(c *gin.Context, status int, code, field, msg string) {
	lg := middleware.LoggerFrom(c)
	ev := lg.Debug()
	if status >= http.StatusInternalServerError {
		ev = lg.Error()
	}
	ev.Int("status", status).Str("code", code).Str("field", field).Msg(msg)

	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Field:     field,
		Message:   msg,
	})
}

// Fail lets the router answer with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// created answers 201 with a Location pointing at slug under the collection
// the request was posted to.
func created(c *gin.Context, slug string, body any) {
	c.Header("Location", strings.TrimRight(c.Request.URL.Path, "/")+"/"+url.PathEscape(slug))
	c.JSON(http.StatusCreated, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
