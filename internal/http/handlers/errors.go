// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants and the mapping from
// service errors to HTTP responses. Codes give clients a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case.
//   - Generic codes (e.g., bad_request, unauthorized, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - validation_failed carries the offending field in the envelope.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "validation_failed",
//	  "field": "rating",
//	  "message": "rating: must be less than or equal to 5"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-catalog-backend/internal/http/middleware"
	"github.com/tbourn/go-catalog-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_failed"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = middleware.CodeRateLimited
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// writeError translates a service error into the matching status and code.
// Unknown errors become a logged 500 whose message does not leak details.
func writeError(c *gin.Context, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		failField(c, http.StatusBadRequest, ErrCodeValidation, ve.Field, ve.Error())
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "no active account found with the given credentials")
	case errors.Is(err, services.ErrUnauthenticated):
		c.Header("WWW-Authenticate", "Bearer")
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication credentials were not provided or are invalid")
	case errors.Is(err, services.ErrPermission):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "you do not have permission to perform this action")
	case errors.Is(err, services.ErrConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, "the resource was modified concurrently; retry")
	default:
		_ = c.Error(err)
		middleware.LoggerFrom(c).Error().Err(err).Str("path", c.FullPath()).Msg("unhandled service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
