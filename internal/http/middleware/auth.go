// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the request principal from an "Authorization: Bearer"
// header. Reads are public, so a missing header yields the anonymous
// principal; a header that is present but invalid, expired or revoked is
// rejected with 401.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-catalog-backend/internal/services"
)

const (
	ctxKeyPrincipal = "principal"
	ctxKeyToken     = "auth.token"
)

// PrincipalResolver turns a raw bearer token into a principal.
type PrincipalResolver interface {
	CurrentPrincipal(ctx context.Context, raw string) (services.Principal, error)
}

// Authenticate stores the principal of every request in the Gin context,
// where PrincipalFrom finds it.
func Authenticate(resolver PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, present := bearerToken(c.GetHeader("Authorization"))
		if !present {
			c.Set(ctxKeyPrincipal, services.Anonymous)
			c.Next()
			return
		}
		pr, err := resolver.CurrentPrincipal(c.Request.Context(), raw)
		switch {
		case errors.Is(err, services.ErrUnauthenticated):
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "token is invalid or expired",
			})
			return
		case err != nil:
			LoggerFrom(c).Error().Err(err).Msg("resolve principal")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "internal_error",
				"message":    "internal server error",
			})
			return
		}
		c.Set(ctxKeyPrincipal, pr)
		c.Set(ctxKeyToken, raw)
		c.Next()
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !PrincipalFrom(c).Authenticated() {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "authentication credentials were not provided",
			})
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the principal stored by Authenticate, or the
// anonymous principal.
func PrincipalFrom(c *gin.Context) services.Principal {
	if v, ok := c.Get(ctxKeyPrincipal); ok {
		if pr, ok := v.(services.Principal); ok {
			return pr
		}
	}
	return services.Anonymous
}

// TokenFrom returns the raw bearer token the request authenticated with.
func TokenFrom(c *gin.Context) string {
	return c.GetString(ctxKeyToken)
}

// bearerToken extracts the token of a "Bearer <token>" header. present is
// false only when the header is absent altogether.
func bearerToken(h string) (tok string, present bool) {
	h = strings.TrimSpace(h)
	if h == "" {
		return "", false
	}
	scheme, rest, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		// a non-bearer scheme is not ours to judge
		return "", false
	}
	return strings.TrimSpace(rest), true
}
