// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders. The catalog API only serves JSON, so
// its responses get a deny-all Content-Security-Policy; the Swagger UI is the
// one HTML surface and gets a policy that lets its own assets load. Auth
// responses carry tokens and are marked no-store, while catalog reads are
// left cacheable so ETag revalidation keeps working.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	apiCSP  = "default-src 'none'; frame-ancestors 'none'"
	docsCSP = "default-src 'self'; img-src 'self' data:; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; frame-ancestors 'none'"

	defaultHSTSMaxAge = 180 * 24 * time.Hour
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS sends Strict-Transport-Security on HTTPS requests. Only turn
	// it on when TLS reaches the proxy in front of the service.
	EnableHSTS bool
	HSTSMaxAge time.Duration // defaults to 180 days

	// NoStorePrefixes lists path prefixes whose responses must never be
	// cached, e.g. the auth endpoints.
	NoStorePrefixes []string
	// DocsPrefix is the path prefix of the HTML API docs.
	DocsPrefix string
}

// SecurityHeaders sets the response hardening headers described on
// SecurityOptions.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		path := c.Request.URL.Path

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
		h.Set("X-Permitted-Cross-Domain-Policies", "none")

		if opt.DocsPrefix != "" && strings.HasPrefix(path, opt.DocsPrefix) {
			h.Set("Content-Security-Policy", docsCSP)
		} else {
			h.Set("Content-Security-Policy", apiCSP)
		}

		for _, p := range opt.NoStorePrefixes {
			if p != "" && strings.HasPrefix(path, p) {
				h.Set("Cache-Control", "no-store")
				h.Set("Pragma", "no-cache")
				break
			}
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		c.Next()
	}
}

// isHTTPS reports whether the request reached us over TLS, directly or
// through a proxy that set X-Forwarded-Proto.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
