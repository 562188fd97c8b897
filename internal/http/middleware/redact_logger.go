// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger of the catalog API.
// It never logs bodies. Credentials are masked outright: the Authorization
// header, cookies, Idempotency-Key and query parameters that carry passwords
// or tokens. Other query and header values are scrubbed of emails, phone
// numbers and UUIDs.
package middleware

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const redacted = "[REDACTED]"

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// digits only, so it cannot eat the hex groups of a UUID
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)

	defaultMaskedHeaders = []string{"Authorization", "Cookie", "Set-Cookie", HeaderIdempotencyKey}
	defaultMaskedParams  = []string{"password", "password2", "token", "access", "refresh"}
)

// RedactOptions adds to the built-in masks. Matching is case-insensitive.
type RedactOptions struct {
	MaskHeaders []string
	MaskParams  []string
}

// scrub replaces identifiers in s. UUIDs go first: the phone pattern would
// otherwise match their digit runs.
func scrub(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func lowerSet(base, extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(base)+len(extra))
	for _, group := range [][]string{base, extra} {
		for _, v := range group {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				set[v] = struct{}{}
			}
		}
	}
	return set
}

// scrubQuery masks sensitive parameters by name and scrubs the rest. The
// result is rendered unescaped with sorted keys, for humans.
func scrubQuery(raw string, masked map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return scrub(truncate(raw, maxQueryLogLength))
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		_, mask := masked[strings.ToLower(k)]
		for _, v := range vals[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(scrub(k))
			b.WriteByte('=')
			if mask {
				b.WriteString(redacted)
			} else {
				b.WriteString(scrub(v))
			}
		}
	}
	return truncate(b.String(), maxQueryLogLength)
}

// RedactingLogger attaches the request-scoped logger (request ID, method,
// route) and writes one access log line per request once the handlers
// return: info for success, warn for 4xx, error for 5xx. The line carries
// the resolved principal, so it must be installed before Authenticate.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskedHeaders := lowerSet(defaultMaskedHeaders, opts.MaskHeaders)
	maskedParams := lowerSet(defaultMaskedParams, opts.MaskParams)

	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		rid := c.Writer.Header().Get(requestIDHeader)
		if rid == "" {
			rid = c.GetString(requestIDKey)
		}

		reqLog := log.With().
			Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("route", route).
			Logger()
		attachLogger(c, reqLog)

		headers := zerolog.Dict()
		for k, vv := range c.Request.Header {
			if _, ok := maskedHeaders[strings.ToLower(k)]; ok {
				headers.Str(k, redacted)
				continue
			}
			headers.Str(k, scrub(strings.Join(vv, ", ")))
		}
		query := scrubQuery(c.Request.URL.RawQuery, maskedParams)

		c.Next()

		status := c.Writer.Status()
		ev := reqLog.Info()
		switch {
		case status >= 500:
			ev = reqLog.Error()
		case status >= 400:
			ev = reqLog.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}

		pr := PrincipalFrom(c)
		params := zerolog.Dict()
		for _, p := range c.Params {
			params.Str(p.Key, p.Value)
		}

		ev.Str("path", scrub(c.Request.URL.Path)).
			Dict("params", params).
			Str("query", query).
			Str("user_id", pr.UserID).
			Bool("staff", pr.IsStaff).
			Bool("replayed", IsReplay(c)).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Dict("headers", headers).
			Msg("http_request")
	}
}
