// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header of catalog writes and
// detects replays. A key belongs to one user and one operation (route plus
// product slug), so the same key on another product or by another user is a
// fresh request. The middleware only flags a replay; handlers decide how to
// answer it from the stored resource reference.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's key for a write.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key of this request.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether a stored result exists for this request's key.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	MaxLen  int            // defaults to 200
	Pattern *regexp.Regexp // defaults to token characters plus ._~-:
}

// IdempotencyLookup reports whether a still-valid record exists for
// (userID, scope, key) at now. Expiry is the lookup's business.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error)

// IdempotencyScope names the operation a key applies to: the method and
// matched route, plus the product slug when the route has one. Handlers store
// records under the same scope.
func IdempotencyScope(c *gin.Context) string {
	scope := c.Request.Method + " " + c.FullPath()
	if s := c.Param("slug"); s != "" {
		scope += "#" + s
	}
	return scope
}

// IdempotencyValidator checks the key on write requests. A malformed key is
// rejected with 400. For an authenticated caller whose key was already used
// on this operation, the request is marked as a replay and exempted from rate
// limiting. Reads ignore the header. Lookup failures are logged and the
// request proceeds as fresh.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || RequestClass(c.Request.Method) != ClassWrite {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"field":      HeaderIdempotencyKey,
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		pr := PrincipalFrom(c)
		if lookup == nil || !pr.Authenticated() {
			c.Next()
			return
		}
		exists, err := lookup(c.Request.Context(), pr.UserID, IdempotencyScope(c), key, time.Now().UTC())
		switch {
		case err != nil:
			LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
		case exists:
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}
