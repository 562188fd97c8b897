package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-catalog-backend/internal/http/middleware"
	"github.com/tbourn/go-catalog-backend/internal/repo"
)

// priorResult returns the resource reference stored for this request's
// Idempotency-Key, if the key was already used on the same route by the same
// user and has not expired.
func (h *Handlers) priorResult(c *gin.Context) (string, bool) {
	key, has := middleware.GetIdempotencyKey(c)
	uid := principal(c).UserID
	if !has || uid == "" || h.db == nil {
		return "", false
	}
	rec, err := repo.GetIdempotency(c.Request.Context(), h.db, uid, middleware.IdempotencyScope(c), key, time.Now().UTC())
	if err != nil || rec == nil {
		return "", false
	}
	return rec.ResourceRef, true
}

// rememberResult records ref under the request's Idempotency-Key. Failures
// are logged; the request itself already succeeded.
func (h *Handlers) rememberResult(c *gin.Context, ref string, status int) {
	key, has := middleware.GetIdempotencyKey(c)
	uid := principal(c).UserID
	if !has || uid == "" || h.db == nil {
		return
	}
	if _, err := repo.CreateIdempotency(c.Request.Context(), h.db, uid, middleware.IdempotencyScope(c), key, ref, status, h.idemTTL); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("store idempotency record")
	}
}

// markReplayed flags a response served from an earlier request.
func markReplayed(c *gin.Context) {
	c.Header("Idempotency-Replayed", "true")
}
