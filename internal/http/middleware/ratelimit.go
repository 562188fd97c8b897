// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory token-bucket rate limiter. Every caller
// gets two buckets: one for reads (GET, HEAD, OPTIONS), which are public and
// served mostly from the catalog cache, and a tighter one for writes, which
// hit the database and fan out invalidation events. Callers are identified by
// their principal when authenticated and by client IP otherwise.
//
// The limiter is process-local; it is an abuse guard, not a quota system.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Request classes with separate budgets.
const (
	ClassRead  = "read"
	ClassWrite = "write"
)

// CodeRateLimited is the error code of 429 responses.
const CodeRateLimited = "rate_limited"

const (
	bucketIdleTTL    = 10 * time.Minute
	bucketSweepEvery = 5000
)

// Budget is a token-bucket configuration: RPS tokens are added per second up
// to Burst.
type Budget struct {
	RPS   float64
	Burst int
}

// RateLimitOptions configures NewRateLimiter.
type RateLimitOptions struct {
	Read  Budget
	Write Budget
	// Identity maps a request to the caller it is charged to. Defaults to
	// CallerIdentity.
	Identity func(*gin.Context) string
}

// CallerIdentity charges authenticated requests to the user and anonymous
// ones to the client IP. The prefixes keep the namespaces apart.
func CallerIdentity(c *gin.Context) string {
	if pr := PrincipalFrom(c); pr.Authenticated() {
		return "user:" + pr.UserID
	}
	return "ip:" + c.ClientIP()
}

// RequestClass reports whether a request spends the read or the write budget.
func RequestClass(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ClassRead
	default:
		return ClassWrite
	}
}

type bucketKey struct {
	identity string
	class    string
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one bucket per (identity, class). Idle buckets are swept
// every few thousand lookups. Safe for concurrent use.
type RateLimiter struct {
	budgets  map[string]Budget
	identity func(*gin.Context) string
	now      func() time.Time

	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	lookups int
}

// NewRateLimiter builds a limiter. Bursts below 1 are raised to 1.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	norm := func(b Budget) Budget {
		if b.Burst < 1 {
			b.Burst = 1
		}
		return b
	}
	id := opts.Identity
	if id == nil {
		id = CallerIdentity
	}
	return &RateLimiter{
		budgets:  map[string]Budget{ClassRead: norm(opts.Read), ClassWrite: norm(opts.Write)},
		identity: id,
		now:      time.Now,
		buckets:  make(map[bucketKey]*bucket),
	}
}

// limiterFor returns the bucket for key, creating it on first use. The sweep
// runs before the lookup so a stale bucket is replaced rather than refreshed.
func (rl *RateLimiter) limiterFor(key bucketKey, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= bucketSweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= bucketIdleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}
	budget := rl.budgets[key.class]
	lim := rate.NewLimiter(rate.Limit(budget.RPS), budget.Burst)
	rl.buckets[key] = &bucket{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator found a stored result
// for this request. Replays are free.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the budgets. Admitted requests carry X-RateLimit-Limit and
// X-RateLimit-Remaining; rejected ones get 429 with a Retry-After that covers
// the wait for the next token.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		class := RequestClass(c.Request.Method)
		lim := rl.limiterFor(bucketKey{identity: rl.identity(c), class: class}, now)
		limit := strconv.Itoa(rl.budgets[class].Burst)

		res := lim.ReserveN(now, 1)
		wait := time.Duration(math.MaxInt64)
		if res.OK() {
			wait = res.DelayFrom(now)
		}
		if wait == 0 {
			h := c.Writer.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(int(math.Max(0, math.Floor(lim.TokensAt(now))))))
			c.Next()
			return
		}
		res.CancelAt(now)

		c.Header("Retry-After", retryAfter(wait))
		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", "0")
		LoggerFrom(c).Debug().Str("class", class).Dur("wait", wait).Msg("rate limited")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       CodeRateLimited,
			"message":    "too many " + class + " requests",
		})
	}
}

// retryAfter renders a wait as whole seconds, at least 1. A zero-rate budget
// never refills; clients are told to come back in an hour.
func retryAfter(d time.Duration) string {
	if d == time.Duration(math.MaxInt64) || d > time.Hour {
		return "3600"
	}
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
