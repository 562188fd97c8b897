package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/go-catalog-backend/internal/services"
)

func TestMetrics_RouteAndPrincipalLabels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.Use(func(c *gin.Context) {
		switch c.GetHeader("Authorization") {
		case "Bearer staff":
			c.Set(ctxKeyPrincipal, services.Principal{UserID: "u2", IsStaff: true})
		case "Bearer user":
			c.Set(ctxKeyPrincipal, services.Principal{UserID: "u1"})
		}
		c.Next()
	})
	r.GET("/api/v1/products/:slug", func(c *gin.Context) { c.String(http.StatusOK, c.Param("slug")) })
	r.DELETE("/api/v1/products/:slug", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	const route = "/api/v1/products/:slug"
	anon := httpReqs.WithLabelValues("GET", route, "anonymous", "200")
	user := httpReqs.WithLabelValues("GET", route, "user", "200")
	staff := httpReqs.WithLabelValues("DELETE", route, "staff", "204")
	missing := httpReqs.WithLabelValues("GET", unmatchedRoute, "anonymous", "404")
	base := []float64{testutil.ToFloat64(anon), testutil.ToFloat64(user), testutil.ToFloat64(staff), testutil.ToFloat64(missing)}

	send := func(method, path, auth string) int {
		req := httptest.NewRequest(method, path, nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	send(http.MethodGet, "/api/v1/products/pixel-8", "")
	send(http.MethodGet, "/api/v1/products/galaxy-s24", "")
	send(http.MethodGet, "/api/v1/products/pixel-8", "Bearer user")
	send(http.MethodDelete, "/api/v1/products/pixel-8", "Bearer staff")
	if code := send(http.MethodGet, "/api/v1/nothing/here", ""); code != http.StatusNotFound {
		t.Fatalf("unmatched = %d", code)
	}

	got := []float64{testutil.ToFloat64(anon), testutil.ToFloat64(user), testutil.ToFloat64(staff), testutil.ToFloat64(missing)}
	want := []float64{base[0] + 2, base[1] + 1, base[2] + 1, base[3] + 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("counter %d = %v; want %v", i, got[i], want[i])
		}
	}
	if v := testutil.ToFloat64(httpInflight); v != 0 {
		t.Fatalf("inflight = %v; want 0", v)
	}
	if n := testutil.CollectAndCount(httpLat, "catalog_http_request_duration_seconds"); n == 0 {
		t.Fatalf("latency histogram not observed")
	}
}

func TestMetrics_CountsIdempotentReplays(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.POST("/api/v1/products", func(c *gin.Context) {
		if c.GetHeader(HeaderIdempotencyKey) == "seen" {
			c.Header("Idempotency-Replayed", "true")
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusCreated)
	})

	replays := httpReplays.WithLabelValues("/api/v1/products")
	before := testutil.ToFloat64(replays)

	for _, key := range []string{"fresh", "seen", "seen"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/products", nil)
		req.Header.Set(HeaderIdempotencyKey, key)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(replays); got != before+2 {
		t.Fatalf("replays = %v; want %v", got, before+2)
	}
}
