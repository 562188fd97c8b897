package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

// logLines decodes the JSON lines written to buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("log line is not JSON: %q", line)
		}
		out = append(out, m)
	}
	return out
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/api/v1/categories", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(requestIDKey))
	})

	cases := []struct {
		name, in string
		keep     bool
	}{
		{"generated when absent", "", false},
		{"propagated", "edge-7f3a", true},
		{"control characters rejected", "abc\x01def", false},
		{"spaces rejected", "two words", false},
		{"overlong rejected", strings.Repeat("a", maxRequestIDLength+1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil)
			if tc.in != "" {
				req.Header.Set(requestIDHeader, tc.in)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if got == "" || got != w.Body.String() {
				t.Fatalf("header %q and context %q disagree", got, w.Body.String())
			}
			if tc.keep != (got == tc.in) {
				t.Fatalf("request id = %q; incoming %q kept=%v", got, tc.in, tc.keep)
			}
		})
	}
}

func TestRecovery_PanicBecomesJSON500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(RedactingLogger(RedactOptions{}))
	r.Use(Recovery())
	r.GET("/api/v1/products/:slug", func(c *gin.Context) { panic("kaboom") })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/pixel-8", nil)
	req.Header.Set(requestIDHeader, "rid-panic")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] != "rid-panic" {
		t.Fatalf("body = %v", body)
	}

	var panicLine map[string]any
	for _, l := range logLines(t, buf) {
		if l["message"] == "panic recovered" {
			panicLine = l
		}
	}
	if panicLine == nil {
		t.Fatalf("no panic log in:\n%s", buf.String())
	}
	// the request logger's fields ride along
	if panicLine["request_id"] != "rid-panic" || panicLine["route"] != "/api/v1/products/:slug" || panicLine["stack"] == nil {
		t.Fatalf("panic log = %v", panicLine)
	}
}

func TestRecovery_PanicAfterWriteKeepsBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(Recovery())
	r.GET("/api/v1/products", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	if w.Body.String() != "partial" || strings.Contains(w.Header().Get("Content-Type"), "json") {
		t.Fatalf("late panic rewrote the response: %q %q", w.Header().Get("Content-Type"), w.Body.String())
	}
}

func TestLoggerFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	LoggerFrom(c).Info().Msg("bare")

	attachLogger(c, log.With().Str("request_id", "rid-9").Logger())
	LoggerFrom(c).Info().Msg("scoped")
	zerolog.Ctx(c.Request.Context()).Info().Msg("from service")

	lines := logLines(t, buf)
	if len(lines) != 3 {
		t.Fatalf("want 3 lines, got %d", len(lines))
	}
	if _, ok := lines[0]["request_id"]; ok {
		t.Fatalf("fallback logger carries request fields: %v", lines[0])
	}
	for _, l := range lines[1:] {
		if l["request_id"] != "rid-9" {
			t.Fatalf("scoped line lost request_id: %v", l)
		}
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"pixel", 10, "pixel"},
		{"galaxy-s24", 6, "galaxy…"},
		{"iphone", 0, "iphone"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q; want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
