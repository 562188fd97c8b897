// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, compression,
// metrics, authentication, CORS, security headers, idempotency, and rate
// limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-catalog-backend/docs"
	"github.com/tbourn/go-catalog-backend/internal/config"
	"github.com/tbourn/go-catalog-backend/internal/http/handlers"
	"github.com/tbourn/go-catalog-backend/internal/http/middleware"
	"github.com/tbourn/go-catalog-backend/internal/repo"
)

// Services bundles the application services the routes are bound to.
type Services struct {
	Catalog handlers.CatalogService
	Auth    interface {
		handlers.AuthService
		middleware.PrincipalResolver
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), authentication,
// idempotency and rate limiting, CORS and security headers, health, metrics
// and Swagger endpoints, and then mounts the versioned public API under
// /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: request logger, access log with credentials masked
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. gzip compression
//  7. Metrics
//  8. Authenticate: resolve the bearer token (anonymous when absent)
//  9. Idempotency validator (after auth: keys are scoped per user)
//  10. Rate limiter (per user or IP, reads and writes apart, replays free)
//  11. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, svc Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Request logger and redacted access log
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Response compression (the metrics scrape negotiates its own)
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Principal from Authorization: Bearer
	r.Use(middleware.Authenticate(svc.Auth))

	// 9) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			_, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		},
	))

	// 10) Token buckets per caller, reads and writes budgeted apart
	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{
		Read:  middleware.Budget{RPS: cfg.RateRPS, Burst: cfg.RateBurst},
		Write: middleware.Budget{RPS: cfg.RateWriteRPS, Burst: cfg.RateWriteBurst},
	})
	r.Use(rl.Handler())

	// 11) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Location", "Idempotency-Replayed",
		"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers; token responses are never cached
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStorePrefixes: []string{cfg.APIBasePath + "/auth"},
		DocsPrefix:      "/swagger/",
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc.Catalog, svc.Auth, handlers.Options{
		DB:             db,
		MediaBaseURL:   cfg.MediaBaseURL,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})
	authed := middleware.RequireUser()

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Categories and groups
		api.GET("/categories", h.ListCategories)
		api.POST("/categories", authed, h.CreateCategory)
		api.GET("/categories/:slug", h.GetCategory)
		api.PUT("/categories/:slug", authed, h.UpdateCategory)
		api.DELETE("/categories/:slug", authed, h.DeleteCategory)
		api.GET("/categories/:slug/groups", h.ListGroups)
		api.GET("/categories/:slug/:group/products", h.ListProducts)
		api.GET("/groups", h.ListGroups)
		api.POST("/groups", authed, h.CreateGroup)
		api.DELETE("/groups/:slug", authed, h.DeleteGroup)

		// Products
		api.GET("/products", h.ListProducts)
		api.POST("/products", authed, h.CreateProduct)
		api.GET("/products/:slug", h.GetProduct)
		api.PUT("/products/:slug", authed, h.UpdateProduct)
		api.DELETE("/products/:slug", authed, h.DeleteProduct)
		api.POST("/products/:slug/images", authed, h.AddImage)
		api.GET("/products/:slug/attributes", h.GetAttributes)
		api.PUT("/products/:slug/attributes", authed, h.SetAttributes)
		api.POST("/products/:slug/like", authed, h.Like)
		api.DELETE("/products/:slug/like", authed, h.Unlike)

		// Comments
		api.GET("/products/:slug/comments", h.ListComments)
		api.POST("/products/:slug/comments", authed, h.CreateComment)
		api.DELETE("/comments/:id", authed, h.DeleteComment)

		// Accounts
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)
		api.POST("/auth/refresh", authed, h.Refresh)
		api.POST("/auth/logout", authed, h.Logout)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
