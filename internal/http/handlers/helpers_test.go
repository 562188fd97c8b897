package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-catalog-backend/internal/cache"
	"github.com/tbourn/go-catalog-backend/internal/events"
	"github.com/tbourn/go-catalog-backend/internal/http/middleware"
	"github.com/tbourn/go-catalog-backend/internal/repo"
	"github.com/tbourn/go-catalog-backend/internal/services"
)

// ---------- test DB + app ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	return db
}

type testApp struct {
	r       *gin.Engine
	db      *gorm.DB
	catalog *services.CatalogService
	auth    *services.AuthService

	staffTok, aliceTok, bobTok string
}

const testMedia = "https://cdn.example.com/media"

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	catalog := services.NewCatalogService(db, cache.NewMemory(), events.NopPublisher{})
	auth := services.NewAuthService(db, []byte("test-secret"), time.Hour, "catalog-test")
	auth.Cost = bcrypt.MinCost

	h := New(catalog, auth, Options{DB: db, MediaBaseURL: testMedia})

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Authenticate(auth))
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			return err == nil && rec != nil, nil
		}))

	r.GET("/categories", h.ListCategories)
	r.POST("/categories", h.CreateCategory)
	r.GET("/categories/:slug", h.GetCategory)
	r.PUT("/categories/:slug", h.UpdateCategory)
	r.DELETE("/categories/:slug", h.DeleteCategory)
	r.GET("/categories/:slug/groups", h.ListGroups)
	r.GET("/categories/:slug/:group/products", h.ListProducts)
	r.GET("/groups", h.ListGroups)
	r.POST("/groups", h.CreateGroup)
	r.DELETE("/groups/:slug", h.DeleteGroup)
	r.GET("/products", h.ListProducts)
	r.POST("/products", h.CreateProduct)
	r.GET("/products/:slug", h.GetProduct)
	r.PUT("/products/:slug", h.UpdateProduct)
	r.DELETE("/products/:slug", h.DeleteProduct)
	r.POST("/products/:slug/images", h.AddImage)
	r.GET("/products/:slug/attributes", h.GetAttributes)
	r.PUT("/products/:slug/attributes", h.SetAttributes)
	r.POST("/products/:slug/like", h.Like)
	r.DELETE("/products/:slug/like", h.Unlike)
	r.GET("/products/:slug/comments", h.ListComments)
	r.POST("/products/:slug/comments", h.CreateComment)
	r.DELETE("/comments/:id", h.DeleteComment)
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/refresh", middleware.RequireUser(), h.Refresh)
	r.POST("/auth/logout", middleware.RequireUser(), h.Logout)

	app := &testApp{r: r, db: db, catalog: catalog, auth: auth}
	app.staffTok = app.account(t, "admin", true)
	app.aliceTok = app.account(t, "alice", false)
	app.bobTok = app.account(t, "bob", false)
	return app
}

func (a *testApp) account(t *testing.T, name string, staff bool) string {
	t.Helper()
	u, err := a.auth.CreateUser(context.Background(), services.RegisterInput{
		Username:  name,
		Email:     name + "@example.com",
		Password:  "password-" + name,
		Password2: "password-" + name,
	}, staff)
	require.NoError(t, err)
	tok, err := a.auth.IssueToken(u)
	require.NoError(t, err)
	return tok.AccessToken
}

// seed creates phones/android with pixel-8 and galaxy-s24, and phones/iphone
// with iphone-15.
func (a *testApp) seed(t *testing.T) {
	t.Helper()
	a.mustDo(t, http.MethodPost, "/categories", a.staffTok, gin.H{"title": "Phones"}, http.StatusCreated)
	a.mustDo(t, http.MethodPost, "/groups", a.staffTok, gin.H{"name": "Android", "category": "phones"}, http.StatusCreated)
	a.mustDo(t, http.MethodPost, "/groups", a.staffTok, gin.H{"name": "iPhone", "category": "phones"}, http.StatusCreated)
	a.mustDo(t, http.MethodPost, "/products", a.staffTok, gin.H{"name": "Pixel 8", "price": 699, "group": "android"}, http.StatusCreated)
	a.mustDo(t, http.MethodPost, "/products", a.staffTok, gin.H{"name": "Galaxy S24", "price": 799, "discount": 10, "group": "android"}, http.StatusCreated)
	a.mustDo(t, http.MethodPost, "/products", a.staffTok, gin.H{"name": "iPhone 15", "price": 899, "group": "iphone"}, http.StatusCreated)
}

// do sends body (JSON-encoded unless nil) with an optional bearer token.
// Extra headers come in name/value pairs.
func (a *testApp) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func (a *testApp) mustDo(t *testing.T, method, path, token string, body any, want int, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	w := a.do(t, method, path, token, body, headers...)
	require.Equalf(t, want, w.Code, "%s %s: %s", method, path, w.Body.String())
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoErrorf(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func slugs(ps []services.ProjectedProduct) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Slug)
	}
	return out
}
