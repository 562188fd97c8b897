// Package handlers exposes the catalog and auth use-cases over HTTP.
//
// Handlers are transport-thin: they bind and normalize input, read the
// principal set by middleware.Authenticate, call the application services and
// translate results (and service errors) into HTTP responses, including
// conditional responses (ETag) and idempotent replays.
package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-catalog-backend/internal/domain"
	"github.com/tbourn/go-catalog-backend/internal/http/middleware"
	"github.com/tbourn/go-catalog-backend/internal/repo"
	"github.com/tbourn/go-catalog-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// CatalogService defines the catalog operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type CatalogService interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, slug string) (*domain.Category, error)
	CreateCategory(ctx context.Context, pr services.Principal, in services.CategoryInput) (*domain.Category, error)
	UpdateCategory(ctx context.Context, pr services.Principal, slug string, in services.CategoryInput) (*domain.Category, error)
	DeleteCategory(ctx context.Context, pr services.Principal, slug string) error

	ListGroups(ctx context.Context, categorySlug string) ([]domain.Group, error)
	CreateGroup(ctx context.Context, pr services.Principal, in services.GroupInput) (*domain.Group, error)
	DeleteGroup(ctx context.Context, pr services.Principal, slug string) error

	ListProducts(ctx context.Context, pr services.Principal, f repo.ProductFilter, mediaBase string) ([]services.ProjectedProduct, error)
	GetProduct(ctx context.Context, pr services.Principal, slug, mediaBase string) (*services.ProjectedProduct, error)
	CreateProduct(ctx context.Context, pr services.Principal, in services.ProductInput) (string, error)
	UpdateProduct(ctx context.Context, pr services.Principal, slug string, patch services.ProductPatch) error
	DeleteProduct(ctx context.Context, pr services.Principal, slug string) error
	AddImage(ctx context.Context, pr services.Principal, slug string, in services.ImageInput) (*domain.Image, error)

	ProductAttributes(ctx context.Context, slug string) (map[string]string, error)
	SetAttributes(ctx context.Context, pr services.Principal, slug string, attrs map[string]string) (map[string]string, error)

	Like(ctx context.Context, pr services.Principal, slug string) error
	Unlike(ctx context.Context, pr services.Principal, slug string) error

	ListComments(ctx context.Context, slug string) ([]domain.Comment, error)
	GetComment(ctx context.Context, id uint) (*domain.Comment, error)
	CreateComment(ctx context.Context, pr services.Principal, slug string, in services.CommentInput) (*domain.Comment, error)
	DeleteComment(ctx context.Context, pr services.Principal, id uint) error
}

// AuthService defines the account and token operations consumed by HTTP
// handlers.
type AuthService interface {
	Register(ctx context.Context, in services.RegisterInput) (*domain.User, error)
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	IssueToken(u *domain.User) (*services.Token, error)
	Refresh(ctx context.Context, raw string) (*services.Token, error)
	Logout(ctx context.Context, raw string) error
}

//
// Handler wiring
//

// Options carries the transport-level settings of Handlers.
type Options struct {
	// DB backs list ETags and idempotency records. Nil disables both.
	DB *gorm.DB
	// MediaBaseURL prefixes relative image paths. Empty derives
	// "<scheme>://<host>/media" from each request.
	MediaBaseURL string
	// IdempotencyTTL is how long an Idempotency-Key is remembered.
	IdempotencyTTL time.Duration
}

// Handlers groups the HTTP endpoints of the catalog and auth APIs.
type Handlers struct {
	catalog CatalogService
	auth    AuthService

	db      *gorm.DB
	media   string
	idemTTL time.Duration
}

// New constructs a Handlers instance bound to the given services.
func New(catalog CatalogService, auth AuthService, opts Options) *Handlers {
	ttl := opts.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Handlers{
		catalog: catalog,
		auth:    auth,
		db:      opts.DB,
		media:   opts.MediaBaseURL,
		idemTTL: ttl,
	}
}

// principal returns the request principal set by middleware.Authenticate.
func principal(c *gin.Context) services.Principal {
	return middleware.PrincipalFrom(c)
}

// mediaBase returns the configured media prefix, or one built from the
// request's scheme and host.
func (h *Handlers) mediaBase(c *gin.Context) string {
	if h.media != "" {
		return h.media
	}
	scheme := "http"
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + "/media"
}
