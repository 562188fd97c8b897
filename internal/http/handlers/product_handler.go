// Product HTTP handlers.
//
// This file exposes REST endpoints for products and their satellites:
//   - GET    /products?category=&group=               (list, ETag support)
//   - GET    /categories/{slug}/{group}/products     (list, path form)
//   - POST   /products                               (create, staff, idempotent)
//   - GET    /products/{slug}                        (detail)
//   - PUT    /products/{slug}                        (update, staff)
//   - DELETE /products/{slug}                        (delete, staff)
//   - POST   /products/{slug}/images                 (add image, staff)
//   - GET    /products/{slug}/attributes             (attributes map)
//   - PUT    /products/{slug}/attributes             (set attributes, staff)
//   - POST   /products/{slug}/like, DELETE ...       (like / unlike)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-catalog-backend/internal/repo"
	"github.com/tbourn/go-catalog-backend/internal/services"
	"github.com/tbourn/go-catalog-backend/internal/utils"
)

// productFilter reads the filter from the path form when mounted under
// /categories/{slug}/{group}/products and from the query string otherwise.
func productFilter(c *gin.Context) repo.ProductFilter {
	if g := c.Param("group"); g != "" {
		return repo.ProductFilter{
			CategorySlug: utils.CleanSlug(c.Param("slug")),
			GroupSlug:    utils.CleanSlug(g),
		}
	}
	return repo.ProductFilter{
		CategorySlug: utils.CleanSlug(c.Query("category")),
		GroupSlug:    utils.CleanSlug(c.Query("group")),
	}
}

// ListProducts godoc
// @ID          listProducts
// @Summary     List products
// @Description Lists products, optionally filtered by category and/or group slug. A group outside the
// @Description category yields an empty list. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Products
// @Produce     json
//
// @Param       category       query   string  false  "Category slug"               example(phones)
// @Param       group          query   string  false  "Group slug"                  example(android)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"  example(W/\"abc123\")
//
// @Success     200  {array}  services.ProjectedProduct
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /products [get]
// @Router      /categories/{slug}/{group}/products [get]
func (h *Handlers) ListProducts(c *gin.Context) {
	ctx := c.Request.Context()
	pr := principal(c)
	f := productFilter(c)

	// ETag pre-check (best effort). is_liked depends on the caller, so the
	// user is part of the tag.
	if h.db != nil {
		st, err := repo.StampProducts(ctx, h.db, f)
		if err == nil {
			etag := st.ETag(f, pr.UserID)
			c.Header("ETag", etag)
			c.Header("Vary", "Authorization")
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, err := h.catalog.ListProducts(ctx, pr, f, h.mediaBase(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// GetProduct godoc
// @ID          getProduct
// @Summary     Get a product
// @Tags        Products
// @Produce     json
// @Param       slug  path  string  true  "Product slug"  example(pixel-8)
// @Success     200  {object}  services.ProjectedProduct
// @Failure     404  {object}  handlers.ErrorResponse  "Product not found"
// @Router      /products/{slug} [get]
func (h *Handlers) GetProduct(c *gin.Context) {
	p, err := h.catalog.GetProduct(c.Request.Context(), principal(c), utils.CleanSlug(c.Param("slug")), h.mediaBase(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// CreateProduct godoc
// @ID          createProduct
// @Summary     Create a product
// @Description The slug is derived from the name, with a numeric suffix when taken.
// @Description Supports idempotency via the Idempotency-Key header (same key → same product).
// @Tags        Products
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string                 false  "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    services.ProductInput  true   "Product payload (group is a group slug)"
//
// @Success     201  {object}  services.ProjectedProduct
// @Success     200  {object}  services.ProjectedProduct  "Replayed"
// @Header      200  {string}  Idempotency-Replayed  "true when served from a previous request"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     403  {object}  handlers.ErrorResponse  "Staff only"
// @Router      /products [post]
func (h *Handlers) CreateProduct(c *gin.Context) {
	ctx := c.Request.Context()
	pr := principal(c)

	var in services.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	in.Group = utils.CleanSlug(in.Group)

	if ref, found := h.priorResult(c); found {
		if p, err := h.catalog.GetProduct(ctx, pr, ref, h.mediaBase(c)); err == nil {
			markReplayed(c)
			ok(c, http.StatusOK, p)
			return
		}
	}

	slug, err := h.catalog.CreateProduct(ctx, pr, in)
	if err != nil {
		writeError(c, err)
		return
	}
	h.rememberResult(c, slug, http.StatusCreated)

	p, err := h.catalog.GetProduct(ctx, pr, slug, h.mediaBase(c))
	if err != nil {
		writeError(c, err)
		return
	}
	created(c, slug, p)
}

// UpdateProduct godoc
// @ID          updateProduct
// @Summary     Update a product
// @Description Only the supplied fields change; the slug is kept. Moving to another group is allowed.
// @Tags        Products
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       slug  path  string                 true  "Product slug"
// @Param       body  body  services.ProductPatch  true  "Fields to change"
// @Success     200  {object}  services.ProjectedProduct
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse  "Staff only"
// @Failure     404  {object}  handlers.ErrorResponse  "Product not found"
// @Router      /products/{slug} [put]
func (h *Handlers) UpdateProduct(c *gin.Context) {
	ctx := c.Request.Context()
	slug := utils.CleanSlug(c.Param("slug"))

	var patch services.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if patch.Group != nil {
		g := utils.CleanSlug(*patch.Group)
		patch.Group = &g
	}
	if err := h.catalog.UpdateProduct(ctx, principal(c), slug, patch); err != nil {
		writeError(c, err)
		return
	}
	p, err := h.catalog.GetProduct(ctx, principal(c), slug, h.mediaBase(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// DeleteProduct godoc
// @ID          deleteProduct
// @Summary     Delete a product
// @Tags        Products
// @Security    BearerAuth
// @Param       slug  path  string  true  "Product slug"
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Staff only"
// @Failure     404  {object}  handlers.ErrorResponse  "Product not found"
// @Router      /products/{slug} [delete]
func (h *Handlers) DeleteProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), principal(c), utils.CleanSlug(c.Param("slug"))); err != nil {
		writeError(c, err)
		return
	}
	noContent(c)
}

// ImageResponse is an image as returned by the image endpoint.
type ImageResponse struct {
	ID        uint    `json:"id"`
	Image     *string `json:"image"`
	IsPrimary bool    `json:"is_primary"`
}

// AddImage godoc
// @ID          addProductImage
// @Summary     Attach an image to a product
// @Description A primary image replaces the product's previous primary image.
// @Tags        Products
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       slug  path  string               true  "Product slug"
// @Param       body  body  services.ImageInput  true  "Relative media path"
// @Success     201  {object}  handlers.ImageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse  "Staff only"
// @Failure     404  {object}  handlers.ErrorResponse  "Product not found"
// @Router      /products/{slug}/images [post]
func (h *Handlers) AddImage(c *gin.Context) {
	var in services.ImageInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	img, err := h.catalog.AddImage(c.Request.Context(), principal(c), utils.CleanSlug(c.Param("slug")), in)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, ImageResponse{
		ID:        img.ID,
		Image:     services.MediaURL(h.mediaBase(c), img.Path),
		IsPrimary: img.IsPrimary,
	})
}

// GetAttributes godoc
// @ID          getProductAttributes
// @Summary     Product attributes
// @Tags        Products
// @Produce     json
// @Param       slug  path  string  true  "Product slug"
// @Success     200  {object}  map[string]string
// @Failure     404  {object}  handlers.ErrorResponse  "Product not found"
// @Router      /products/{slug}/attributes [get]
func (h *Handlers) GetAttributes(c *gin.Context) {
	attrs, err := h.catalog.ProductAttributes(c.Request.Context(), utils.CleanSlug(c.Param("slug")))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, attrs)
}

// SetAttributes godoc
// @ID          setProductAttributes
// @Summary     Set product attributes
// @Description Upserts each key → value pair. Keys not mentioned are left untouched.
// @Tags        Products
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       slug  path  string             true  "Product slug"
// @Param       body  body  map[string]string  true  "Attributes"
// @Success     200  {object}  map[string]string
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse  "Staff only"
// @Failure     404  {object}  handlers.ErrorResponse  "Product not found"
// @Router      /products/{slug}/attributes [put]
func (h *Handlers) SetAttributes(c *gin.Context) {
	var in map[string]string
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body must be a JSON object of strings")
		return
	}
	attrs, err := h.catalog.SetAttributes(c.Request.Context(), principal(c), utils.CleanSlug(c.Param("slug")), in)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, attrs)
}

// Like godoc
// @ID          likeProduct
// @Summary     Like a product
// @Description Idempotent: liking twice keeps a single like.
// @Tags        Products
// @Security    BearerAuth
// @Param       slug  path  string  true  "Product slug"
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     404  {object}  handlers.ErrorResponse  "Product not found"
// @Router      /products/{slug}/like [post]
func (h *Handlers) Like(c *gin.Context) {
	if err := h.catalog.Like(c.Request.Context(), principal(c), utils.CleanSlug(c.Param("slug"))); err != nil {
		writeError(c, err)
		return
	}
	noContent(c)
}

// Unlike godoc
// @ID          unlikeProduct
// @Summary     Remove a like
// @Tags        Products
// @Security    BearerAuth
// @Param       slug  path  string  true  "Product slug"
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     404  {object}  handlers.ErrorResponse  "Product not found"
// @Router      /products/{slug}/like [delete]
func (h *Handlers) Unlike(c *gin.Context) {
	if err := h.catalog.Unlike(c.Request.Context(), principal(c), utils.CleanSlug(c.Param("slug"))); err != nil {
		writeError(c, err)
		return
	}
	noContent(c)
}
