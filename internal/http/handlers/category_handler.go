// Category and group HTTP handlers.
//
// This file exposes REST endpoints for the catalog tree:
//   - GET    /categories                    (list)
//   - POST   /categories                    (create, staff)
//   - GET    /categories/{slug}             (detail)
//   - PUT    /categories/{slug}             (update, staff)
//   - DELETE /categories/{slug}             (delete, staff)
//   - GET    /groups, /categories/{slug}/groups
//   - POST   /groups                        (create, staff)
//   - DELETE /groups/{slug}                 (delete, staff)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-catalog-backend/internal/services"
	"github.com/tbourn/go-catalog-backend/internal/utils"
)

// ListCategories godoc
// @ID          listCategories
// @Summary     List categories
// @Tags        Categories
// @Produce     json
// @Success     200  {array}   services.CategoryView
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /categories [get]
func (h *Handlers) ListCategories(c *gin.Context) {
	cats, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]services.CategoryView, 0, len(cats))
	for _, cat := range cats {
		out = append(out, services.ProjectCategory(cat, h.mediaBase(c)))
	}
	ok(c, http.StatusOK, out)
}

// GetCategory godoc
// @ID          getCategory
// @Summary     Get a category
// @Tags        Categories
// @Produce     json
// @Param       slug  path  string  true  "Category slug"  example(phones)
// @Success     200  {object}  services.CategoryView
// @Failure     404  {object}  handlers.ErrorResponse  "Category not found"
// @Router      /categories/{slug} [get]
func (h *Handlers) GetCategory(c *gin.Context) {
	cat, err := h.catalog.GetCategory(c.Request.Context(), utils.CleanSlug(c.Param("slug")))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, services.ProjectCategory(*cat, h.mediaBase(c)))
}

// CreateCategory godoc
// @ID          createCategory
// @Summary     Create a category
// @Description The slug is derived from the title and never changes afterwards.
// @Tags        Categories
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  services.CategoryInput  true  "Category payload"
// @Success     201  {object}  services.CategoryView
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     403  {object}  handlers.ErrorResponse  "Staff only"
// @Router      /categories [post]
func (h *Handlers) CreateCategory(c *gin.Context) {
	var in services.CategoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	cat, err := h.catalog.CreateCategory(c.Request.Context(), principal(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	created(c, cat.Slug, services.ProjectCategory(*cat, h.mediaBase(c)))
}

// UpdateCategory godoc
// @ID          updateCategory
// @Summary     Update a category
// @Description Changes title and image; the slug is kept.
// @Tags        Categories
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       slug  path  string                  true  "Category slug"
// @Param       body  body  services.CategoryInput  true  "Category payload"
// @Success     200  {object}  services.CategoryView
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse  "Staff only"
// @Failure     404  {object}  handlers.ErrorResponse  "Category not found"
// @Router      /categories/{slug} [put]
func (h *Handlers) UpdateCategory(c *gin.Context) {
	var in services.CategoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	cat, err := h.catalog.UpdateCategory(c.Request.Context(), principal(c), utils.CleanSlug(c.Param("slug")), in)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, services.ProjectCategory(*cat, h.mediaBase(c)))
}

// DeleteCategory godoc
// @ID          deleteCategory
// @Summary     Delete a category
// @Description Cascades to its groups and their products.
// @Tags        Categories
// @Security    BearerAuth
// @Param       slug  path  string  true  "Category slug"
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Staff only"
// @Failure     404  {object}  handlers.ErrorResponse  "Category not found"
// @Router      /categories/{slug} [delete]
func (h *Handlers) DeleteCategory(c *gin.Context) {
	if err := h.catalog.DeleteCategory(c.Request.Context(), principal(c), utils.CleanSlug(c.Param("slug"))); err != nil {
		writeError(c, err)
		return
	}
	noContent(c)
}

// ListGroups godoc
// @ID          listGroups
// @Summary     List groups
// @Description Lists every group, or the groups of one category when mounted under /categories/{slug}.
// @Tags        Groups
// @Produce     json
// @Param       slug  path  string  false  "Category slug"
// @Success     200  {array}   services.GroupView
// @Failure     404  {object}  handlers.ErrorResponse  "Category not found"
// @Router      /groups [get]
// @Router      /categories/{slug}/groups [get]
func (h *Handlers) ListGroups(c *gin.Context) {
	groups, err := h.catalog.ListGroups(c.Request.Context(), utils.CleanSlug(c.Param("slug")))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]services.GroupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, services.ProjectGroup(g, h.mediaBase(c)))
	}
	ok(c, http.StatusOK, out)
}

// CreateGroup godoc
// @ID          createGroup
// @Summary     Create a group
// @Tags        Groups
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  services.GroupInput  true  "Group payload (category is a category slug)"
// @Success     201  {object}  services.GroupView
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse  "Staff only"
// @Router      /groups [post]
func (h *Handlers) CreateGroup(c *gin.Context) {
	var in services.GroupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	in.Category = utils.CleanSlug(in.Category)
	g, err := h.catalog.CreateGroup(c.Request.Context(), principal(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, services.ProjectGroup(*g, h.mediaBase(c)))
}

// DeleteGroup godoc
// @ID          deleteGroup
// @Summary     Delete a group
// @Description Cascades to its products.
// @Tags        Groups
// @Security    BearerAuth
// @Param       slug  path  string  true  "Group slug"
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Staff only"
// @Failure     404  {object}  handlers.ErrorResponse  "Group not found"
// @Router      /groups/{slug} [delete]
func (h *Handlers) DeleteGroup(c *gin.Context) {
	if err := h.catalog.DeleteGroup(c.Request.Context(), principal(c), utils.CleanSlug(c.Param("slug"))); err != nil {
		writeError(c, err)
		return
	}
	noContent(c)
}
