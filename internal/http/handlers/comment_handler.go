// Comment HTTP handlers.
//
// Endpoints:
//   - GET    /products/{slug}/comments   (list)
//   - POST   /products/{slug}/comments   (create, authenticated, idempotent)
//   - DELETE /comments/{id}              (author or staff)
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-catalog-backend/internal/services"
	"github.com/tbourn/go-catalog-backend/internal/utils"
)

// ListComments godoc
// @ID          listComments
// @Summary     List a product's comments
// @Tags        Comments
// @Produce     json
// @Param       slug  path  string  true  "Product slug"
// @Success     200  {array}   services.CommentView
// @Failure     404  {object}  handlers.ErrorResponse  "Product not found"
// @Router      /products/{slug}/comments [get]
func (h *Handlers) ListComments(c *gin.Context) {
	items, err := h.catalog.ListComments(c.Request.Context(), utils.CleanSlug(c.Param("slug")))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]services.CommentView, 0, len(items))
	for _, cm := range items {
		out = append(out, services.ViewComment(cm))
	}
	ok(c, http.StatusOK, out)
}

// CreateComment godoc
// @ID          createComment
// @Summary     Comment on a product
// @Description Rating must be an integer in 0..5. Supports idempotency via the Idempotency-Key header.
// @Tags        Comments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string                 false  "Idempotency key for safe retries"
// @Param       slug             path    string                 true   "Product slug"
// @Param       body             body    services.CommentInput  true   "Comment payload"
//
// @Success     201  {object}  services.CommentView
// @Success     200  {object}  services.CommentView  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     404  {object}  handlers.ErrorResponse  "Product not found"
// @Router      /products/{slug}/comments [post]
func (h *Handlers) CreateComment(c *gin.Context) {
	ctx := c.Request.Context()

	var in services.CommentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	if ref, found := h.priorResult(c); found {
		if id, valid := utils.ParseID(ref); valid {
			if prev, err := h.catalog.GetComment(ctx, id); err == nil {
				markReplayed(c)
				ok(c, http.StatusOK, services.ViewComment(*prev))
				return
			}
		}
	}

	cm, err := h.catalog.CreateComment(ctx, principal(c), utils.CleanSlug(c.Param("slug")), in)
	if err != nil {
		writeError(c, err)
		return
	}
	h.rememberResult(c, strconv.FormatUint(uint64(cm.ID), 10), http.StatusCreated)
	ok(c, http.StatusCreated, services.ViewComment(*cm))
}

// DeleteComment godoc
// @ID          deleteComment
// @Summary     Delete a comment
// @Description Allowed for the comment's author and for staff.
// @Tags        Comments
// @Security    BearerAuth
// @Param       id  path  int  true  "Comment ID"  minimum(1)
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad comment id"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the author"
// @Failure     404  {object}  handlers.ErrorResponse  "Comment not found"
// @Router      /comments/{id} [delete]
func (h *Handlers) DeleteComment(c *gin.Context) {
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "comment id must be a positive integer")
		return
	}
	if err := h.catalog.DeleteComment(c.Request.Context(), principal(c), id); err != nil {
		writeError(c, err)
		return
	}
	noContent(c)
}
