// Auth HTTP handlers.
//
// Endpoints:
//   - POST /auth/register
//   - POST /auth/login
//   - POST /auth/refresh   (authenticated)
//   - POST /auth/logout    (authenticated)
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-catalog-backend/internal/domain"
	"github.com/tbourn/go-catalog-backend/internal/http/middleware"
	"github.com/tbourn/go-catalog-backend/internal/services"
)

//
// DTOs
//

// LoginRequest is the JSON payload for login.
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"alice"`
	Password string `json:"password" binding:"required" example:"s3cret-pass"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// RegisterResponse is returned by a successful registration.
type RegisterResponse struct {
	Success bool            `json:"success"`
	User    UserResponse    `json:"user"`
	Token   *services.Token `json:"token"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Success     bool      `json:"success"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LogoutResponse is returned by a successful logout.
type LogoutResponse struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail" example:"Logged out!"`
}

func userResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}

// Register godoc
// @ID          register
// @Summary     Create an account
// @Description Registers a user and returns an access token for it. The two passwords must match.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  services.RegisterInput  true  "Account payload"
// @Success     201  {object}  handlers.RegisterResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var in services.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	u, err := h.auth.Register(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	tok, err := h.auth.IssueToken(u)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, RegisterResponse{Success: true, User: userResponse(u), Token: tok})
}

// Login godoc
// @ID          login
// @Summary     Obtain an access token
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
// @Success     200  {object}  handlers.LoginResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid credentials"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and password required")
		return
	}
	u, err := h.auth.Authenticate(c.Request.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	tok, err := h.auth.IssueToken(u)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, LoginResponse{
		Success:     true,
		UserID:      u.ID,
		Username:    u.Username,
		Email:       u.Email,
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   tok.ExpiresAt,
	})
}

// Refresh godoc
// @ID          refreshToken
// @Summary     Rotate the access token
// @Description Revokes the presented token and returns a fresh one.
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.Token
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Router      /auth/refresh [post]
func (h *Handlers) Refresh(c *gin.Context) {
	tok, err := h.auth.Refresh(c.Request.Context(), middleware.TokenFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, tok)
}

// Logout godoc
// @ID          logout
// @Summary     Revoke the access token
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.LogoutResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.TokenFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, LogoutResponse{Success: true, Detail: "Logged out!"})
}
