// Package services – AuthService
//
// AuthService owns user accounts and access tokens. Passwords are stored as
// bcrypt hashes. Access tokens are HS256 JWTs carrying the user ID as subject
// and a random jti; logging out (or refreshing) records the jti as revoked so
// the token stops resolving to a principal before it expires.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tbourn/go-catalog-backend/internal/domain"
	"github.com/tbourn/go-catalog-backend/internal/repo"
)

// DefaultTokenTTL is the access token lifetime when none is configured.
const DefaultTokenTTL = 24 * time.Hour

// AuthService implements registration, login and token handling.
type AuthService struct {
	DB     *gorm.DB
	Secret []byte
	TTL    time.Duration
	Issuer string

	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
	// Now is the clock; nil means time.Now.
	Now func() time.Time

	validate *validator.Validate
}

// NewAuthService wires an AuthService signing tokens with secret.
func NewAuthService(db *gorm.DB, secret []byte, ttl time.Duration, issuer string) *AuthService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &AuthService{DB: db, Secret: secret, TTL: ttl, Issuer: issuer, validate: newValidator()}
}

// RegisterInput is the payload of account registration.
type RegisterInput struct {
	Username  string `json:"username"   validate:"required,max=150,username"`
	Email     string `json:"email"      validate:"required,email,max=254"`
	Password  string `json:"password"   validate:"required,min=8,max=72"`
	Password2 string `json:"password2"  validate:"required"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name"  validate:"max=150"`
}

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Register creates a regular account.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	return s.CreateUser(ctx, in, false)
}

// CreateUser creates an account, optionally with the staff flag. Duplicate
// usernames or emails and mismatched passwords are validation failures.
func (s *AuthService) CreateUser(ctx context.Context, in RegisterInput, staff bool) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "CreateUser")
	defer span.End()

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := checkStruct(s.validate, in); err != nil {
		return nil, err
	}
	if in.Password != in.Password2 {
		return nil, invalid("password", "password fields didn't match")
	}

	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: string(hash),
		IsStaff:      staff,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if taken, err := repo.UsernameExists(ctx, tx, u.Username); err != nil {
			return err
		} else if taken {
			return invalid("username", "a user with that username already exists")
		}
		if taken, err := repo.EmailExists(ctx, tx, u.Email); err != nil {
			return err
		} else if taken {
			return invalid("email", "this email is already in use")
		}
		if err := repo.CreateUser(ctx, tx, u); err != nil {
			return conflict(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return u, nil
}

// Authenticate checks username and password. Unknown users and wrong
// passwords both yield ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	u, err := repo.GetUserByUsername(ctx, s.DB, strings.TrimSpace(username))
	if isNotFound(err) {
		return nil, ErrInvalidCredentials
	} else if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Login authenticates and issues a token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Token, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Login")
	defer span.End()

	u, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.IssueToken(u)
}

// IssueToken signs a fresh access token for u.
func (s *AuthService) IssueToken(u *domain.User) (*Token, error) {
	now := s.now()
	exp := now.Add(s.TTL)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			Issuer:    s.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(s.Secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: exp.UTC()}, nil
}

// parse verifies signature, issuer and expiry.
func (s *AuthService) parse(raw string) (*claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Issuer))
	}
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return s.Secret, nil }, opts...)
	if err != nil || c.ID == "" || c.Subject == "" {
		return nil, ErrUnauthenticated
	}
	return &c, nil
}

// CurrentPrincipal resolves a bearer token. An empty token is the anonymous
// principal; a malformed, expired or revoked one is ErrUnauthenticated.
func (s *AuthService) CurrentPrincipal(ctx context.Context, raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Anonymous, nil
	}
	c, err := s.parse(raw)
	if err != nil {
		return Anonymous, err
	}
	revoked, err := repo.IsTokenRevoked(ctx, s.DB, c.ID)
	if err != nil {
		return Anonymous, err
	}
	if revoked {
		return Anonymous, ErrUnauthenticated
	}
	u, err := repo.GetUserByID(ctx, s.DB, c.Subject)
	if isNotFound(err) {
		return Anonymous, ErrUnauthenticated
	} else if err != nil {
		return Anonymous, err
	}
	return Principal{UserID: u.ID, Username: u.Username, IsStaff: u.IsStaff, TokenID: c.ID}, nil
}

// RevokeToken invalidates raw until its natural expiry. Revoking twice is a
// no-op.
func (s *AuthService) RevokeToken(ctx context.Context, raw string) error {
	c, err := s.parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	return repo.RevokeToken(ctx, s.DB, c.ID, c.Subject, c.ExpiresAt.Time)
}

// Logout revokes the token the principal authenticated with.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Logout")
	defer span.End()
	return s.RevokeToken(ctx, raw)
}

// Refresh revokes raw and issues a replacement for the same user.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*Token, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Refresh")
	defer span.End()

	pr, err := s.CurrentPrincipal(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !pr.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if err := s.RevokeToken(ctx, raw); err != nil {
		return nil, err
	}
	u, err := repo.GetUserByID(ctx, s.DB, pr.UserID)
	if err != nil {
		return nil, err
	}
	return s.IssueToken(u)
}

// PurgeRevoked drops revocation records of tokens that have expired anyway.
func (s *AuthService) PurgeRevoked(ctx context.Context) (int64, error) {
	return repo.PurgeRevokedTokens(ctx, s.DB, s.now())
}
