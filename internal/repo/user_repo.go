// Package repo implements the data persistence layer for catalog entities,
// backed by GORM. This file provides repository functions for user accounts
// and revoked access tokens.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-catalog-backend/internal/domain"
)

// CreateUser inserts u. A taken username or email yields ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	return mapDuplicate(db.WithContext(ctx).Create(u).Error)
}

// GetUserByUsername fetches a user or ErrNotFound.
func GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("username = ?", username).Take(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByID fetches a user or ErrNotFound.
func GetUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UsernameExists reports whether username is taken.
func UsernameExists(ctx context.Context, db *gorm.DB, username string) (bool, error) {
	return exists(ctx, db, &domain.User{}, "username = ?", username)
}

// EmailExists reports whether email is taken. Emails compare case-insensitively.
func EmailExists(ctx context.Context, db *gorm.DB, email string) (bool, error) {
	return exists(ctx, db, &domain.User{}, "LOWER(email) = LOWER(?)", email)
}

// RevokeToken stores the token ID so later lookups reject it. Revoking the
// same ID twice is a no-op.
func RevokeToken(ctx context.Context, db *gorm.DB, jti, userID string, expiresAt time.Time) error {
	rec := domain.RevokedToken{
		JTI:       jti,
		UserID:    userID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
}

// IsTokenRevoked reports whether jti was revoked.
func IsTokenRevoked(ctx context.Context, db *gorm.DB, jti string) (bool, error) {
	return exists(ctx, db, &domain.RevokedToken{}, "jti = ?", jti)
}

// PurgeRevokedTokens deletes revocations whose token has expired anyway and
// returns how many rows were removed.
func PurgeRevokedTokens(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&domain.RevokedToken{})
	return res.RowsAffected, res.Error
}
