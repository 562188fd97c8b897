package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-catalog-backend/internal/domain"
)

// LikeProduct records that userID likes productID. Liking twice is a no-op.
func LikeProduct(ctx context.Context, db *gorm.DB, productID uint, userID string) error {
	like := domain.ProductLike{ProductID: productID, UserID: userID, CreatedAt: time.Now().UTC()}
	return db.WithContext(ctx).
		Omit("User").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&like).Error
}

// UnlikeProduct removes the like if present and reports whether a row was
// deleted.
func UnlikeProduct(ctx context.Context, db *gorm.DB, productID uint, userID string) (bool, error) {
	res := db.WithContext(ctx).
		Where("product_id = ? AND user_id = ?", productID, userID).
		Delete(&domain.ProductLike{})
	return res.RowsAffected > 0, res.Error
}
