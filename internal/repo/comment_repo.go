package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-catalog-backend/internal/domain"
)

// CreateComment inserts c. ProductID and UserID must reference existing rows.
func CreateComment(ctx context.Context, db *gorm.DB, c *domain.Comment) error {
	return db.WithContext(ctx).Omit("User").Create(c).Error
}

// ListComments returns a product's comments, oldest first.
func ListComments(ctx context.Context, db *gorm.DB, productID uint) ([]domain.Comment, error) {
	var out []domain.Comment
	err := db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// GetComment fetches one comment or ErrNotFound.
func GetComment(ctx context.Context, db *gorm.DB, id uint) (*domain.Comment, error) {
	var c domain.Comment
	if err := db.WithContext(ctx).Take(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteComment removes one comment or returns ErrNotFound.
func DeleteComment(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.Comment{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
