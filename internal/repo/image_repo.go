package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-catalog-backend/internal/domain"
)

// AddImage inserts img. When img is primary, every other image of the same
// product is demoted first, so a product never has two primary images.
// Callers are expected to pass a transaction handle.
func AddImage(ctx context.Context, db *gorm.DB, img *domain.Image) error {
	if img.IsPrimary {
		err := db.WithContext(ctx).
			Model(&domain.Image{}).
			Where("product_id = ? AND is_primary = ?", img.ProductID, true).
			Update("is_primary", false).Error
		if err != nil {
			return err
		}
	}
	return db.WithContext(ctx).Create(img).Error
}

// ListImages returns all images of a product, primary first.
func ListImages(ctx context.Context, db *gorm.DB, productID uint) ([]domain.Image, error) {
	var out []domain.Image
	err := db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("is_primary DESC, id ASC").
		Find(&out).Error
	return out, err
}
