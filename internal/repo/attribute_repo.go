package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-catalog-backend/internal/domain"
)

// GetOrCreateAttributeKey returns the key row named key, inserting it first
// when missing.
func GetOrCreateAttributeKey(ctx context.Context, db *gorm.DB, key string) (*domain.AttributeKey, error) {
	k := domain.AttributeKey{Key: key}
	if err := db.WithContext(ctx).Where(domain.AttributeKey{Key: key}).FirstOrCreate(&k).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

// GetOrCreateAttributeValue returns the value row named value, inserting it
// first when missing.
func GetOrCreateAttributeValue(ctx context.Context, db *gorm.DB, value string) (*domain.AttributeValue, error) {
	v := domain.AttributeValue{Value: value}
	if err := db.WithContext(ctx).Where(domain.AttributeValue{Value: value}).FirstOrCreate(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// SetProductAttribute binds key=value on the product. A product keeps one
// value per key: setting an existing key replaces its value.
func SetProductAttribute(ctx context.Context, db *gorm.DB, productID uint, key, value string) error {
	k, err := GetOrCreateAttributeKey(ctx, db, key)
	if err != nil {
		return err
	}
	v, err := GetOrCreateAttributeValue(ctx, db, value)
	if err != nil {
		return err
	}
	pa := domain.ProductAttribute{ProductID: productID, KeyID: k.ID, ValueID: v.ID}
	return db.WithContext(ctx).
		Omit("Key", "Value").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}, {Name: "key_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value_id"}),
		}).
		Create(&pa).Error
}

// ListProductAttributes returns the product's attributes with key and value
// preloaded, in insertion order.
func ListProductAttributes(ctx context.Context, db *gorm.DB, productID uint) ([]domain.ProductAttribute, error) {
	var out []domain.ProductAttribute
	err := db.WithContext(ctx).
		Preload("Key").
		Preload("Value").
		Where("product_id = ?", productID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}
