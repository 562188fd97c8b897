// Package repo implements the data persistence layer for catalog entities,
// backed by GORM. This file provides the product query builder and the
// product write helpers.
//
// Read shape:
//
//	SELECT products.*, COALESCE((SELECT AVG(rating) ...), 0) AS avg_rating
//	FROM products
//	[JOIN product_groups ...] [JOIN categories ...]
//	WHERE <filters>
//
// followed by one batched IN (...) query per association (primary images,
// comments, likes) for the whole result, regardless of its size.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-catalog-backend/internal/domain"
)

// ProductFilter narrows product listings. Empty fields do not filter; when
// both are set they are ANDed, so a group outside the category matches
// nothing.
type ProductFilter struct {
	CategorySlug string
	GroupSlug    string
}

const avgRatingSelect = "COALESCE((SELECT AVG(CAST(comments.rating AS DOUBLE PRECISION)) " +
	"FROM comments WHERE comments.product_id = products.id), 0) AS avg_rating"

// apply adds the joins and predicates for f to q.
func (f ProductFilter) apply(q *gorm.DB) *gorm.DB {
	if f.CategorySlug == "" && f.GroupSlug == "" {
		return q
	}
	q = q.Joins("JOIN product_groups ON product_groups.id = products.group_id")
	if f.GroupSlug != "" {
		q = q.Where("product_groups.slug = ?", f.GroupSlug)
	}
	if f.CategorySlug != "" {
		q = q.Joins("JOIN categories ON categories.id = product_groups.category_id").
			Where("categories.slug = ?", f.CategorySlug)
	}
	return q
}

// productRows is the shared read shape of ListProducts and GetProductBySlug.
func productRows(ctx context.Context, db *gorm.DB) *gorm.DB {
	return db.WithContext(ctx).
		Model(&domain.Product{}).
		Select("products.*, "+avgRatingSelect).
		Preload("Images", "is_primary = ?", true).
		Preload("Comments", func(tx *gorm.DB) *gorm.DB { return tx.Order("comments.id ASC") }).
		Preload("Likes")
}

// ListProducts returns the products matching f, ordered by ID, with
// AvgRating filled and primary images, comments and likes preloaded.
func ListProducts(ctx context.Context, db *gorm.DB, f ProductFilter) ([]domain.Product, error) {
	var out []domain.Product
	err := f.apply(productRows(ctx, db)).Order("products.id ASC").Find(&out).Error
	return out, err
}

// GetProductBySlug returns one product in the ListProducts shape, or
// ErrNotFound.
func GetProductBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Product, error) {
	var p domain.Product
	if err := productRows(ctx, db).Where("products.slug = ?", slug).Take(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProductForWrite returns the bare product row with its group and
// category loaded (needed to compute affected cache keys), or ErrNotFound.
func GetProductForWrite(ctx context.Context, db *gorm.DB, slug string) (*domain.Product, error) {
	return productForWrite(ctx, db, "slug = ?", slug)
}

// GetProductForWriteByID is GetProductForWrite keyed by ID.
func GetProductForWriteByID(ctx context.Context, db *gorm.DB, id uint) (*domain.Product, error) {
	return productForWrite(ctx, db, "id = ?", id)
}

func productForWrite(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).
		Preload("Group.Category").
		Where(where, arg).
		Take(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ProductSlugExists reports whether slug is taken by a product.
func ProductSlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	return exists(ctx, db, &domain.Product{}, "slug = ?", slug)
}

// CreateProduct inserts p. The slug and GroupID must already be set.
func CreateProduct(ctx context.Context, db *gorm.DB, p *domain.Product) error {
	return mapDuplicate(db.WithContext(ctx).Omit("Group").Create(p).Error)
}

// UpdateProduct applies fields to the product with the given ID. Keys are
// column names. The slug column is never touched.
func UpdateProduct(ctx context.Context, db *gorm.DB, id uint, fields map[string]any) error {
	delete(fields, "slug")
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.Product{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchProduct bumps updated_at so list ETags change when comments or likes
// change.
func TouchProduct(ctx context.Context, db *gorm.DB, id uint) error {
	return db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC()).Error
}

// DeleteProduct removes the product; images, comments, attributes and likes
// go with it through the foreign key cascades.
func DeleteProduct(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.Product{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
