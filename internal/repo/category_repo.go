// Package repo implements the data persistence layer for catalog entities,
// backed by GORM. This file provides repository functions for the Category
// and Group models.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic (slugs are computed by the caller), only
// persistence and query composition.
//
// Error semantics:
//   - Missing rows yield ErrNotFound.
//   - Unique violations (title, name, slug) yield ErrDuplicate.
//   - Other DB errors are propagated as is.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-catalog-backend/internal/domain"
)

// ListCategories returns every category ordered by ID.
func ListCategories(ctx context.Context, db *gorm.DB) ([]domain.Category, error) {
	var out []domain.Category
	err := db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, err
}

// GetCategoryBySlug fetches one category or ErrNotFound.
func GetCategoryBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Category, error) {
	var c domain.Category
	if err := db.WithContext(ctx).Where("slug = ?", slug).Take(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CategorySlugExists reports whether slug is taken by a category.
func CategorySlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	return exists(ctx, db, &domain.Category{}, "slug = ?", slug)
}

// CreateCategory inserts c. The slug must already be set.
func CreateCategory(ctx context.Context, db *gorm.DB, c *domain.Category) error {
	return mapDuplicate(db.WithContext(ctx).Create(c).Error)
}

// UpdateCategory changes the title and image of the category identified by
// slug. The slug itself is never rewritten.
func UpdateCategory(ctx context.Context, db *gorm.DB, slug, title, image string) error {
	res := db.WithContext(ctx).
		Model(&domain.Category{}).
		Where("slug = ?", slug).
		Updates(map[string]any{"title": title, "image": image})
	if res.Error != nil {
		return mapDuplicate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCategory removes the category; its groups and their products go with
// it through the foreign key cascades.
func DeleteCategory(ctx context.Context, db *gorm.DB, slug string) error {
	res := db.WithContext(ctx).Where("slug = ?", slug).Delete(&domain.Category{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGroups returns groups ordered by ID, restricted to one category when
// categorySlug is non-empty. An unknown category yields an empty slice.
func ListGroups(ctx context.Context, db *gorm.DB, categorySlug string) ([]domain.Group, error) {
	q := db.WithContext(ctx).Model(&domain.Group{})
	if categorySlug != "" {
		q = q.Joins("JOIN categories ON categories.id = product_groups.category_id").
			Where("categories.slug = ?", categorySlug)
	}
	var out []domain.Group
	err := q.Order("product_groups.id ASC").Find(&out).Error
	return out, err
}

// GetGroupBySlug fetches one group (with its category) or ErrNotFound.
func GetGroupBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Group, error) {
	var g domain.Group
	if err := db.WithContext(ctx).Preload("Category").Where("slug = ?", slug).Take(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// GroupSlugExists reports whether slug is taken by a group.
func GroupSlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	return exists(ctx, db, &domain.Group{}, "slug = ?", slug)
}

// CreateGroup inserts g. The slug and CategoryID must already be set.
func CreateGroup(ctx context.Context, db *gorm.DB, g *domain.Group) error {
	return mapDuplicate(db.WithContext(ctx).Omit("Category").Create(g).Error)
}

// DeleteGroup removes the group and, by cascade, its products.
func DeleteGroup(ctx context.Context, db *gorm.DB, slug string) error {
	res := db.WithContext(ctx).Where("slug = ?", slug).Delete(&domain.Group{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func exists(ctx context.Context, db *gorm.DB, model any, where string, args ...any) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Model(model).Where(where, args...).Limit(1).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
