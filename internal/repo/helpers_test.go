package repo

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-catalog-backend/internal/domain"
)

// newTestDB opens a unique in-memory database per test with foreign keys on.
// With no models given the full schema is migrated.
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) == 0 {
		err = AutoMigrate(db)
	} else {
		err = db.AutoMigrate(migrate...)
	}
	if err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	return db
}

type fixture struct {
	phones, laptops   *domain.Category
	android, iphone   *domain.Group
	ultrabook         *domain.Group
	pixel, galaxy     *domain.Product
	iphone15, zenbook *domain.Product
	alice, bob        *domain.User
}

// seedCatalog builds two categories, three groups and four products.
func seedCatalog(t *testing.T, db *gorm.DB) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture

	mustCat := func(title, slug string) *domain.Category {
		c := &domain.Category{Title: title, Slug: slug}
		if err := CreateCategory(ctx, db, c); err != nil {
			t.Fatalf("seed category %s: %v", slug, err)
		}
		return c
	}
	mustGroup := func(name, slug string, cat *domain.Category) *domain.Group {
		g := &domain.Group{Name: name, Slug: slug, CategoryID: cat.ID}
		if err := CreateGroup(ctx, db, g); err != nil {
			t.Fatalf("seed group %s: %v", slug, err)
		}
		return g
	}
	mustProduct := func(name, slug string, g *domain.Group, price float64) *domain.Product {
		p := &domain.Product{Name: name, Slug: slug, GroupID: g.ID, Price: price}
		if err := CreateProduct(ctx, db, p); err != nil {
			t.Fatalf("seed product %s: %v", slug, err)
		}
		return p
	}
	mustUser := func(name string) *domain.User {
		u := &domain.User{ID: uuid.NewString(), Username: name, Email: name + "@example.com", PasswordHash: "x"}
		if err := CreateUser(ctx, db, u); err != nil {
			t.Fatalf("seed user %s: %v", name, err)
		}
		return u
	}

	f.phones = mustCat("Phones", "phones")
	f.laptops = mustCat("Laptops", "laptops")
	f.android = mustGroup("Android", "android", f.phones)
	f.iphone = mustGroup("iPhone", "iphone", f.phones)
	f.ultrabook = mustGroup("Ultrabook", "ultrabook", f.laptops)
	f.pixel = mustProduct("Pixel 8", "pixel-8", f.android, 699)
	f.galaxy = mustProduct("Galaxy S24", "galaxy-s24", f.android, 799)
	f.iphone15 = mustProduct("iPhone 15", "iphone-15", f.iphone, 899)
	f.zenbook = mustProduct("Zenbook 14", "zenbook-14", f.ultrabook, 1099)
	f.alice = mustUser("alice")
	f.bob = mustUser("bob")
	return f
}

func slugsOf(ps []domain.Product) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Slug)
	}
	return out
}
