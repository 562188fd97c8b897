package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-catalog-backend/internal/cache"
	"github.com/tbourn/go-catalog-backend/internal/domain"
	"github.com/tbourn/go-catalog-backend/internal/events"
	"github.com/tbourn/go-catalog-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	return db
}

// spyCache wraps a Cache and records traffic.
type spyCache struct {
	cache.Cache
	mu      sync.Mutex
	gets    int
	sets    int
	deleted []string
	failGet error
}

func (s *spyCache) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	s.gets++
	fail := s.failGet
	s.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return s.Cache.Get(ctx, key)
}

func (s *spyCache) Set(ctx context.Context, key string, v []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.sets++
	s.mu.Unlock()
	return s.Cache.Set(ctx, key, v, ttl)
}

func (s *spyCache) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, keys...)
	s.mu.Unlock()
	return s.Cache.Delete(ctx, keys...)
}

// spyPublisher collects published invalidations.
type spyPublisher struct {
	mu   sync.Mutex
	sent []events.Invalidation
	err  error
}

func (p *spyPublisher) Publish(_ context.Context, inv events.Invalidation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, inv)
	return p.err
}

var errCacheDown = errors.New("cache down")

// catalogEnv bundles a service over a fresh database with a seeded catalog.
type catalogEnv struct {
	db    *gorm.DB
	svc   *CatalogService
	cache *spyCache
	pub   *spyPublisher
	clock *time.Time

	staff, alice, bob Principal
}

func newCatalogEnv(t *testing.T) *catalogEnv {
	t.Helper()
	db := newTestDB(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	env := &catalogEnv{db: db, clock: &now, pub: &spyPublisher{}}
	env.cache = &spyCache{Cache: cache.NewMemoryWithClock(func() time.Time { return *env.clock })}
	env.svc = NewCatalogService(db, env.cache, env.pub)

	env.staff = mustUser(t, db, "admin", true)
	env.alice = mustUser(t, db, "alice", false)
	env.bob = mustUser(t, db, "bob", false)
	return env
}

func (e *catalogEnv) advance(d time.Duration) { *e.clock = e.clock.Add(d) }

func mustUser(t *testing.T, db *gorm.DB, name string, staff bool) Principal {
	t.Helper()
	u := &domain.User{ID: uuid.NewString(), Username: name, Email: name + "@example.com", PasswordHash: "x", IsStaff: staff}
	require.NoError(t, repo.CreateUser(context.Background(), db, u))
	return Principal{UserID: u.ID, Username: u.Username, IsStaff: staff}
}

// seed creates phones/{android,iphone} and laptops/{ultrabook} with one or
// two products each, through the service.
func (e *catalogEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, title := range []string{"Phones", "Laptops"} {
		_, err := e.svc.CreateCategory(ctx, e.staff, CategoryInput{Title: title})
		require.NoError(t, err)
	}
	for _, g := range []GroupInput{
		{Name: "Android", Category: "phones"},
		{Name: "iPhone", Category: "phones"},
		{Name: "Ultrabook", Category: "laptops"},
	} {
		_, err := e.svc.CreateGroup(ctx, e.staff, g)
		require.NoError(t, err)
	}
	for _, p := range []ProductInput{
		{Name: "Pixel 8", Price: ptr(699.0), Group: "android"},
		{Name: "Galaxy S24", Price: ptr(799.0), Discount: 10, Group: "android"},
		{Name: "iPhone 15", Price: ptr(899.0), Group: "iphone"},
		{Name: "Zenbook 14", Price: ptr(1099.0), Group: "ultrabook"},
	} {
		_, err := e.svc.CreateProduct(ctx, e.staff, p)
		require.NoError(t, err)
	}
}

func ptr[T any](v T) *T { return &v }

func slugsOf(ps []ProjectedProduct) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Slug)
	}
	return out
}
