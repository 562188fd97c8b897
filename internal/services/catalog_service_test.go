package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-catalog-backend/internal/cache"
	"github.com/tbourn/go-catalog-backend/internal/domain"
	"github.com/tbourn/go-catalog-backend/internal/events"
	"github.com/tbourn/go-catalog-backend/internal/repo"
)

const media = "https://cdn.example.com/media"

func TestNewCatalogService_Defaults(t *testing.T) {
	svc := NewCatalogService(nil, nil, nil)
	assert.IsType(t, cache.Nop{}, svc.Cache)
	assert.IsType(t, events.NopPublisher{}, svc.Events)
	assert.Equal(t, DefaultListTTL, svc.ListTTL)
	assert.Equal(t, DefaultDetailTTL, svc.DetailTTL)
}

func TestCategories_SlugAssignedOnceAndDeduplicated(t *testing.T) {
	env := newCatalogEnv(t)
	ctx := context.Background()

	c1, err := env.svc.CreateCategory(ctx, env.staff, CategoryInput{Title: "Home & Garden"})
	require.NoError(t, err)
	assert.Equal(t, "home-garden", c1.Slug)

	// different title, same slug base
	c2, err := env.svc.CreateCategory(ctx, env.staff, CategoryInput{Title: "Home  Garden"})
	require.NoError(t, err)
	assert.Equal(t, "home-garden-1", c2.Slug)

	// title change keeps the slug
	up, err := env.svc.UpdateCategory(ctx, env.staff, "home-garden", CategoryInput{Title: "Outdoor", Image: "cats/o.png"})
	require.NoError(t, err)
	assert.Equal(t, "home-garden", up.Slug)
	assert.Equal(t, "Outdoor", up.Title)

	got, err := env.svc.GetCategory(ctx, "home-garden")
	require.NoError(t, err)
	assert.Equal(t, "cats/o.png", got.Image)

	list, err := env.svc.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCategories_TrailingSpaceTitleGetsNextSlug(t *testing.T) {
	env := newCatalogEnv(t)
	ctx := context.Background()

	first, err := env.svc.CreateCategory(ctx, env.staff, CategoryInput{Title: "Phones"})
	require.NoError(t, err)
	assert.Equal(t, "phones", first.Slug)

	second, err := env.svc.CreateCategory(ctx, env.staff, CategoryInput{Title: "Phones "})
	require.NoError(t, err)
	assert.Equal(t, "phones-1", second.Slug)
	assert.Equal(t, "Phones ", second.Title)
}

func TestCategories_Errors(t *testing.T) {
	env := newCatalogEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateCategory(ctx, env.alice, CategoryInput{Title: "X"})
	assert.ErrorIs(t, err, ErrPermission)

	_, err = env.svc.CreateCategory(ctx, Anonymous, CategoryInput{Title: "X"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = env.svc.CreateCategory(ctx, env.staff, CategoryInput{Title: "   "})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "title", ve.Field)

	_, err = env.svc.CreateCategory(ctx, env.staff, CategoryInput{Title: "!!!"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "title", ve.Field)

	_, err = env.svc.CreateCategory(ctx, env.staff, CategoryInput{Title: "Books"})
	require.NoError(t, err)
	_, err = env.svc.CreateCategory(ctx, env.staff, CategoryInput{Title: "Books"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.GetCategory(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.UpdateCategory(ctx, env.staff, "nope", CategoryInput{Title: "Y"})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, env.svc.DeleteCategory(ctx, env.staff, "nope"), ErrNotFound)
	assert.ErrorIs(t, env.svc.DeleteCategory(ctx, env.bob, "books"), ErrPermission)
}

func TestGroups(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()

	all, err := env.svc.ListGroups(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	phones, err := env.svc.ListGroups(ctx, "phones")
	require.NoError(t, err)
	assert.Len(t, phones, 2)

	_, err = env.svc.ListGroups(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.CreateGroup(ctx, env.staff, GroupInput{Name: "Tablets", Category: "nope"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "category", ve.Field)

	_, err = env.svc.CreateGroup(ctx, env.staff, GroupInput{Name: "Android", Category: "phones"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)

	require.NoError(t, env.svc.DeleteGroup(ctx, env.staff, "android"))
	ps, err := env.svc.ListProducts(ctx, Anonymous, repo.ProductFilter{}, media)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"iphone-15", "zenbook-14"}, slugsOf(ps))

	assert.ErrorIs(t, env.svc.DeleteGroup(ctx, env.staff, "android"), ErrNotFound)
}

func TestListProducts_Filters(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()

	tests := []struct {
		name string
		f    repo.ProductFilter
		want []string
	}{
		{"all", repo.ProductFilter{}, []string{"pixel-8", "galaxy-s24", "iphone-15", "zenbook-14"}},
		{"category", repo.ProductFilter{CategorySlug: "phones"}, []string{"pixel-8", "galaxy-s24", "iphone-15"}},
		{"group", repo.ProductFilter{GroupSlug: "android"}, []string{"pixel-8", "galaxy-s24"}},
		{"both", repo.ProductFilter{CategorySlug: "phones", GroupSlug: "iphone"}, []string{"iphone-15"}},
		{"group outside category", repo.ProductFilter{CategorySlug: "laptops", GroupSlug: "android"}, []string{}},
		{"unknown category", repo.ProductFilter{CategorySlug: "nope"}, []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := env.svc.ListProducts(ctx, Anonymous, tc.f, media)
			require.NoError(t, err)
			assert.Equal(t, tc.want, slugsOf(got))
		})
	}
}

func TestProducts_SlugDedupAndPatch(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()

	s, err := env.svc.CreateProduct(ctx, env.staff, ProductInput{Name: "Pixel 8", Price: ptr(1.0), Group: "android"})
	require.NoError(t, err)
	assert.Equal(t, "pixel-8-1", s)

	s2, err := env.svc.CreateProduct(ctx, env.staff, ProductInput{Name: "Pixel 8", Price: ptr(1.0), Group: "android"})
	require.NoError(t, err)
	assert.Equal(t, "pixel-8-2", s2)

	require.NoError(t, env.svc.UpdateProduct(ctx, env.staff, "pixel-8-1", ProductPatch{
		Name:     ptr("Pixel 8 Pro"),
		Discount: ptr(25.0),
	}))
	p, err := env.svc.GetProduct(ctx, Anonymous, "pixel-8-1", media)
	require.NoError(t, err)
	assert.Equal(t, "Pixel 8 Pro", p.Name)
	assert.Equal(t, "pixel-8-1", p.Slug)
	assert.InDelta(t, 0.75, p.DiscountedPrice, 1e-9)
	assert.InDelta(t, 1.0, p.Price, 1e-9)
}

func TestProducts_WriteErrors(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()
	var ve *ValidationError

	_, err := env.svc.CreateProduct(ctx, env.alice, ProductInput{Name: "X", Price: ptr(1.0), Group: "android"})
	assert.ErrorIs(t, err, ErrPermission)

	_, err = env.svc.CreateProduct(ctx, env.staff, ProductInput{Name: "X", Group: "android"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "price", ve.Field)

	_, err = env.svc.CreateProduct(ctx, env.staff, ProductInput{Name: "X", Price: ptr(-1.0), Group: "android"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "price", ve.Field)

	_, err = env.svc.CreateProduct(ctx, env.staff, ProductInput{Name: "X", Price: ptr(1.0), Discount: 101, Group: "android"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "discount", ve.Field)

	_, err = env.svc.CreateProduct(ctx, env.staff, ProductInput{Name: "X", Price: ptr(1.0), Group: "nope"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "group", ve.Field)

	assert.ErrorIs(t, env.svc.UpdateProduct(ctx, env.staff, "nope", ProductPatch{Name: ptr("Y")}), ErrNotFound)
	assert.ErrorIs(t, env.svc.UpdateProduct(ctx, env.staff, "pixel-8", ProductPatch{Group: ptr("nope")}), ErrValidation)
	assert.ErrorIs(t, env.svc.UpdateProduct(ctx, env.staff, "pixel-8", ProductPatch{Name: ptr("  ")}), ErrValidation)
	assert.ErrorIs(t, env.svc.DeleteProduct(ctx, env.staff, "nope"), ErrNotFound)
	assert.ErrorIs(t, env.svc.DeleteProduct(ctx, env.bob, "pixel-8"), ErrPermission)

	_, err = env.svc.GetProduct(ctx, Anonymous, "nope", media)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListProducts_ServedFromCacheUntilWrite(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()
	f := repo.ProductFilter{CategorySlug: "phones"}

	first, err := env.svc.ListProducts(ctx, Anonymous, f, media)
	require.NoError(t, err)
	require.Len(t, first, 3)
	sets := env.cache.sets

	// a write that bypasses the service is not visible while cached
	require.NoError(t, env.db.Model(&domain.Product{}).Where("slug = ?", "pixel-8").Update("name", "Renamed").Error)
	second, err := env.svc.ListProducts(ctx, Anonymous, f, media)
	require.NoError(t, err)
	assert.Equal(t, "Pixel 8", second[0].Name)
	assert.Equal(t, sets, env.cache.sets, "hit must not repopulate")

	// a service write on a product of the category invalidates
	require.NoError(t, env.svc.UpdateProduct(ctx, env.staff, "galaxy-s24", ProductPatch{Price: ptr(700.0)}))
	third, err := env.svc.ListProducts(ctx, Anonymous, f, media)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", third[0].Name)
	assert.InDelta(t, 700.0, third[1].Price, 1e-9)
}

func TestListProducts_EmptyFilteredResultsNotCached(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()
	before := env.cache.sets

	for i := 0; i < 50; i++ {
		got, err := env.svc.ListProducts(ctx, Anonymous, repo.ProductFilter{CategorySlug: fmt.Sprintf("junk-%d", i)}, media)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	got, err := env.svc.ListProducts(ctx, Anonymous, repo.ProductFilter{CategorySlug: "laptops", GroupSlug: "android"}, media)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, before, env.cache.sets)
	_, err = env.cache.Cache.Get(ctx, cache.ListKey("junk-0", ""))
	require.ErrorIs(t, err, cache.ErrMiss)

	// an empty catalog still caches the unfiltered list
	empty := newCatalogEnv(t)
	emptyBefore := empty.cache.sets
	_, err = empty.svc.ListProducts(ctx, Anonymous, repo.ProductFilter{}, media)
	require.NoError(t, err)
	assert.Equal(t, emptyBefore+1, empty.cache.sets)

	// non-empty filtered lists are still cached
	_, err = env.svc.ListProducts(ctx, Anonymous, repo.ProductFilter{CategorySlug: "phones"}, media)
	require.NoError(t, err)
	assert.Equal(t, before+1, env.cache.sets)
}

func TestListProducts_ExpiresAfterTTL(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()

	_, err := env.svc.ListProducts(ctx, Anonymous, repo.ProductFilter{}, media)
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&domain.Product{}).Where("slug = ?", "pixel-8").Update("name", "Renamed").Error)

	env.advance(DefaultListTTL - time.Second)
	got, _ := env.svc.ListProducts(ctx, Anonymous, repo.ProductFilter{}, media)
	assert.Equal(t, "Pixel 8", got[0].Name)

	env.advance(2 * time.Second)
	got, _ = env.svc.ListProducts(ctx, Anonymous, repo.ProductFilter{}, media)
	assert.Equal(t, "Renamed", got[0].Name)
}

func TestGetProduct_DetailTTL(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()

	_, err := env.svc.GetProduct(ctx, Anonymous, "zenbook-14", media)
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&domain.Product{}).Where("slug = ?", "zenbook-14").Update("price", 1.0).Error)

	p, _ := env.svc.GetProduct(ctx, Anonymous, "zenbook-14", media)
	assert.InDelta(t, 1099.0, p.Price, 1e-9)

	env.advance(DefaultDetailTTL)
	p, _ = env.svc.GetProduct(ctx, Anonymous, "zenbook-14", media)
	assert.InDelta(t, 1.0, p.Price, 1e-9)
}

func TestUpdateProduct_GroupMoveInvalidatesBothSides(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()

	laptops := repo.ProductFilter{CategorySlug: "laptops"}
	android := repo.ProductFilter{GroupSlug: "android"}
	_, err := env.svc.ListProducts(ctx, Anonymous, laptops, media)
	require.NoError(t, err)
	_, err = env.svc.ListProducts(ctx, Anonymous, android, media)
	require.NoError(t, err)

	require.NoError(t, env.svc.UpdateProduct(ctx, env.staff, "pixel-8", ProductPatch{Group: ptr("ultrabook")}))

	got, err := env.svc.ListProducts(ctx, Anonymous, laptops, media)
	require.NoError(t, err)
	assert.Equal(t, []string{"pixel-8", "zenbook-14"}, slugsOf(got))

	got, err = env.svc.ListProducts(ctx, Anonymous, android, media)
	require.NoError(t, err)
	assert.Equal(t, []string{"galaxy-s24"}, slugsOf(got))

	assert.Contains(t, env.cache.deleted, cache.ListKey("phones", "android"))
	assert.Contains(t, env.cache.deleted, cache.ListKey("laptops", "ultrabook"))
}

func TestIsLiked_PerPrincipalOverSharedCache(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()

	require.NoError(t, env.svc.Like(ctx, env.alice, "pixel-8"))
	require.NoError(t, env.svc.Like(ctx, env.alice, "pixel-8"), "repeat like is a no-op")

	forAlice, err := env.svc.ListProducts(ctx, env.alice, repo.ProductFilter{GroupSlug: "android"}, media)
	require.NoError(t, err)
	forBob, err := env.svc.ListProducts(ctx, env.bob, repo.ProductFilter{GroupSlug: "android"}, media)
	require.NoError(t, err)
	forAnon, err := env.svc.ListProducts(ctx, Anonymous, repo.ProductFilter{GroupSlug: "android"}, media)
	require.NoError(t, err)

	assert.True(t, forAlice[0].IsLiked)
	assert.False(t, forAlice[1].IsLiked)
	assert.False(t, forBob[0].IsLiked)
	assert.False(t, forAnon[0].IsLiked)

	d, err := env.svc.GetProduct(ctx, env.alice, "pixel-8", media)
	require.NoError(t, err)
	assert.True(t, d.IsLiked)

	require.NoError(t, env.svc.Unlike(ctx, env.alice, "pixel-8"))
	require.NoError(t, env.svc.Unlike(ctx, env.alice, "pixel-8"))
	d, err = env.svc.GetProduct(ctx, env.alice, "pixel-8", media)
	require.NoError(t, err)
	assert.False(t, d.IsLiked)

	assert.ErrorIs(t, env.svc.Like(ctx, Anonymous, "pixel-8"), ErrUnauthenticated)
	assert.ErrorIs(t, env.svc.Like(ctx, env.bob, "nope"), ErrNotFound)
}

func TestComments_AvgRatingAndInvalidation(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()

	p, err := env.svc.GetProduct(ctx, Anonymous, "iphone-15", media)
	require.NoError(t, err)
	assert.Zero(t, p.AvgRating)
	assert.Empty(t, p.Comments)

	for _, r := range []int{4, 4, 5} {
		_, err := env.svc.CreateComment(ctx, env.alice, "iphone-15", CommentInput{Rating: ptr(r), Comment: "ok"})
		require.NoError(t, err)
	}

	// read right after writing, inside the detail TTL
	p, err = env.svc.GetProduct(ctx, Anonymous, "iphone-15", media)
	require.NoError(t, err)
	assert.Equal(t, 4.3, p.AvgRating)
	assert.Len(t, p.Comments, 3)

	list, err := env.svc.ListProducts(ctx, Anonymous, repo.ProductFilter{GroupSlug: "iphone"}, media)
	require.NoError(t, err)
	assert.Equal(t, 4.3, list[0].AvgRating)

	cs, err := env.svc.ListComments(ctx, "iphone-15")
	require.NoError(t, err)
	assert.Len(t, cs, 3)
}

func TestCreateComment_Validation(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()
	var ve *ValidationError

	for _, r := range []int{-1, 6} {
		_, err := env.svc.CreateComment(ctx, env.alice, "pixel-8", CommentInput{Rating: ptr(r), Comment: "x"})
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "rating", ve.Field)
	}
	_, err := env.svc.CreateComment(ctx, env.alice, "pixel-8", CommentInput{Comment: "x"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "rating", ve.Field)

	_, err = env.svc.CreateComment(ctx, env.alice, "pixel-8", CommentInput{Rating: ptr(0), Comment: " "})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "comment", ve.Field)

	c, err := env.svc.CreateComment(ctx, env.alice, "pixel-8", CommentInput{Rating: ptr(0), Comment: "meh"})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Rating)

	_, err = env.svc.CreateComment(ctx, Anonymous, "pixel-8", CommentInput{Rating: ptr(3), Comment: "x"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = env.svc.CreateComment(ctx, env.alice, "nope", CommentInput{Rating: ptr(3), Comment: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteComment_OwnerOrStaff(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()

	c1, err := env.svc.CreateComment(ctx, env.alice, "pixel-8", CommentInput{Rating: ptr(5), Comment: "great"})
	require.NoError(t, err)
	c2, err := env.svc.CreateComment(ctx, env.alice, "pixel-8", CommentInput{Rating: ptr(1), Comment: "bad"})
	require.NoError(t, err)

	assert.ErrorIs(t, env.svc.DeleteComment(ctx, env.bob, c1.ID), ErrPermission)
	assert.ErrorIs(t, env.svc.DeleteComment(ctx, Anonymous, c1.ID), ErrUnauthenticated)
	require.NoError(t, env.svc.DeleteComment(ctx, env.alice, c1.ID))
	require.NoError(t, env.svc.DeleteComment(ctx, env.staff, c2.ID))
	assert.ErrorIs(t, env.svc.DeleteComment(ctx, env.alice, c1.ID), ErrNotFound)

	_, err = env.svc.GetComment(ctx, c1.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := env.svc.GetProduct(ctx, Anonymous, "pixel-8", media)
	require.NoError(t, err)
	assert.Empty(t, p.Comments)
	assert.Zero(t, p.AvgRating)
}

func TestAddImage_PrimaryProjection(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()

	p, err := env.svc.GetProduct(ctx, Anonymous, "pixel-8", media)
	require.NoError(t, err)
	assert.Nil(t, p.Image)

	_, err = env.svc.AddImage(ctx, env.staff, "pixel-8", ImageInput{Path: "products/a.png"})
	require.NoError(t, err)
	p, _ = env.svc.GetProduct(ctx, Anonymous, "pixel-8", media)
	assert.Nil(t, p.Image, "non-primary images are not projected")

	_, err = env.svc.AddImage(ctx, env.staff, "pixel-8", ImageInput{Path: "products/b.png", IsPrimary: true})
	require.NoError(t, err)
	_, err = env.svc.AddImage(ctx, env.staff, "pixel-8", ImageInput{Path: "/products/c.png", IsPrimary: true})
	require.NoError(t, err)

	p, _ = env.svc.GetProduct(ctx, Anonymous, "pixel-8", media)
	require.NotNil(t, p.Image)
	assert.Equal(t, media+"/products/c.png", *p.Image)

	imgs, err := repo.ListImages(ctx, env.db, p.ID)
	require.NoError(t, err)
	primaries := 0
	for _, i := range imgs {
		if i.IsPrimary {
			primaries++
		}
	}
	assert.Equal(t, 1, primaries)

	_, err = env.svc.AddImage(ctx, env.alice, "pixel-8", ImageInput{Path: "x.png"})
	assert.ErrorIs(t, err, ErrPermission)
	_, err = env.svc.AddImage(ctx, env.staff, "pixel-8", ImageInput{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAttributes_UpsertOneValuePerKey(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()

	got, err := env.svc.SetAttributes(ctx, env.staff, "pixel-8", map[string]string{"color": "black", "storage": "128GB"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"color": "black", "storage": "128GB"}, got)

	got, err = env.svc.SetAttributes(ctx, env.staff, "pixel-8", map[string]string{"color": "white"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"color": "white", "storage": "128GB"}, got)

	// keys and values are shared across products
	_, err = env.svc.SetAttributes(ctx, env.staff, "galaxy-s24", map[string]string{"color": "white"})
	require.NoError(t, err)
	var keys, values int64
	require.NoError(t, env.db.Model(&domain.AttributeKey{}).Count(&keys).Error)
	require.NoError(t, env.db.Model(&domain.AttributeValue{}).Count(&values).Error)
	assert.EqualValues(t, 2, keys)
	assert.EqualValues(t, 3, values)

	read, err := env.svc.ProductAttributes(ctx, "pixel-8")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"color": "white", "storage": "128GB"}, read)

	_, err = env.svc.SetAttributes(ctx, env.staff, "pixel-8", nil)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.svc.SetAttributes(ctx, env.staff, "pixel-8", map[string]string{"": "x"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.svc.SetAttributes(ctx, env.alice, "pixel-8", map[string]string{"a": "b"})
	assert.ErrorIs(t, err, ErrPermission)
	_, err = env.svc.ProductAttributes(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCategory_DropsAllProductEntries(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()

	_, err := env.svc.ListProducts(ctx, Anonymous, repo.ProductFilter{}, media)
	require.NoError(t, err)
	_, err = env.svc.GetProduct(ctx, Anonymous, "zenbook-14", media)
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteCategory(ctx, env.staff, "laptops"))

	ps, err := env.svc.ListProducts(ctx, Anonymous, repo.ProductFilter{}, media)
	require.NoError(t, err)
	assert.Equal(t, []string{"pixel-8", "galaxy-s24", "iphone-15"}, slugsOf(ps))

	_, err = env.svc.GetProduct(ctx, Anonymous, "zenbook-14", media)
	assert.ErrorIs(t, err, ErrNotFound)

	last := env.pub.sent[len(env.pub.sent)-1]
	assert.Equal(t, []string{cache.ProductPrefix}, last.Prefixes)
}

func TestCacheFailure_DegradesToMiss(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()
	env.cache.failGet = errCacheDown

	ps, err := env.svc.ListProducts(ctx, Anonymous, repo.ProductFilter{}, media)
	require.NoError(t, err)
	assert.Len(t, ps, 4)

	p, err := env.svc.GetProduct(ctx, Anonymous, "pixel-8", media)
	require.NoError(t, err)
	assert.Equal(t, "pixel-8", p.Slug)
}

func TestCorruptCacheEntry_IsIgnored(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()

	require.NoError(t, env.cache.Set(ctx, cache.DetailKey("pixel-8"), []byte("{not json"), time.Minute))
	p, err := env.svc.GetProduct(ctx, Anonymous, "pixel-8", media)
	require.NoError(t, err)
	assert.Equal(t, "Pixel 8", p.Name)
}

func TestWrites_PublishInvalidation(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()
	env.pub.sent = nil

	require.NoError(t, env.svc.DeleteProduct(ctx, env.staff, "iphone-15"))
	require.Len(t, env.pub.sent, 1)
	inv := env.pub.sent[0]
	assert.ElementsMatch(t, append([]string{cache.DetailKey("iphone-15")}, cache.AffectedListKeys("phones", "iphone")...), inv.Keys)

	// publish failures do not fail the write
	env.pub.err = errors.New("broker down")
	require.NoError(t, env.svc.Like(ctx, env.bob, "pixel-8"))
}

func TestApplyInvalidation_FromPeer(t *testing.T) {
	env := newCatalogEnv(t)
	env.seed(t)
	ctx := context.Background()

	_, err := env.svc.GetProduct(ctx, Anonymous, "pixel-8", media)
	require.NoError(t, err)
	_, err = env.svc.ListProducts(ctx, Anonymous, repo.ProductFilter{}, media)
	require.NoError(t, err)
	env.pub.sent = nil

	require.NoError(t, env.svc.ApplyInvalidation(ctx, events.Invalidation{Keys: []string{cache.DetailKey("pixel-8")}}))
	_, err = env.cache.Cache.Get(ctx, cache.DetailKey("pixel-8"))
	assert.ErrorIs(t, err, cache.ErrMiss)
	_, err = env.cache.Cache.Get(ctx, cache.ListKey("", ""))
	assert.NoError(t, err)

	require.NoError(t, env.svc.ApplyInvalidation(ctx, events.Invalidation{Prefixes: []string{cache.ProductPrefix}}))
	_, err = env.cache.Cache.Get(ctx, cache.ListKey("", ""))
	assert.ErrorIs(t, err, cache.ErrMiss)

	assert.Empty(t, env.pub.sent, "peer invalidations are not republished")
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, dedupe([]string{"a", "b", "a", "c", "b"}))
	assert.Empty(t, dedupe(nil))
}
