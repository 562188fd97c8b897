// Package services – CatalogService
//
// This file implements CatalogService, the application-level component that
// owns the catalog: categories, groups and products with their images,
// comments, attributes and likes. It validates inputs, assigns slugs once at
// creation, enforces staff/owner rules and runs every write in a single
// transaction.
//
// Product reads go through a read-through cache keyed by the (category,
// group) filter pair or the product slug. Writes invalidate the affected keys
// explicitly after commit and announce the invalidation to peer instances.
// Cache failures degrade to a miss and never fail the request.
//
// Observability: all public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-catalog-backend/internal/cache"
	"github.com/tbourn/go-catalog-backend/internal/domain"
	"github.com/tbourn/go-catalog-backend/internal/events"
	"github.com/tbourn/go-catalog-backend/internal/repo"
	"github.com/tbourn/go-catalog-backend/internal/slug"
)

// Default TTLs per cache key class.
const (
	DefaultListTTL   = 13 * time.Minute
	DefaultDetailTTL = 3 * time.Second
)

// CatalogService implements the catalog use-cases.
type CatalogService struct {
	DB     *gorm.DB
	Cache  cache.Cache
	Events events.Publisher

	ListTTL   time.Duration
	DetailTTL time.Duration

	validate *validator.Validate
}

// NewCatalogService wires a CatalogService. A nil cache disables caching and
// a nil publisher disables cross-instance invalidation.
func NewCatalogService(db *gorm.DB, c cache.Cache, pub events.Publisher) *CatalogService {
	if c == nil {
		c = cache.Nop{}
	}
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &CatalogService{
		DB:        db,
		Cache:     c,
		Events:    pub,
		ListTTL:   DefaultListTTL,
		DetailTTL: DefaultDetailTTL,
		validate:  newValidator(),
	}
}

func (s *CatalogService) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/CatalogService").Start(ctx, name, trace.WithAttributes(attrs...))
}

// ---- inputs ----

// CategoryInput is the payload of category create/update. Titles are stored
// as given and compared exactly for uniqueness.
type CategoryInput struct {
	Title string `json:"title" validate:"required,notblank,max=300"`
	Image string `json:"image" validate:"max=500"`
}

// GroupInput is the payload of group create.
type GroupInput struct {
	Name     string `json:"name"     validate:"required,notblank,max=300"`
	Category string `json:"category" validate:"required"`
	Image    string `json:"image"    validate:"max=500"`
}

// ProductInput is the payload of product create.
type ProductInput struct {
	Name        string   `json:"name"        validate:"required,max=300"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"       validate:"required,gte=0"`
	Discount    float64  `json:"discount"    validate:"gte=0,lte=100"`
	Group       string   `json:"group"       validate:"required"`
}

// ProductPatch is the payload of product update. Nil fields are left as is;
// the slug is never changed, whatever the name becomes.
type ProductPatch struct {
	Name        *string  `json:"name"        validate:"omitnil,min=1,max=300"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"       validate:"omitnil,gte=0"`
	Discount    *float64 `json:"discount"    validate:"omitnil,gte=0,lte=100"`
	Group       *string  `json:"group"       validate:"omitnil,min=1"`
}

// ImageInput is the payload of image create.
type ImageInput struct {
	Path      string `json:"image"      validate:"required,max=500"`
	IsPrimary bool   `json:"is_primary"`
}

// CommentInput is the payload of comment create.
type CommentInput struct {
	Rating  *int   `json:"rating"  validate:"required,gte=0,lte=5"`
	Comment string `json:"comment" validate:"required"`
}

// ---- categories ----

// ListCategories returns every category.
func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	ctx, span := s.span(ctx, "ListCategories")
	defer span.End()
	return repo.ListCategories(ctx, s.DB)
}

// GetCategory returns the category with the given slug.
func (s *CatalogService) GetCategory(ctx context.Context, categorySlug string) (*domain.Category, error) {
	ctx, span := s.span(ctx, "GetCategory", attribute.String("category.slug", categorySlug))
	defer span.End()
	c, err := repo.GetCategoryBySlug(ctx, s.DB, categorySlug)
	if err != nil {
		return nil, notFound(err, "category", categorySlug)
	}
	return c, nil
}

// CreateCategory validates in, derives a unique slug from the title and
// inserts the category. Staff only.
func (s *CatalogService) CreateCategory(ctx context.Context, pr Principal, in CategoryInput) (*domain.Category, error) {
	ctx, span := s.span(ctx, "CreateCategory")
	defer span.End()

	if err := requireStaff(pr); err != nil {
		return nil, err
	}
	if err := checkStruct(s.validate, in); err != nil {
		return nil, err
	}

	var out *domain.Category
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if taken, err := exists(ctx, tx, &domain.Category{}, "title = ?", in.Title); err != nil {
			return err
		} else if taken {
			return invalid("title", "category with this title already exists")
		}
		sl, err := s.newSlug(ctx, "title", in.Title, func(ctx context.Context, c string) (bool, error) {
			return repo.CategorySlugExists(ctx, tx, c)
		})
		if err != nil {
			return err
		}
		c := &domain.Category{Title: in.Title, Slug: sl, Image: in.Image}
		if err := repo.CreateCategory(ctx, tx, c); err != nil {
			return conflict(err)
		}
		out = c
		return nil
	})
	return out, err
}

// UpdateCategory changes title and image. The slug stays as assigned at
// creation. Staff only.
func (s *CatalogService) UpdateCategory(ctx context.Context, pr Principal, categorySlug string, in CategoryInput) (*domain.Category, error) {
	ctx, span := s.span(ctx, "UpdateCategory", attribute.String("category.slug", categorySlug))
	defer span.End()

	if err := requireStaff(pr); err != nil {
		return nil, err
	}
	if err := checkStruct(s.validate, in); err != nil {
		return nil, err
	}

	var out *domain.Category
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateCategory(ctx, tx, categorySlug, in.Title, in.Image); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return invalid("title", "category with this title already exists")
			}
			return notFound(err, "category", categorySlug)
		}
		c, err := repo.GetCategoryBySlug(ctx, tx, categorySlug)
		out = c
		return err
	})
	return out, err
}

// DeleteCategory removes a category with its groups and their products.
// Every cached product entry is dropped. Staff only.
func (s *CatalogService) DeleteCategory(ctx context.Context, pr Principal, categorySlug string) error {
	ctx, span := s.span(ctx, "DeleteCategory", attribute.String("category.slug", categorySlug))
	defer span.End()

	if err := requireStaff(pr); err != nil {
		return err
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return notFound(repo.DeleteCategory(ctx, tx, categorySlug), "category", categorySlug)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, events.Invalidation{Prefixes: []string{cache.ProductPrefix}})
	return nil
}

// ---- groups ----

// ListGroups returns all groups, or those of one category when categorySlug
// is set. An unknown category is ErrNotFound.
func (s *CatalogService) ListGroups(ctx context.Context, categorySlug string) ([]domain.Group, error) {
	ctx, span := s.span(ctx, "ListGroups", attribute.String("category.slug", categorySlug))
	defer span.End()

	if categorySlug != "" {
		if _, err := repo.GetCategoryBySlug(ctx, s.DB, categorySlug); err != nil {
			return nil, notFound(err, "category", categorySlug)
		}
	}
	return repo.ListGroups(ctx, s.DB, categorySlug)
}

// CreateGroup validates in, resolves its category and inserts the group
// under a unique slug derived from the name. Staff only.
func (s *CatalogService) CreateGroup(ctx context.Context, pr Principal, in GroupInput) (*domain.Group, error) {
	ctx, span := s.span(ctx, "CreateGroup")
	defer span.End()

	if err := requireStaff(pr); err != nil {
		return nil, err
	}
	if err := checkStruct(s.validate, in); err != nil {
		return nil, err
	}

	var out *domain.Group
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cat, err := repo.GetCategoryBySlug(ctx, tx, in.Category)
		if isNotFound(err) {
			return invalid("category", "unknown category "+strconv.Quote(in.Category))
		} else if err != nil {
			return err
		}
		if taken, err := exists(ctx, tx, &domain.Group{}, "name = ?", in.Name); err != nil {
			return err
		} else if taken {
			return invalid("name", "group with this name already exists")
		}
		sl, err := s.newSlug(ctx, "name", in.Name, func(ctx context.Context, c string) (bool, error) {
			return repo.GroupSlugExists(ctx, tx, c)
		})
		if err != nil {
			return err
		}
		g := &domain.Group{Name: in.Name, Slug: sl, CategoryID: cat.ID, Image: in.Image}
		if err := repo.CreateGroup(ctx, tx, g); err != nil {
			return conflict(err)
		}
		out = g
		return nil
	})
	return out, err
}

// DeleteGroup removes a group and its products. Every cached product entry
// is dropped. Staff only.
func (s *CatalogService) DeleteGroup(ctx context.Context, pr Principal, groupSlug string) error {
	ctx, span := s.span(ctx, "DeleteGroup", attribute.String("group.slug", groupSlug))
	defer span.End()

	if err := requireStaff(pr); err != nil {
		return err
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return notFound(repo.DeleteGroup(ctx, tx, groupSlug), "group", groupSlug)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, events.Invalidation{Prefixes: []string{cache.ProductPrefix}})
	return nil
}

// ---- products: reads ----

// ListProducts returns the projected products matching the filter pair.
// Either slug may be empty. A group outside the category yields an empty
// list, not an error. Empty filtered results are not cached, so unknown
// slugs in the query cannot fill the cache.
func (s *CatalogService) ListProducts(ctx context.Context, pr Principal, f repo.ProductFilter, mediaBase string) ([]ProjectedProduct, error) {
	ctx, span := s.span(ctx, "ListProducts",
		attribute.String("category.slug", f.CategorySlug),
		attribute.String("group.slug", f.GroupSlug),
	)
	defer span.End()

	key := cache.ListKey(f.CategorySlug, f.GroupSlug)
	var snaps []ProductSnapshot
	if !s.cacheGet(ctx, cache.ClassList, key, &snaps) {
		rows, err := repo.ListProducts(ctx, s.DB, f)
		if err != nil {
			return nil, err
		}
		snaps = make([]ProductSnapshot, 0, len(rows))
		for _, p := range rows {
			snaps = append(snaps, Snapshot(p))
		}
		if len(snaps) > 0 || f == (repo.ProductFilter{}) {
			s.cacheSet(ctx, key, snaps, s.ListTTL)
		}
	}

	out := make([]ProjectedProduct, 0, len(snaps))
	for _, sn := range snaps {
		out = append(out, sn.Finalize(pr, mediaBase))
	}
	return out, nil
}

// GetProduct returns one projected product.
func (s *CatalogService) GetProduct(ctx context.Context, pr Principal, productSlug, mediaBase string) (*ProjectedProduct, error) {
	ctx, span := s.span(ctx, "GetProduct", attribute.String("product.slug", productSlug))
	defer span.End()

	key := cache.DetailKey(productSlug)
	var snap ProductSnapshot
	if !s.cacheGet(ctx, cache.ClassDetail, key, &snap) {
		p, err := repo.GetProductBySlug(ctx, s.DB, productSlug)
		if err != nil {
			return nil, notFound(err, "product", productSlug)
		}
		snap = Snapshot(*p)
		s.cacheSet(ctx, key, snap, s.DetailTTL)
	}
	out := snap.Finalize(pr, mediaBase)
	return &out, nil
}

// ---- products: writes ----

// CreateProduct validates in, resolves its group and inserts the product
// under a unique slug. The product's list keys are invalidated. Staff only.
// It returns the new slug.
func (s *CatalogService) CreateProduct(ctx context.Context, pr Principal, in ProductInput) (string, error) {
	ctx, span := s.span(ctx, "CreateProduct")
	defer span.End()

	if err := requireStaff(pr); err != nil {
		return "", err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := checkStruct(s.validate, in); err != nil {
		return "", err
	}

	var created *domain.Product
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := repo.GetGroupBySlug(ctx, tx, in.Group)
		if isNotFound(err) {
			return invalid("group", "unknown group "+strconv.Quote(in.Group))
		} else if err != nil {
			return err
		}
		sl, err := s.newSlug(ctx, "name", in.Name, func(ctx context.Context, c string) (bool, error) {
			return repo.ProductSlugExists(ctx, tx, c)
		})
		if err != nil {
			return err
		}
		p := &domain.Product{
			Name:        in.Name,
			Description: in.Description,
			Price:       *in.Price,
			Discount:    in.Discount,
			Slug:        sl,
			GroupID:     g.ID,
		}
		if err := repo.CreateProduct(ctx, tx, p); err != nil {
			return conflict(err)
		}
		p.Group = *g
		created = p
		return nil
	})
	if err != nil {
		return "", err
	}
	s.invalidate(ctx, productInvalidation(created))
	span.SetAttributes(attribute.String("product.slug", created.Slug))
	return created.Slug, nil
}

// UpdateProduct applies patch to the product. Moving it to another group
// invalidates the list keys of both the old and the new group. Staff only.
func (s *CatalogService) UpdateProduct(ctx context.Context, pr Principal, productSlug string, patch ProductPatch) error {
	ctx, span := s.span(ctx, "UpdateProduct", attribute.String("product.slug", productSlug))
	defer span.End()

	if err := requireStaff(pr); err != nil {
		return err
	}
	if patch.Name != nil {
		n := strings.TrimSpace(*patch.Name)
		patch.Name = &n
	}
	if err := checkStruct(s.validate, patch); err != nil {
		return err
	}

	var before, after *domain.Product
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := repo.GetProductForWrite(ctx, tx, productSlug)
		if err != nil {
			return notFound(err, "product", productSlug)
		}
		before = p

		fields := map[string]any{}
		if patch.Name != nil {
			fields["name"] = *patch.Name
		}
		if patch.Description != nil {
			fields["description"] = *patch.Description
		}
		if patch.Price != nil {
			fields["price"] = *patch.Price
		}
		if patch.Discount != nil {
			fields["discount"] = *patch.Discount
		}
		moved := *p
		if patch.Group != nil && *patch.Group != p.Group.Slug {
			g, err := repo.GetGroupBySlug(ctx, tx, *patch.Group)
			if isNotFound(err) {
				return invalid("group", "unknown group "+strconv.Quote(*patch.Group))
			} else if err != nil {
				return err
			}
			fields["group_id"] = g.ID
			moved.GroupID, moved.Group = g.ID, *g
		}
		after = &moved
		return repo.UpdateProduct(ctx, tx, p.ID, fields)
	})
	if err != nil {
		return err
	}
	inv := productInvalidation(before)
	inv.Keys = append(inv.Keys, productInvalidation(after).Keys...)
	s.invalidate(ctx, inv)
	return nil
}

// DeleteProduct removes the product with its images, comments, attributes
// and likes. Staff only.
func (s *CatalogService) DeleteProduct(ctx context.Context, pr Principal, productSlug string) error {
	ctx, span := s.span(ctx, "DeleteProduct", attribute.String("product.slug", productSlug))
	defer span.End()

	if err := requireStaff(pr); err != nil {
		return err
	}
	var gone *domain.Product
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := repo.GetProductForWrite(ctx, tx, productSlug)
		if err != nil {
			return notFound(err, "product", productSlug)
		}
		gone = p
		return repo.DeleteProduct(ctx, tx, p.ID)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, productInvalidation(gone))
	return nil
}

// AddImage attaches an image to the product. A primary image demotes the
// previous primary one. Staff only.
func (s *CatalogService) AddImage(ctx context.Context, pr Principal, productSlug string, in ImageInput) (*domain.Image, error) {
	ctx, span := s.span(ctx, "AddImage", attribute.String("product.slug", productSlug))
	defer span.End()

	if err := requireStaff(pr); err != nil {
		return nil, err
	}
	in.Path = strings.TrimSpace(in.Path)
	if err := checkStruct(s.validate, in); err != nil {
		return nil, err
	}

	var (
		img *domain.Image
		p   *domain.Product
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = repo.GetProductForWrite(ctx, tx, productSlug); err != nil {
			return notFound(err, "product", productSlug)
		}
		img = &domain.Image{ProductID: p.ID, Path: in.Path, IsPrimary: in.IsPrimary}
		if err := repo.AddImage(ctx, tx, img); err != nil {
			return err
		}
		return repo.TouchProduct(ctx, tx, p.ID)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, productInvalidation(p))
	return img, nil
}

// ---- attributes ----

// ProductAttributes returns the product's attributes as key → value.
func (s *CatalogService) ProductAttributes(ctx context.Context, productSlug string) (map[string]string, error) {
	ctx, span := s.span(ctx, "ProductAttributes", attribute.String("product.slug", productSlug))
	defer span.End()

	p, err := repo.GetProductForWrite(ctx, s.DB, productSlug)
	if err != nil {
		return nil, notFound(err, "product", productSlug)
	}
	return attributeMap(ctx, s.DB, p.ID)
}

// SetAttributes upserts every key → value pair on the product; keys already
// set get their value replaced. Staff only. It returns the resulting map.
func (s *CatalogService) SetAttributes(ctx context.Context, pr Principal, productSlug string, attrs map[string]string) (map[string]string, error) {
	ctx, span := s.span(ctx, "SetAttributes", attribute.String("product.slug", productSlug))
	defer span.End()

	if err := requireStaff(pr); err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return nil, invalid("attributes", "at least one attribute is required")
	}
	for k, v := range attrs {
		if strings.TrimSpace(k) == "" || len(k) > 200 {
			return nil, invalid("attributes", "keys must be 1 to 200 characters")
		}
		if strings.TrimSpace(v) == "" || len(v) > 200 {
			return nil, invalid(k, "values must be 1 to 200 characters")
		}
	}

	var out map[string]string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := repo.GetProductForWrite(ctx, tx, productSlug)
		if err != nil {
			return notFound(err, "product", productSlug)
		}
		for k, v := range attrs {
			if err := repo.SetProductAttribute(ctx, tx, p.ID, strings.TrimSpace(k), strings.TrimSpace(v)); err != nil {
				return err
			}
		}
		out, err = attributeMap(ctx, tx, p.ID)
		return err
	})
	return out, err
}

func attributeMap(ctx context.Context, db *gorm.DB, productID uint) (map[string]string, error) {
	rows, err := repo.ListProductAttributes(ctx, db, productID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key.Key] = r.Value.Value
	}
	return out, nil
}

// ---- likes ----

// Like marks the product as liked by the principal. Repeating it is a no-op.
func (s *CatalogService) Like(ctx context.Context, pr Principal, productSlug string) error {
	return s.setLike(ctx, pr, productSlug, true)
}

// Unlike removes the principal's like. Removing a missing like is a no-op.
func (s *CatalogService) Unlike(ctx context.Context, pr Principal, productSlug string) error {
	return s.setLike(ctx, pr, productSlug, false)
}

func (s *CatalogService) setLike(ctx context.Context, pr Principal, productSlug string, liked bool) error {
	ctx, span := s.span(ctx, "SetLike",
		attribute.String("product.slug", productSlug),
		attribute.Bool("liked", liked),
	)
	defer span.End()

	if err := requireUser(pr); err != nil {
		return err
	}
	var p *domain.Product
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = repo.GetProductForWrite(ctx, tx, productSlug); err != nil {
			return notFound(err, "product", productSlug)
		}
		changed := true
		if liked {
			err = repo.LikeProduct(ctx, tx, p.ID, pr.UserID)
		} else {
			changed, err = repo.UnlikeProduct(ctx, tx, p.ID, pr.UserID)
		}
		if err != nil || !changed {
			return err
		}
		return repo.TouchProduct(ctx, tx, p.ID)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, productInvalidation(p))
	return nil
}

// ---- comments ----

// ListComments returns the product's comments, oldest first.
func (s *CatalogService) ListComments(ctx context.Context, productSlug string) ([]domain.Comment, error) {
	ctx, span := s.span(ctx, "ListComments", attribute.String("product.slug", productSlug))
	defer span.End()

	p, err := repo.GetProductForWrite(ctx, s.DB, productSlug)
	if err != nil {
		return nil, notFound(err, "product", productSlug)
	}
	return repo.ListComments(ctx, s.DB, p.ID)
}

// GetComment returns one comment.
func (s *CatalogService) GetComment(ctx context.Context, id uint) (*domain.Comment, error) {
	c, err := repo.GetComment(ctx, s.DB, id)
	if err != nil {
		return nil, notFound(err, "comment", strconv.FormatUint(uint64(id), 10))
	}
	return c, nil
}

// CreateComment records a rated comment by the principal on the product.
// Ratings outside 0..5 are rejected.
func (s *CatalogService) CreateComment(ctx context.Context, pr Principal, productSlug string, in CommentInput) (*domain.Comment, error) {
	ctx, span := s.span(ctx, "CreateComment", attribute.String("product.slug", productSlug))
	defer span.End()

	if err := requireUser(pr); err != nil {
		return nil, err
	}
	in.Comment = strings.TrimSpace(in.Comment)
	if err := checkStruct(s.validate, in); err != nil {
		return nil, err
	}

	var (
		c *domain.Comment
		p *domain.Product
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = repo.GetProductForWrite(ctx, tx, productSlug); err != nil {
			return notFound(err, "product", productSlug)
		}
		c = &domain.Comment{ProductID: p.ID, UserID: pr.UserID, Rating: *in.Rating, Comment: in.Comment}
		if err := repo.CreateComment(ctx, tx, c); err != nil {
			return err
		}
		return repo.TouchProduct(ctx, tx, p.ID)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, productInvalidation(p))
	return c, nil
}

// DeleteComment removes a comment. Only its author or staff may do so.
func (s *CatalogService) DeleteComment(ctx context.Context, pr Principal, id uint) error {
	ctx, span := s.span(ctx, "DeleteComment", attribute.Int64("comment.id", int64(id)))
	defer span.End()

	if err := requireUser(pr); err != nil {
		return err
	}
	var p *domain.Product
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := repo.GetComment(ctx, tx, id)
		if err != nil {
			return notFound(err, "comment", strconv.FormatUint(uint64(id), 10))
		}
		if c.UserID != pr.UserID && !pr.IsStaff {
			return ErrPermission
		}
		if p, err = repo.GetProductForWriteByID(ctx, tx, c.ProductID); err != nil {
			return err
		}
		if err := repo.DeleteComment(ctx, tx, id); err != nil {
			return err
		}
		return repo.TouchProduct(ctx, tx, p.ID)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, productInvalidation(p))
	return nil
}

// ---- cache ----

// ApplyInvalidation drops keys and prefixes announced by a peer instance. It
// does not republish.
func (s *CatalogService) ApplyInvalidation(ctx context.Context, inv events.Invalidation) error {
	var errs []error
	if len(inv.Keys) > 0 {
		if err := s.Cache.Delete(ctx, inv.Keys...); err != nil {
			errs = append(errs, err)
		} else {
			cache.ObserveInvalidation(len(inv.Keys), false)
		}
	}
	for _, p := range inv.Prefixes {
		if err := s.Cache.DeletePrefix(ctx, p); err != nil {
			errs = append(errs, err)
		} else {
			cache.ObserveInvalidation(1, true)
		}
	}
	return errors.Join(errs...)
}

// invalidate drops inv locally and announces it to peers. Failures are
// logged: the TTLs still bound staleness.
func (s *CatalogService) invalidate(ctx context.Context, inv events.Invalidation) {
	inv.Keys = dedupe(inv.Keys)
	if err := s.ApplyInvalidation(ctx, inv); err != nil {
		log.Ctx(ctx).Warn().Err(err).Strs("keys", inv.Keys).Strs("prefixes", inv.Prefixes).Msg("cache invalidation failed")
	}
	if err := s.Events.Publish(ctx, inv); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("publishing cache invalidation failed")
	}
}

func (s *CatalogService) cacheGet(ctx context.Context, class, key string, dst any) bool {
	raw, err := s.Cache.Get(ctx, key)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, dst); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
			cache.ObserveLookup(class, cache.ResultError)
			return false
		}
		cache.ObserveLookup(class, cache.ResultHit)
		return true
	case errors.Is(err, cache.ErrMiss):
		cache.ObserveLookup(class, cache.ResultMiss)
	default:
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed; treating as miss")
		cache.ObserveLookup(class, cache.ResultError)
	}
	return false
}

func (s *CatalogService) cacheSet(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}
	if err := s.Cache.Set(ctx, key, raw, ttl); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// productInvalidation lists the detail key and the four list keys p appears
// under. p must have Group.Category loaded.
func productInvalidation(p *domain.Product) events.Invalidation {
	keys := append([]string{cache.DetailKey(p.Slug)}, cache.AffectedListKeys(p.Group.Category.Slug, p.Group.Slug)...)
	return events.Invalidation{Keys: keys}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, k := range in {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// ---- helpers ----

// newSlug derives a unique slug from name. An empty derivation is reported
// against field.
func (s *CatalogService) newSlug(ctx context.Context, field, name string, taken slug.ExistsFunc) (string, error) {
	sl, err := slug.MakeUnique(ctx, name, taken)
	if errors.Is(err, slug.ErrEmpty) {
		return "", invalid(field, "must contain at least one letter or digit")
	}
	return sl, err
}

// conflict maps a unique violation that slipped past the pre-checks.
func conflict(err error) error {
	if errors.Is(err, repo.ErrDuplicate) {
		return ErrConflict
	}
	return err
}

func exists(ctx context.Context, db *gorm.DB, model any, where string, args ...any) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Model(model).Where(where, args...).Limit(1).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
