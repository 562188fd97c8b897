// Package services – product projection
//
// A product row with its preloaded associations is projected in two steps.
// Snapshot builds the part every caller sees alike (it is what the product
// cache stores); Finalize adds what depends on the request: the liked flag
// for the current principal and absolute media URLs.
package services

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbourn/go-catalog-backend/internal/domain"
)

// CommentView is a comment as embedded in product responses.
type CommentView struct {
	ID        uint      `json:"id"`
	Rating    int       `json:"rating"`
	UserID    string    `json:"user"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ViewComment maps c for the client.
func ViewComment(c domain.Comment) CommentView {
	return CommentView{
		ID:        c.ID,
		Rating:    c.Rating,
		UserID:    c.UserID,
		Comment:   c.Comment,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// ProductSnapshot is the principal-independent projection of a product.
// LikedBy and ImagePath never leave the server; Finalize replaces them.
type ProductSnapshot struct {
	ID              uint          `json:"id"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	Price           float64       `json:"price"`
	Discount        float64       `json:"discount"`
	DiscountedPrice float64       `json:"discounted_price"`
	Slug            string        `json:"slug"`
	GroupID         uint          `json:"group"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	AvgRating       float64       `json:"avg_rating"`
	ImagePath       string        `json:"image_path,omitempty"`
	Comments        []CommentView `json:"comments"`
	LikedBy         []string      `json:"liked_by,omitempty"`
}

// ProjectedProduct is the client-facing product.
type ProjectedProduct struct {
	ID              uint          `json:"id"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	Price           float64       `json:"price"`
	Discount        float64       `json:"discount"`
	DiscountedPrice float64       `json:"discounted_price"`
	Slug            string        `json:"slug"`
	GroupID         uint          `json:"group"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	AvgRating       float64       `json:"avg_rating"`
	Image           *string       `json:"image"`
	Comments        []CommentView `json:"comments"`
	IsLiked         bool          `json:"is_liked"`
}

// Snapshot projects p without reference to any principal. p is expected in
// the shape returned by repo.ListProducts: AvgRating filled, only primary
// images preloaded.
func Snapshot(p domain.Product) ProductSnapshot {
	s := ProductSnapshot{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Price:           p.Price,
		Discount:        p.Discount,
		DiscountedPrice: p.DiscountedPrice(),
		Slug:            p.Slug,
		GroupID:         p.GroupID,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
		AvgRating:       RoundRating(p.AvgRating),
		Comments:        make([]CommentView, 0, len(p.Comments)),
	}
	for _, img := range p.Images {
		if img.IsPrimary {
			s.ImagePath = img.Path
			break
		}
	}
	for _, c := range p.Comments {
		s.Comments = append(s.Comments, ViewComment(c))
	}
	for _, l := range p.Likes {
		s.LikedBy = append(s.LikedBy, l.UserID)
	}
	return s
}

// Finalize completes the projection for one request. mediaBase prefixes the
// relative image path.
func (s ProductSnapshot) Finalize(pr Principal, mediaBase string) ProjectedProduct {
	out := ProjectedProduct{
		ID:              s.ID,
		Name:            s.Name,
		Description:     s.Description,
		Price:           s.Price,
		Discount:        s.Discount,
		DiscountedPrice: s.DiscountedPrice,
		Slug:            s.Slug,
		GroupID:         s.GroupID,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		AvgRating:       s.AvgRating,
		Image:           MediaURL(mediaBase, s.ImagePath),
		Comments:        s.Comments,
	}
	if out.Comments == nil {
		out.Comments = []CommentView{}
	}
	if pr.Authenticated() {
		for _, id := range s.LikedBy {
			if id == pr.UserID {
				out.IsLiked = true
				break
			}
		}
	}
	return out
}

// Project is Snapshot followed by Finalize.
func Project(p domain.Product, pr Principal, mediaBase string) ProjectedProduct {
	return Snapshot(p).Finalize(pr, mediaBase)
}

// RoundRating rounds a mean rating half away from zero to one decimal place.
func RoundRating(avg float64) float64 {
	return decimal.NewFromFloat(avg).Round(1).InexactFloat64()
}

// MediaURL joins base and a relative media path. It returns nil for an empty
// path and the path unchanged when it is already absolute.
func MediaURL(base, path string) *string {
	if path == "" {
		return nil
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return &path
	}
	u := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	return &u
}

// CategoryView is the client-facing category.
type CategoryView struct {
	ID    uint    `json:"id"`
	Title string  `json:"title"`
	Slug  string  `json:"slug"`
	Image *string `json:"image"`
}

// ProjectCategory maps c for the client.
func ProjectCategory(c domain.Category, mediaBase string) CategoryView {
	return CategoryView{ID: c.ID, Title: c.Title, Slug: c.Slug, Image: MediaURL(mediaBase, c.Image)}
}

// GroupView is the client-facing group.
type GroupView struct {
	ID         uint      `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	CategoryID uint      `json:"category"`
	Image      *string   `json:"image"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ProjectGroup maps g for the client.
func ProjectGroup(g domain.Group, mediaBase string) GroupView {
	return GroupView{
		ID:         g.ID,
		Name:       g.Name,
		Slug:       g.Slug,
		CategoryID: g.CategoryID,
		Image:      MediaURL(mediaBase, g.Image),
		CreatedAt:  g.CreatedAt,
		UpdatedAt:  g.UpdatedAt,
	}
}
