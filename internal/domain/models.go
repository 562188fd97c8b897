// Package domain defines the persistence models for the catalog: categories,
// groups, products and their images, comments, attributes and likes, plus the
// user accounts that own comments and likes. These types are mapped with GORM
// and form the core data layer of the catalog backend.
package domain

import (
	"time"
)

// Category is the top level of the catalog tree. Its slug is derived from the
// title once, at creation, and never regenerated.
type Category struct {
	ID    uint   `json:"id"    gorm:"primaryKey"`
	Title string `json:"title" gorm:"type:varchar(300);not null;uniqueIndex"`
	Slug  string `json:"slug"  gorm:"type:varchar(300);not null;uniqueIndex"`
	Image string `json:"image" gorm:"type:varchar(500);not null;default:''"`

	Groups []Group `json:"-" gorm:"foreignKey:CategoryID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string { return "categories" }

// Group belongs to a Category and holds Products.
//
// Fields:
//   - Name: unique display name.
//   - Slug: unique, derived once from Name with numeric suffixes on collision.
//   - CategoryID: owning category; groups are cascade-deleted with it.
//   - Image: relative media path.
type Group struct {
	ID         uint      `json:"id"          gorm:"primaryKey"`
	Name       string    `json:"name"        gorm:"type:varchar(300);not null;uniqueIndex"`
	Slug       string    `json:"slug"        gorm:"type:varchar(300);not null;uniqueIndex"`
	CategoryID uint      `json:"category_id" gorm:"not null;index"`
	Image      string    `json:"image"       gorm:"type:varchar(500);not null;default:''"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Category Category  `json:"-" gorm:"foreignKey:CategoryID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Products []Product `json:"-" gorm:"foreignKey:GroupID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Group.
func (Group) TableName() string { return "product_groups" }

// Product is a sellable item inside a Group.
//
// AvgRating is not a column: it is filled by the list/detail queries from an
// in-query aggregate over the product's comments.
type Product struct {
	ID          uint      `json:"id"          gorm:"primaryKey"`
	Name        string    `json:"name"        gorm:"type:varchar(300);not null"`
	Description string    `json:"description" gorm:"type:text;not null;default:''"`
	Price       float64   `json:"price"       gorm:"not null;check:price >= 0"`
	Discount    float64   `json:"discount"    gorm:"not null;default:0;check:discount >= 0 AND discount <= 100"`
	Slug        string    `json:"slug"        gorm:"type:varchar(300);not null;uniqueIndex"`
	GroupID     uint      `json:"group_id"    gorm:"not null;index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	AvgRating float64 `json:"-" gorm:"->;-:migration"`

	Group      Group              `json:"-" gorm:"foreignKey:GroupID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Images     []Image            `json:"-" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Comments   []Comment          `json:"-" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Likes      []ProductLike      `json:"-" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Attributes []ProductAttribute `json:"-" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string { return "products" }

// DiscountedPrice returns the price after applying the percentage discount.
// A zero (or negative) discount leaves the price untouched.
func (p Product) DiscountedPrice() float64 {
	return DiscountedPrice(p.Price, p.Discount)
}

// Image is a media reference attached to a product. At most one image per
// product is primary; the write path demotes the others when a new primary
// image is added.
type Image struct {
	ID        uint   `json:"id"         gorm:"primaryKey"`
	Path      string `json:"path"       gorm:"type:varchar(500);not null"`
	ProductID uint   `json:"product_id" gorm:"not null;index:idx_image_product_primary,priority:1"`
	IsPrimary bool   `json:"is_primary" gorm:"not null;default:false;index:idx_image_product_primary,priority:2"`
}

// TableName returns the database table name for Image.
func (Image) TableName() string { return "product_images" }

// Comment is a rated review left by a user on a product.
// Rating is constrained to the closed set 0..5.
type Comment struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	Rating    int       `json:"rating"     gorm:"not null;default:0;check:rating BETWEEN 0 AND 5"`
	ProductID uint      `json:"product_id" gorm:"not null;index"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index"`
	Comment   string    `json:"comment"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "comments" }

// AttributeKey is a process-wide unique attribute name (e.g. "color").
type AttributeKey struct {
	ID  uint   `json:"id"  gorm:"primaryKey"`
	Key string `json:"key" gorm:"type:varchar(200);not null;uniqueIndex"`
}

// TableName returns the database table name for AttributeKey.
func (AttributeKey) TableName() string { return "attribute_keys" }

// AttributeValue is a process-wide unique attribute value (e.g. "red").
type AttributeValue struct {
	ID    uint   `json:"id"    gorm:"primaryKey"`
	Value string `json:"value" gorm:"type:varchar(200);not null;uniqueIndex"`
}

// TableName returns the database table name for AttributeValue.
func (AttributeValue) TableName() string { return "attribute_values" }

// ProductAttribute links a product to one (key, value) pair. The unique index
// on (product_id, key_id) keeps a single value per key per product.
type ProductAttribute struct {
	ID        uint `gorm:"primaryKey"`
	ProductID uint `gorm:"not null;uniqueIndex:ux_product_attribute_key,priority:1"`
	KeyID     uint `gorm:"not null;uniqueIndex:ux_product_attribute_key,priority:2"`
	ValueID   uint `gorm:"not null;index"`

	Key   AttributeKey   `gorm:"foreignKey:KeyID;references:ID;constraint:OnDelete:CASCADE"`
	Value AttributeValue `gorm:"foreignKey:ValueID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for ProductAttribute.
func (ProductAttribute) TableName() string { return "product_attributes" }

// ProductLike is the user↔product like relation.
type ProductLike struct {
	ProductID uint      `gorm:"primaryKey;autoIncrement:false"`
	UserID    string    `gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time `gorm:"not null"`

	User User `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for ProductLike.
func (ProductLike) TableName() string { return "product_likes" }
