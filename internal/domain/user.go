package domain

import "time"

// User is a registered account. Username and Email are unique; the password
// is stored only as a bcrypt hash and never serialized.
type User struct {
	ID           string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Username     string    `json:"username"   gorm:"type:varchar(150);not null;uniqueIndex"`
	Email        string    `json:"email"      gorm:"type:varchar(254);not null;uniqueIndex"`
	FirstName    string    `json:"first_name" gorm:"type:varchar(150);not null;default:''"`
	LastName     string    `json:"last_name"  gorm:"type:varchar(150);not null;default:''"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(255);not null"`
	IsStaff      bool      `json:"is_staff"   gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// RevokedToken records the ID (jti) of an access token that was logged out or
// rotated. Rows can be purged once ExpiresAt has passed.
type RevokedToken struct {
	JTI       string    `gorm:"type:char(36);primaryKey"`
	UserID    string    `gorm:"type:char(36);not null;index"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name for RevokedToken.
func (RevokedToken) TableName() string { return "revoked_tokens" }
