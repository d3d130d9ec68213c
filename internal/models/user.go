// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an account on the platform.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"uniqueIndex;not null" json:"username"`
	Email     string         `gorm:"uniqueIndex;not null" json:"email"`
	Password  string         `json:"-"` // bcrypt hash; empty for Google-only accounts
	Name      string         `json:"name"`
	Bio       string         `json:"bio"`
	Avatar    string         `json:"avatar"`
	GoogleID  *string        `gorm:"uniqueIndex" json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Following []User  `gorm:"many2many:user_follows;joinForeignKey:FollowerID;joinReferences:FolloweeID" json:"following,omitempty"`
	Groups    []Group `gorm:"many2many:group_members" json:"groups,omitempty"`

	// Computed on profile reads
	FollowersCount int64 `gorm:"-" json:"followers_count"`
	FollowingCount int64 `gorm:"-" json:"following_count"`
}

// DisplayName returns the name shown in chat views.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// UserFollow is the join row behind User.Following.
type UserFollow struct {
	FollowerID uint      `gorm:"primaryKey;autoIncrement:false" json:"follower_id"`
	FolloweeID uint      `gorm:"primaryKey;autoIncrement:false;index" json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (UserFollow) TableName() string {
	return "user_follows"
}

// RefreshToken is one entry of a user's refresh-token allow-list.
// Only the SHA-256 of the token is stored.
type RefreshToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_refresh_user_token" json:"user_id"`
	TokenHash string    `gorm:"size:64;not null;uniqueIndex:idx_refresh_user_token" json:"-"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
