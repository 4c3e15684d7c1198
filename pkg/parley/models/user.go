package models

import (
	"time"
)

// User represents a user in the system.
// Users are created by the signup service; this backend only reads and
// links them.
type User struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Username   string    `gorm:"uniqueIndex;not null" json:"username"`
	FullName   string    `gorm:"not null" json:"full_name"`
	Email      string    `gorm:"uniqueIndex;not null" json:"email"`
	ProfilePic string    `json:"profile_pic"`
	Private    bool      `gorm:"default:false" json:"private"` // Private users can only be reached through invites

	// Relationships
	Groups []UserGroup `gorm:"foreignKey:UserID" json:"-"`
}

// UserGroup is the user-side membership projection: one row per group id
// in a user's group list. It must always mirror GroupMember.
type UserGroup struct {
	UserID    uint      `gorm:"primaryKey" json:"user_id"`
	GroupID   uint      `gorm:"primaryKey;index" json:"group_id"`
	CreatedAt time.Time `json:"created_at"`
}
