package models

import (
	"time"
)

// Visibility controls whether a group can be joined without an invite
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Group represents a chat group with a single admin
type Group struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Name        string     `gorm:"not null" json:"name"`
	Description string     `gorm:"size:200" json:"description"`
	Photo       string     `json:"photo"`
	AdminID     uint       `gorm:"not null;index" json:"admin_id"`
	Visibility  Visibility `gorm:"type:varchar(20);not null;default:'public'" json:"visibility"`

	// Relationships
	Members []GroupMember `gorm:"foreignKey:GroupID" json:"-"`
}

// GroupMember is the group-side membership projection: one row per member
// id in a group's member list. It must always mirror UserGroup.
type GroupMember struct {
	GroupID   uint      `gorm:"primaryKey" json:"group_id"`
	UserID    uint      `gorm:"primaryKey;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
