package models

import (
	"time"
)

// DirectMessage is a message between two users
type DirectMessage struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	SenderID   uint      `gorm:"not null;index:idx_dm_pair" json:"sender_id"`
	ReceiverID uint      `gorm:"not null;index:idx_dm_pair" json:"receiver_id"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	IsRead     bool      `gorm:"not null;default:false" json:"is_read"`
}

// GroupMessage is a message posted to a group.
// ReadBy is filled from GroupMessageRead rows when a thread is fetched.
type GroupMessage struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	SenderID  uint      `gorm:"not null" json:"sender_id"`
	GroupID   uint      `gorm:"not null;index" json:"group_id"`
	Text      string    `json:"text,omitempty"`
	Image     string    `json:"image,omitempty"`

	ReadBy []uint `gorm:"-" json:"read_by"`
}

// GroupMessageRead records that a user has fetched a group message.
// Rows are only ever inserted, never removed, except when the group is deleted.
type GroupMessageRead struct {
	MessageID uint      `gorm:"primaryKey" json:"message_id"`
	UserID    uint      `gorm:"primaryKey;index" json:"user_id"`
	GroupID   uint      `gorm:"not null;index" json:"group_id"`
	CreatedAt time.Time `json:"created_at"`
}
