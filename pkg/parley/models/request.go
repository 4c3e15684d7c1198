package models

import (
	"time"
)

// RequestStatus is the review state shared by connection requests and group invites
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusRejected RequestStatus = "rejected"
)

// ParseDecision converts a review decision into a status.
// Only accepted and rejected are decisions; pending is not.
func ParseDecision(s string) (RequestStatus, bool) {
	switch RequestStatus(s) {
	case StatusAccepted, StatusRejected:
		return RequestStatus(s), true
	}
	return "", false
}

// ConnectionRequest represents a user-to-user connection request.
// An accepted request is the active connection between the pair.
type ConnectionRequest struct {
	ID         uint          `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	SenderID   uint          `gorm:"not null;index" json:"sender_id"`
	ReceiverID uint          `gorm:"not null;index" json:"receiver_id"`
	Status     RequestStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	// Unordered pair key, lower id first. The unique index allows a single
	// request per pair regardless of direction.
	PairLow  uint `gorm:"not null;uniqueIndex:idx_connection_pair" json:"-"`
	PairHigh uint `gorm:"not null;uniqueIndex:idx_connection_pair" json:"-"`
}

// NewConnectionRequest builds a pending request from sender to receiver
func NewConnectionRequest(senderID, receiverID uint) ConnectionRequest {
	low, high := senderID, receiverID
	if low > high {
		low, high = high, low
	}
	return ConnectionRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     StatusPending,
		PairLow:    low,
		PairHigh:   high,
	}
}

// Peer returns the other side of the request relative to userID
func (r ConnectionRequest) Peer(userID uint) uint {
	if r.SenderID == userID {
		return r.ReceiverID
	}
	return r.SenderID
}

// GroupInvite represents an admin's invitation for a user to join a group
type GroupInvite struct {
	ID         uint          `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	SenderID   uint          `gorm:"not null" json:"sender_id"`
	ReceiverID uint          `gorm:"not null;index" json:"receiver_id"`
	GroupID    uint          `gorm:"not null;index" json:"group_id"`
	Status     RequestStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
}
