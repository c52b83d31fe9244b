package models

import "time"

// Message represents a direct message between two connected users
type Message struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	SenderID   uint      `json:"sender_id" gorm:"index"`
	ReceiverID uint      `json:"receiver_id" gorm:"index"`
	Content    string    `json:"content"`
	IsRead     bool      `json:"is_read" gorm:"default:false;index"`
	CreatedAt  time.Time `json:"created_at" gorm:"index"`

	// ClientID and Pending are local-only: a message created optimistically
	// carries a temporary client id until the server-confirmed row replaces
	// it in the same transcript slot.
	ClientID string `json:"client_id,omitempty" gorm:"-"`
	Pending  bool   `json:"pending,omitempty" gorm:"-"`
}

// Conversation is a derived projection, never stored: the peer, the
// latest message and the unread count for one chat thread.
type Conversation struct {
	Peer        ProfileCompact `json:"peer"`
	LastMessage *Message       `json:"last_message,omitempty"`
	UnreadCount int64          `json:"unread_count"`
}

// SendMessageRequest defines the payload for sending a message
type SendMessageRequest struct {
	ReceiverID uint   `json:"receiver_id" validate:"required"`
	Content    string `json:"content" validate:"required,min=1,max=2000"`
}
