package models

import "time"

// NotificationType enumerates the stored notification kinds
type NotificationType string

const (
	NotificationLikePost        NotificationType = "like_post"
	NotificationComment         NotificationType = "comment"
	NotificationRequestReceived NotificationType = "request_received"
	NotificationRequestAccepted NotificationType = "request_accepted"
	NotificationEchoReaction    NotificationType = "echo_reaction"
)

// Notification represents a stored user notification (PostgreSQL)
type Notification struct {
	ID          uint             `json:"id" gorm:"primaryKey"`
	Type        NotificationType `json:"type" gorm:"size:30;index"`
	ActorID     uint             `json:"actor_id" gorm:"index"`
	UserID      uint             `json:"user_id" gorm:"index"` // recipient
	ReferenceID string           `json:"reference_id"`         // post ID, connection ID, echo ID
	Message     string           `json:"message"`
	IsRead      bool             `json:"is_read" gorm:"default:false;index"`
	CreatedAt   time.Time        `json:"created_at" gorm:"index"`
}
