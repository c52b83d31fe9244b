package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Echo represents an ephemeral echo stored in MongoDB; it disappears
// once ExpiresAt passes.
type Echo struct {
	ID        primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	UserID    uint               `json:"user_id" bson:"user_id"`
	Items     []EchoItem         `json:"items" bson:"items"`
	ExpiresAt time.Time          `json:"expires_at" bson:"expires_at"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// EchoItem represents a single item in an echo
type EchoItem struct {
	ID        string    `json:"id" bson:"id"`
	Type      string    `json:"type" bson:"type"` // "image" or "video"
	URL       string    `json:"url" bson:"url"`
	Duration  int       `json:"duration" bson:"duration"` // seconds
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// EchoSeen tracks which echoes a user has seen (PostgreSQL)
type EchoSeen struct {
	ID     uint      `json:"id" gorm:"primaryKey"`
	EchoID string    `json:"echo_id" gorm:"index;uniqueIndex:idx_echo_user_seen"`
	UserID uint      `json:"user_id" gorm:"index;uniqueIndex:idx_echo_user_seen"`
	SeenAt time.Time `json:"seen_at"`
}

// EchoReaction tracks reactions to echoes (PostgreSQL)
type EchoReaction struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	EchoID    string    `json:"echo_id" gorm:"index"`
	UserID    uint      `json:"user_id" gorm:"index"`
	Reaction  string    `json:"reaction"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateEchoRequest defines the payload for creating an echo
type CreateEchoRequest struct {
	MediaURL string `json:"media_url" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=image video"`
	Duration int    `json:"duration" validate:"omitempty,min=1,max=30"`
}
