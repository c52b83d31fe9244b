package models

import "time"

// PresenceRecord tracks a user's online state. Single-writer: only the
// user's own client upserts its row; any viewer may read it.
type PresenceRecord struct {
	UserID   uint      `json:"user_id" gorm:"primaryKey"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

// UnreadBadgeState is the process-wide derived badge projection.
type UnreadBadgeState struct {
	HasUnreadNotifications bool  `json:"has_unread_notifications"`
	UnreadMessageCount     int64 `json:"unread_message_count"`
}
