package models

import "time"

// Reaction represents a reaction on a post. The unique index backs the
// "at most one reaction per user per post" rule; writers additionally
// delete any existing row for the pair before inserting.
type Reaction struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	PostID    string    `json:"post_id" gorm:"index;uniqueIndex:idx_post_user_reaction"` // MongoDB ObjectID as string
	UserID    uint      `json:"user_id" gorm:"index;uniqueIndex:idx_post_user_reaction"`
	Kind      string    `json:"kind" gorm:"size:20"` // "like", "fire", "heart", ...
	CreatedAt time.Time `json:"created_at"`
}

// ReactionSummary collapses a post's reaction set for display. Count is
// recomputed from the authoritative member list once a toggle settles,
// never trusted as a bare incremented integer past the optimistic window.
type ReactionSummary struct {
	PostID   string `json:"post_id"`
	Count    int64  `json:"count"`
	DidReact bool   `json:"did_react"`
	Kind     string `json:"kind,omitempty"` // current user's reaction kind, if any
}

// ToggleReactionRequest defines the payload for toggling a reaction
type ToggleReactionRequest struct {
	PostID string `json:"post_id" validate:"required"`
	Kind   string `json:"kind" validate:"required,oneof=like fire heart laugh sad"`
}
