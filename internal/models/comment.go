package models

import "gorm.io/gorm"

// Comment represents a comment on a post
type Comment struct {
	gorm.Model
	PostID  string `json:"post_id" gorm:"index"` // ID of the post (MongoDB ObjectID as string)
	UserID  uint   `json:"user_id" gorm:"index"`
	Content string `json:"content" validate:"required,min=1,max=500"`

	// Local-only, mirrors Message: true until the server-confirmed row
	// replaces the optimistic one.
	ClientID string `json:"client_id,omitempty" gorm:"-"`
	Pending  bool   `json:"pending,omitempty" gorm:"-"`
}

// CreateCommentRequest defines the payload for creating a comment
type CreateCommentRequest struct {
	PostID  string `json:"post_id" validate:"required"`
	Content string `json:"content" validate:"required,min=1,max=500"`
}
