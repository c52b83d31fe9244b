package repositories

import (
	"context"

	"github.com/echogram/echogram/internal/models"
	"gorm.io/gorm"
)

// ReactionRepository defines the interface for reaction data operations
type ReactionRepository interface {
	CreateReaction(ctx context.Context, reaction *models.Reaction) error
	DeleteForPostUser(ctx context.Context, postID string, userID uint) (int64, error)
	GetSummary(ctx context.Context, postID string, userID uint) (*models.ReactionSummary, error)
	GetReactionsByPostID(ctx context.Context, postID string) ([]models.Reaction, error)
	DeleteByPostID(ctx context.Context, postID string) error
}

// PostgresReactionRepository implements ReactionRepository for PostgreSQL
type PostgresReactionRepository struct {
	db *gorm.DB
}

// NewPostgresReactionRepository creates a new PostgresReactionRepository
func NewPostgresReactionRepository(db *gorm.DB) *PostgresReactionRepository {
	return &PostgresReactionRepository{db: db}
}

// CreateReaction inserts a reaction row
func (r *PostgresReactionRepository) CreateReaction(ctx context.Context, reaction *models.Reaction) error {
	return r.db.WithContext(ctx).Create(reaction).Error
}

// DeleteForPostUser removes any reaction rows for (user, post) and
// reports how many were deleted. Deleting zero rows is not an error:
// toggles always delete before inserting.
func (r *PostgresReactionRepository) DeleteForPostUser(ctx context.Context, postID string, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&models.Reaction{})
	return res.RowsAffected, res.Error
}

// GetSummary recomputes the collapsed reaction view from the
// authoritative member list
func (r *PostgresReactionRepository) GetSummary(ctx context.Context, postID string, userID uint) (*models.ReactionSummary, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Reaction{}).
		Where("post_id = ?", postID).
		Count(&count).Error; err != nil {
		return nil, err
	}

	summary := &models.ReactionSummary{PostID: postID, Count: count}

	var own models.Reaction
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		First(&own).Error
	if err == nil {
		summary.DidReact = true
		summary.Kind = own.Kind
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	return summary, nil
}

// GetReactionsByPostID retrieves all reactions for a post
func (r *PostgresReactionRepository) GetReactionsByPostID(ctx context.Context, postID string) ([]models.Reaction, error) {
	var reactions []models.Reaction
	if err := r.db.WithContext(ctx).Where("post_id = ?", postID).Find(&reactions).Error; err != nil {
		return nil, err
	}
	return reactions, nil
}

// DeleteByPostID removes all reactions for a post, used when the post is deleted
func (r *PostgresReactionRepository) DeleteByPostID(ctx context.Context, postID string) error {
	return r.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&models.Reaction{}).Error
}
