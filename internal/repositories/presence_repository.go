package repositories

import (
	"context"

	"github.com/echogram/echogram/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PresenceRepository defines the interface for presence data operations
type PresenceRepository interface {
	Upsert(ctx context.Context, record *models.PresenceRecord) error
	Get(ctx context.Context, userID uint) (*models.PresenceRecord, error)
}

// PostgresPresenceRepository implements PresenceRepository for PostgreSQL
type PostgresPresenceRepository struct {
	db *gorm.DB
}

// NewPostgresPresenceRepository creates a new PostgresPresenceRepository
func NewPostgresPresenceRepository(db *gorm.DB) *PostgresPresenceRepository {
	return &PostgresPresenceRepository{db: db}
}

// Upsert writes the user's presence row, replacing a prior one
func (r *PostgresPresenceRepository) Upsert(ctx context.Context, record *models.PresenceRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_online", "last_seen"}),
	}).Create(record).Error
}

// Get retrieves a user's presence row
func (r *PostgresPresenceRepository) Get(ctx context.Context, userID uint) (*models.PresenceRecord, error) {
	var record models.PresenceRecord
	if err := r.db.WithContext(ctx).First(&record, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
