package repositories

import (
	"context"

	"github.com/echogram/echogram/pkg/apperrors"

	"github.com/echogram/echogram/internal/models"
	"gorm.io/gorm"
)

// ConnectionRepository defines the interface for connection data operations
type ConnectionRepository interface {
	GetForPair(ctx context.Context, userA, userB uint) (*models.Connection, error)
	CreatePending(ctx context.Context, requesterID, receiverID uint) (*models.Connection, error)
	Accept(ctx context.Context, connectionID uint) error
	Delete(ctx context.Context, connectionID uint) error
	Block(ctx context.Context, requesterID, receiverID uint) error
	GetByID(ctx context.Context, connectionID uint) (*models.Connection, error)
	ListPendingReceived(ctx context.Context, userID uint) ([]models.Connection, error)
	ListAccepted(ctx context.Context, userID uint) ([]models.Connection, error)
}

// PostgresConnectionRepository implements ConnectionRepository for PostgreSQL
type PostgresConnectionRepository struct {
	db *gorm.DB
}

// NewPostgresConnectionRepository creates a new PostgresConnectionRepository
func NewPostgresConnectionRepository(db *gorm.DB) *PostgresConnectionRepository {
	return &PostgresConnectionRepository{db: db}
}

// GetForPair retrieves the live connection row for an unordered user pair,
// nil when none exists
func (r *PostgresConnectionRepository) GetForPair(ctx context.Context, userA, userB uint) (*models.Connection, error) {
	var conn models.Connection
	err := r.db.WithContext(ctx).
		Where("(requester_id = ? AND receiver_id = ?) OR (requester_id = ? AND receiver_id = ?)",
			userA, userB, userB, userA).
		First(&conn).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// CreatePending inserts a new pending request. To keep at most one live
// connection per unordered pair, even when both sides race to request
// simultaneously, any prior non-blocked row for the pair is deleted
// first, inside one transaction.
func (r *PostgresConnectionRepository) CreatePending(ctx context.Context, requesterID, receiverID uint) (*models.Connection, error) {
	conn := &models.Connection{
		RequesterID: requesterID,
		ReceiverID:  receiverID,
		Status:      models.ConnectionPending,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Connection
		err := tx.Where("(requester_id = ? AND receiver_id = ?) OR (requester_id = ? AND receiver_id = ?)",
			requesterID, receiverID, receiverID, requesterID).
			First(&existing).Error
		if err == nil {
			if existing.Status == models.ConnectionBlocked {
				return apperrors.Conflict("connection is blocked")
			}
			if err := tx.Unscoped().Delete(&existing).Error; err != nil {
				return err
			}
		} else if err != gorm.ErrRecordNotFound {
			return err
		}
		return tx.Create(conn).Error
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Accept transitions a pending request to accepted
func (r *PostgresConnectionRepository) Accept(ctx context.Context, connectionID uint) error {
	return r.db.WithContext(ctx).Model(&models.Connection{}).
		Where("id = ? AND status = ?", connectionID, models.ConnectionPending).
		Update("status", models.ConnectionAccepted).Error
}

// Delete removes a connection row outright. Decline, cancel and unfriend
// all delete rather than persisting a declined status, so a re-request is
// possible immediately.
func (r *PostgresConnectionRepository) Delete(ctx context.Context, connectionID uint) error {
	return r.db.WithContext(ctx).Unscoped().Delete(&models.Connection{}, connectionID).Error
}

// Block replaces any live row for the pair with a sticky blocked row
func (r *PostgresConnectionRepository) Block(ctx context.Context, requesterID, receiverID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().
			Where("(requester_id = ? AND receiver_id = ?) OR (requester_id = ? AND receiver_id = ?)",
				requesterID, receiverID, receiverID, requesterID).
			Delete(&models.Connection{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.Connection{
			RequesterID: requesterID,
			ReceiverID:  receiverID,
			Status:      models.ConnectionBlocked,
		}).Error
	})
}

// GetByID retrieves a connection by ID
func (r *PostgresConnectionRepository) GetByID(ctx context.Context, connectionID uint) (*models.Connection, error) {
	var conn models.Connection
	if err := r.db.WithContext(ctx).First(&conn, connectionID).Error; err != nil {
		return nil, err
	}
	return &conn, nil
}

// ListPendingReceived retrieves the pending requests addressed to a user
func (r *PostgresConnectionRepository) ListPendingReceived(ctx context.Context, userID uint) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.WithContext(ctx).
		Where("receiver_id = ? AND status = ?", userID, models.ConnectionPending).
		Order("created_at DESC").
		Find(&conns).Error
	return conns, err
}

// ListAccepted retrieves a user's accepted connections
func (r *PostgresConnectionRepository) ListAccepted(ctx context.Context, userID uint) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.WithContext(ctx).
		Where("(requester_id = ? OR receiver_id = ?) AND status = ?", userID, userID, models.ConnectionAccepted).
		Find(&conns).Error
	return conns, err
}
