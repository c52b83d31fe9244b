package repositories

import (
	"context"

	"github.com/echogram/echogram/internal/models"
	"gorm.io/gorm"
)

// MessageRepository defines the interface for message data operations
type MessageRepository interface {
	CreateMessage(ctx context.Context, m *models.Message) error
	GetTranscript(ctx context.Context, userID, peerID uint, limit int) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, senderID, receiverID uint) error
	UnreadCount(ctx context.Context, receiverID uint) (int64, error)
	UnreadCountFrom(ctx context.Context, receiverID, senderID uint) (int64, error)
	GetConversationPeers(ctx context.Context, userID uint) ([]uint, error)
	GetLastMessage(ctx context.Context, userID, peerID uint) (*models.Message, error)
}

// PostgresMessageRepository implements MessageRepository for PostgreSQL
type PostgresMessageRepository struct {
	db *gorm.DB
}

// NewPostgresMessageRepository creates a new PostgresMessageRepository
func NewPostgresMessageRepository(db *gorm.DB) *PostgresMessageRepository {
	return &PostgresMessageRepository{db: db}
}

// CreateMessage inserts a new message row
func (r *PostgresMessageRepository) CreateMessage(ctx context.Context, m *models.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// GetTranscript retrieves the messages between two users, oldest first
func (r *PostgresMessageRepository) GetTranscript(ctx context.Context, userID, peerID uint, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userID, peerID, peerID, userID).
		Order("created_at ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkConversationRead flips is_read on all unread messages from sender to
// receiver. Idempotent: already-read rows are untouched.
func (r *PostgresMessageRepository) MarkConversationRead(ctx context.Context, senderID, receiverID uint) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND is_read = false", senderID, receiverID).
		Update("is_read", true).Error
}

// UnreadCount returns the authoritative unread message count:
// count(receiver_id = me AND is_read = false).
func (r *PostgresMessageRepository) UnreadCount(ctx context.Context, receiverID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("receiver_id = ? AND is_read = false", receiverID).
		Count(&count).Error
	return count, err
}

// UnreadCountFrom returns the unread count scoped to one sending peer
func (r *PostgresMessageRepository) UnreadCountFrom(ctx context.Context, receiverID, senderID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = false", receiverID, senderID).
		Count(&count).Error
	return count, err
}

// GetConversationPeers returns the distinct user IDs this user has
// exchanged messages with
func (r *PostgresMessageRepository) GetConversationPeers(ctx context.Context, userID uint) ([]uint, error) {
	var sentTo, receivedFrom []uint
	if err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("sender_id = ?", userID).
		Distinct().Pluck("receiver_id", &sentTo).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("receiver_id = ?", userID).
		Distinct().Pluck("sender_id", &receivedFrom).Error; err != nil {
		return nil, err
	}

	seen := make(map[uint]bool, len(sentTo)+len(receivedFrom))
	peers := make([]uint, 0, len(sentTo)+len(receivedFrom))
	for _, id := range append(sentTo, receivedFrom...) {
		if !seen[id] {
			seen[id] = true
			peers = append(peers, id)
		}
	}
	return peers, nil
}

// GetLastMessage retrieves the most recent message between two users
func (r *PostgresMessageRepository) GetLastMessage(ctx context.Context, userID, peerID uint) (*models.Message, error) {
	var m models.Message
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userID, peerID, peerID, userID).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}
