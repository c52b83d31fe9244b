package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/echogram/echogram/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
)

// EchoRepository defines the interface for echo operations. Echo bodies
// live in MongoDB; seen-tracking and reactions live in PostgreSQL.
type EchoRepository interface {
	CreateEcho(ctx context.Context, echo *models.Echo) error
	GetEchoByID(ctx context.Context, id string) (*models.Echo, error)
	GetActiveEchoesByUserIDs(ctx context.Context, userIDs []uint) ([]models.Echo, error)
	DeleteExpiredEchoes(ctx context.Context) error
	MarkSeen(ctx context.Context, seen *models.EchoSeen) error
	GetSeenEchoIDs(ctx context.Context, userID uint, echoIDs []string) (map[string]bool, error)
	AddReaction(ctx context.Context, reaction *models.EchoReaction) error
}

type echoRepository struct {
	mongoCollection *mongo.Collection
	pgDB            *gorm.DB
}

// NewEchoRepository creates an EchoRepository over both stores
func NewEchoRepository(mongoDB *mongo.Database, pgDB *gorm.DB) EchoRepository {
	return &echoRepository{
		mongoCollection: mongoDB.Collection("echoes"),
		pgDB:            pgDB,
	}
}

func (r *echoRepository) CreateEcho(ctx context.Context, echo *models.Echo) error {
	echo.ID = primitive.NewObjectID()
	echo.CreatedAt = time.Now()
	echo.ExpiresAt = time.Now().Add(24 * time.Hour)
	_, err := r.mongoCollection.InsertOne(ctx, echo)
	return err
}

func (r *echoRepository) GetEchoByID(ctx context.Context, id string) (*models.Echo, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid echo ID format")
	}
	var echo models.Echo
	if err := r.mongoCollection.FindOne(ctx, bson.M{"_id": objID}).Decode(&echo); err != nil {
		return nil, err
	}
	return &echo, nil
}

func (r *echoRepository) GetActiveEchoesByUserIDs(ctx context.Context, userIDs []uint) ([]models.Echo, error) {
	filter := bson.M{
		"user_id":    bson.M{"$in": userIDs},
		"expires_at": bson.M{"$gt": time.Now()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.mongoCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var echoes []models.Echo
	if err = cursor.All(ctx, &echoes); err != nil {
		return nil, err
	}
	return echoes, nil
}

func (r *echoRepository) DeleteExpiredEchoes(ctx context.Context) error {
	_, err := r.mongoCollection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": time.Now()}})
	return err
}

// MarkSeen records that a user has viewed an echo. Re-marking is a no-op
// thanks to the unique (echo, user) index.
func (r *echoRepository) MarkSeen(ctx context.Context, seen *models.EchoSeen) error {
	seen.SeenAt = time.Now()
	err := r.pgDB.WithContext(ctx).Create(seen).Error
	if err != nil && r.pgDB.WithContext(ctx).
		Where("echo_id = ? AND user_id = ?", seen.EchoID, seen.UserID).
		First(&models.EchoSeen{}).Error == nil {
		return nil
	}
	return err
}

func (r *echoRepository) GetSeenEchoIDs(ctx context.Context, userID uint, echoIDs []string) (map[string]bool, error) {
	var seen []models.EchoSeen
	err := r.pgDB.WithContext(ctx).
		Where("user_id = ? AND echo_id IN ?", userID, echoIDs).
		Find(&seen).Error
	if err != nil {
		return nil, err
	}
	result := make(map[string]bool, len(seen))
	for _, s := range seen {
		result[s.EchoID] = true
	}
	return result, nil
}

func (r *echoRepository) AddReaction(ctx context.Context, reaction *models.EchoReaction) error {
	reaction.CreatedAt = time.Now()
	return r.pgDB.WithContext(ctx).Create(reaction).Error
}
