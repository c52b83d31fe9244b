package notifications

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/echogram/echogram/internal/models"
)

func connAt(id uint, requester uint, at time.Time) models.Connection {
	return models.Connection{
		Model:       gorm.Model{ID: id, CreatedAt: at},
		RequesterID: requester,
		ReceiverID:  7,
		Status:      models.ConnectionPending,
	}
}

func TestMergeSortsNewestFirst(t *testing.T) {
	now := time.Now()
	stored := []models.Notification{
		{ID: 1, Type: models.NotificationLikePost, ActorID: 2, ReferenceID: "p1", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: 2, Type: models.NotificationComment, ActorID: 3, ReferenceID: "p1", CreatedAt: now.Add(-time.Minute)},
	}
	pending := []models.Connection{connAt(40, 5, now.Add(-time.Hour))}

	views := Merge(stored, pending)
	require.Len(t, views, 3)
	assert.Equal(t, models.NotificationComment, views[0].Type())
	assert.Equal(t, models.NotificationRequestReceived, views[1].Type())
	assert.Equal(t, models.NotificationLikePost, views[2].Type())
}

func TestMergeStoredWinsOverSynthesized(t *testing.T) {
	now := time.Now()
	stored := []models.Notification{
		{ID: 1, Type: models.NotificationRequestReceived, ActorID: 5, ReferenceID: "40", CreatedAt: now},
	}
	pending := []models.Connection{connAt(40, 5, now.Add(-time.Minute))}

	views := Merge(stored, pending)
	require.Len(t, views, 1)
	assert.NotNil(t, views[0].Stored)
	assert.Nil(t, views[0].Synthesized)
}

func TestMergeSynthesizesUnmatchedRequests(t *testing.T) {
	now := time.Now()
	pending := []models.Connection{connAt(41, 9, now)}

	views := Merge(nil, pending)
	require.Len(t, views, 1)
	assert.Equal(t, uint(9), views[0].ActorID())
	assert.False(t, views[0].IsRead())
}

func TestMergeSkipsNonPendingConnections(t *testing.T) {
	conn := connAt(42, 9, time.Now())
	conn.Status = models.ConnectionAccepted

	views := Merge(nil, []models.Connection{conn})
	assert.Empty(t, views)
}

func TestMergeDedupesRepeatedStoredRows(t *testing.T) {
	now := time.Now()
	stored := []models.Notification{
		{ID: 1, Type: models.NotificationLikePost, ActorID: 2, ReferenceID: "p1", CreatedAt: now},
		{ID: 2, Type: models.NotificationLikePost, ActorID: 2, ReferenceID: "p1", CreatedAt: now.Add(-time.Minute)},
	}

	views := Merge(stored, nil)
	require.Len(t, views, 1)
	assert.Equal(t, uint(1), views[0].Stored.ID)
}
