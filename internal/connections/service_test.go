package connections

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/echogram/echogram/internal/models"
	"github.com/echogram/echogram/internal/signal"
	"github.com/echogram/echogram/pkg/apperrors"
)

// memConnectionRepo mirrors the Postgres repository's pair semantics:
// one live row per unordered pair, delete-before-insert, blocked rows
// reject new requests.
type memConnectionRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*models.Connection
}

func newMemConnectionRepo() *memConnectionRepo {
	return &memConnectionRepo{nextID: 1, rows: make(map[uint]*models.Connection)}
}

func (r *memConnectionRepo) pairLocked(a, b uint) *models.Connection {
	for _, c := range r.rows {
		if (c.RequesterID == a && c.ReceiverID == b) || (c.RequesterID == b && c.ReceiverID == a) {
			return c
		}
	}
	return nil
}

func (r *memConnectionRepo) GetForPair(ctx context.Context, userA, userB uint) (*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.pairLocked(userA, userB); c != nil {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *memConnectionRepo) CreatePending(ctx context.Context, requesterID, receiverID uint) (*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.pairLocked(requesterID, receiverID); c != nil {
		if c.Status == models.ConnectionBlocked {
			return nil, apperrors.Conflict("connection is blocked")
		}
		delete(r.rows, c.ID)
	}
	conn := &models.Connection{
		Model:       gorm.Model{ID: r.nextID},
		RequesterID: requesterID,
		ReceiverID:  receiverID,
		Status:      models.ConnectionPending,
	}
	r.nextID++
	r.rows[conn.ID] = conn
	cp := *conn
	return &cp, nil
}

func (r *memConnectionRepo) Accept(ctx context.Context, connectionID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rows[connectionID]; ok && c.Status == models.ConnectionPending {
		c.Status = models.ConnectionAccepted
	}
	return nil
}

func (r *memConnectionRepo) Delete(ctx context.Context, connectionID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, connectionID)
	return nil
}

func (r *memConnectionRepo) Block(ctx context.Context, requesterID, receiverID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.pairLocked(requesterID, receiverID); c != nil {
		delete(r.rows, c.ID)
	}
	conn := &models.Connection{
		Model:       gorm.Model{ID: r.nextID},
		RequesterID: requesterID,
		ReceiverID:  receiverID,
		Status:      models.ConnectionBlocked,
	}
	r.nextID++
	r.rows[conn.ID] = conn
	return nil
}

func (r *memConnectionRepo) GetByID(ctx context.Context, connectionID uint) (*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rows[connectionID]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memConnectionRepo) ListPendingReceived(ctx context.Context, userID uint) ([]models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Connection
	for _, c := range r.rows {
		if c.ReceiverID == userID && c.Status == models.ConnectionPending {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memConnectionRepo) ListAccepted(ctx context.Context, userID uint) ([]models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Connection
	for _, c := range r.rows {
		if c.Status == models.ConnectionAccepted && (c.RequesterID == userID || c.ReceiverID == userID) {
			out = append(out, *c)
		}
	}
	return out, nil
}

// memNotificationRepo records created rows.
type memNotificationRepo struct {
	mu   sync.Mutex
	rows []models.Notification
}

func (r *memNotificationRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = uint(len(r.rows) + 1)
	r.rows = append(r.rows, *n)
	return nil
}

func (r *memNotificationRepo) GetByUserID(ctx context.Context, userID uint, limit int) ([]models.Notification, error) {
	return nil, nil
}

func (r *memNotificationRepo) GetUnreadCount(ctx context.Context, userID uint) (int64, error) {
	return 0, nil
}

func (r *memNotificationRepo) MarkAsRead(ctx context.Context, notificationID uint) error { return nil }

func (r *memNotificationRepo) MarkAllAsRead(ctx context.Context, userID uint) error { return nil }

func newTestServices(t *testing.T) (alice, bob *Service, repo *memConnectionRepo, notifs *memNotificationRepo) {
	t.Helper()
	repo = newMemConnectionRepo()
	notifs = &memNotificationRepo{}
	bus, err := signal.NewBus(0)
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })
	alice = NewService(1, repo, notifs, bus)
	bob = NewService(2, repo, notifs, bus)
	return alice, bob, repo, notifs
}

func TestRequestThenAccept(t *testing.T) {
	alice, bob, _, notifs := newTestServices(t)
	ctx := context.Background()

	conn, err := alice.Request(ctx, 2)
	require.NoError(t, err)

	state, err := alice.StateWith(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.StateSentPending, state)

	state, err = bob.StateWith(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StateReceivedPending, state)

	require.NoError(t, bob.Accept(ctx, conn.ID))

	for _, svc := range []*Service{alice, bob} {
		connected, err := svc.AreConnected(ctx, 3-svc.userID)
		require.NoError(t, err)
		assert.True(t, connected)
	}

	notifs.mu.Lock()
	defer notifs.mu.Unlock()
	require.Len(t, notifs.rows, 2)
	assert.Equal(t, models.NotificationRequestReceived, notifs.rows[0].Type)
	assert.Equal(t, models.NotificationRequestAccepted, notifs.rows[1].Type)
	assert.Equal(t, uint(1), notifs.rows[1].UserID)
}

func TestRequestToSelfRejected(t *testing.T) {
	alice, _, _, _ := newTestServices(t)

	_, err := alice.Request(context.Background(), 1)
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
}

func TestDoubleRequestLeavesOnePendingRow(t *testing.T) {
	alice, _, repo, _ := newTestServices(t)
	ctx := context.Background()

	_, err := alice.Request(ctx, 2)
	require.NoError(t, err)
	_, err = alice.Request(ctx, 2)
	require.NoError(t, err)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Len(t, repo.rows, 1)
}

func TestDeclineDeletesRowAndAllowsReRequest(t *testing.T) {
	alice, bob, _, _ := newTestServices(t)
	ctx := context.Background()

	conn, err := alice.Request(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, bob.Decline(ctx, conn.ID))

	state, err := alice.StateWith(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.StateNone, state)

	_, err = alice.Request(ctx, 2)
	assert.NoError(t, err)
}

func TestCancelOnlyBySender(t *testing.T) {
	alice, bob, _, _ := newTestServices(t)
	ctx := context.Background()

	conn, err := alice.Request(ctx, 2)
	require.NoError(t, err)

	err = bob.Cancel(ctx, conn.ID)
	assert.Equal(t, apperrors.CodeFailedPrecondition, apperrors.CodeOf(err))

	assert.NoError(t, alice.Cancel(ctx, conn.ID))
}

func TestAcceptOnlyByReceiver(t *testing.T) {
	alice, _, _, _ := newTestServices(t)
	ctx := context.Background()

	conn, err := alice.Request(ctx, 2)
	require.NoError(t, err)

	err = alice.Accept(ctx, conn.ID)
	assert.Equal(t, apperrors.CodeFailedPrecondition, apperrors.CodeOf(err))
}

func TestUnfriendRequiresAcceptedConnection(t *testing.T) {
	alice, bob, _, _ := newTestServices(t)
	ctx := context.Background()

	err := alice.Unfriend(ctx, 2)
	assert.Equal(t, apperrors.CodeFailedPrecondition, apperrors.CodeOf(err))

	conn, err := alice.Request(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, bob.Accept(ctx, conn.ID))
	require.NoError(t, alice.Unfriend(ctx, 2))

	connected, err := alice.AreConnected(ctx, 2)
	require.NoError(t, err)
	assert.False(t, connected)
}

func TestBlockIsStickyAgainstNewRequests(t *testing.T) {
	alice, bob, _, _ := newTestServices(t)
	ctx := context.Background()

	require.NoError(t, bob.Block(ctx, 1))

	state, err := alice.StateWith(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.StateBlocked, state)

	_, err = alice.Request(ctx, 2)
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))
}
