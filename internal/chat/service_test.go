package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/echogram/echogram/internal/connections"
	"github.com/echogram/echogram/internal/models"
	"github.com/echogram/echogram/internal/signal"
	"github.com/echogram/echogram/pkg/apperrors"
)

// pairConnectionRepo serves a single fixed pair state.
type pairConnectionRepo struct {
	conn *models.Connection
}

func (r *pairConnectionRepo) GetForPair(ctx context.Context, a, b uint) (*models.Connection, error) {
	return r.conn, nil
}
func (r *pairConnectionRepo) CreatePending(ctx context.Context, requesterID, receiverID uint) (*models.Connection, error) {
	return nil, errors.New("not implemented")
}
func (r *pairConnectionRepo) Accept(ctx context.Context, connectionID uint) error { return nil }
func (r *pairConnectionRepo) Delete(ctx context.Context, connectionID uint) error { return nil }
func (r *pairConnectionRepo) Block(ctx context.Context, requesterID, receiverID uint) error {
	return nil
}
func (r *pairConnectionRepo) GetByID(ctx context.Context, connectionID uint) (*models.Connection, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *pairConnectionRepo) ListPendingReceived(ctx context.Context, userID uint) ([]models.Connection, error) {
	return nil, nil
}
func (r *pairConnectionRepo) ListAccepted(ctx context.Context, userID uint) ([]models.Connection, error) {
	return nil, nil
}

// recordingMessageRepo persists sent messages and counts mark-read
// calls; only the methods the chat service touches do real work.
type recordingMessageRepo struct {
	mu         sync.Mutex
	created    []models.Message
	failCreate error
	markedRead int
}

func (r *recordingMessageRepo) CreateMessage(ctx context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate != nil {
		return r.failCreate
	}
	m.ID = uint(len(r.created) + 1)
	r.created = append(r.created, *m)
	return nil
}
func (r *recordingMessageRepo) GetTranscript(ctx context.Context, userID, peerID uint, limit int) ([]models.Message, error) {
	return nil, nil
}
func (r *recordingMessageRepo) MarkConversationRead(ctx context.Context, senderID, receiverID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markedRead++
	return nil
}
func (r *recordingMessageRepo) UnreadCount(ctx context.Context, receiverID uint) (int64, error) {
	return 0, nil
}
func (r *recordingMessageRepo) UnreadCountFrom(ctx context.Context, receiverID, senderID uint) (int64, error) {
	return 0, nil
}
func (r *recordingMessageRepo) GetConversationPeers(ctx context.Context, userID uint) ([]uint, error) {
	return nil, nil
}
func (r *recordingMessageRepo) GetLastMessage(ctx context.Context, userID, peerID uint) (*models.Message, error) {
	return nil, nil
}

// recordingTranscript captures the optimistic lifecycle calls.
type recordingTranscript struct {
	appended  []models.Message
	confirmed []string
	removed   []string
}

func (r *recordingTranscript) AppendPending(m models.Message) { r.appended = append(r.appended, m) }
func (r *recordingTranscript) ConfirmPending(clientID string, confirmed models.Message) {
	r.confirmed = append(r.confirmed, clientID)
}
func (r *recordingTranscript) RemovePending(clientID string) { r.removed = append(r.removed, clientID) }

func newChatFixture(t *testing.T, connected bool) (*Service, *recordingMessageRepo, *recordingTranscript) {
	t.Helper()
	var conn *models.Connection
	if connected {
		conn = &models.Connection{
			Model:       gorm.Model{ID: 1},
			RequesterID: 1,
			ReceiverID:  2,
			Status:      models.ConnectionAccepted,
		}
	}
	bus, err := signal.NewBus(0)
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })

	msgs := &recordingMessageRepo{}
	transcript := &recordingTranscript{}
	conns := connections.NewService(1, &pairConnectionRepo{conn: conn}, &recordingNotificationRepo{}, bus)
	svc := NewService(1, 2, msgs, conns, transcript, bus)
	return svc, msgs, transcript
}

type recordingNotificationRepo struct{}

func (recordingNotificationRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	return nil
}
func (recordingNotificationRepo) GetByUserID(ctx context.Context, userID uint, limit int) ([]models.Notification, error) {
	return nil, nil
}
func (recordingNotificationRepo) GetUnreadCount(ctx context.Context, userID uint) (int64, error) {
	return 0, nil
}
func (recordingNotificationRepo) MarkAsRead(ctx context.Context, notificationID uint) error {
	return nil
}
func (recordingNotificationRepo) MarkAllAsRead(ctx context.Context, userID uint) error { return nil }

func TestSendConfirmsPendingMessage(t *testing.T) {
	svc, msgs, transcript := newChatFixture(t, true)

	sent, err := svc.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, uint(1), sent.ID)

	require.Len(t, transcript.appended, 1)
	pending := transcript.appended[0]
	assert.True(t, pending.Pending)
	assert.NotEmpty(t, pending.ClientID)
	assert.Equal(t, []string{pending.ClientID}, transcript.confirmed)
	assert.Empty(t, transcript.removed)

	msgs.mu.Lock()
	require.Len(t, msgs.created, 1)
	assert.Equal(t, "hello", msgs.created[0].Content)
	msgs.mu.Unlock()
}

func TestSendRollsBackOnRemoteFailure(t *testing.T) {
	svc, msgs, transcript := newChatFixture(t, true)
	msgs.failCreate = errors.New("connection refused")

	_, err := svc.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnavailable, apperrors.CodeOf(err))

	require.Len(t, transcript.appended, 1)
	assert.Equal(t, []string{transcript.appended[0].ClientID}, transcript.removed)
	assert.Empty(t, transcript.confirmed)
}

func TestSendRequiresConnection(t *testing.T) {
	svc, _, transcript := newChatFixture(t, false)

	_, err := svc.Send(context.Background(), "hello")
	assert.Equal(t, apperrors.CodeFailedPrecondition, apperrors.CodeOf(err))
	assert.Empty(t, transcript.appended)
}

func TestSendRejectsEmptyContent(t *testing.T) {
	svc, _, _ := newChatFixture(t, true)

	_, err := svc.Send(context.Background(), "")
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
}

func TestMarkReadSignalsBadgeRecompute(t *testing.T) {
	svc, msgs, _ := newChatFixture(t, true)

	require.NoError(t, svc.MarkRead(context.Background()))
	msgs.mu.Lock()
	assert.Equal(t, 1, msgs.markedRead)
	msgs.mu.Unlock()
}
