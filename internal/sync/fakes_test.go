package sync

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/echogram/echogram/internal/models"
)

// fakeMessageRepo serves canned unread counts and transcripts, and
// records mark-read calls.
type fakeMessageRepo struct {
	mu          sync.Mutex
	unread      int64
	unreadFrom  map[uint]int64
	transcript  []models.Message
	peers       []uint
	lastByPeer  map[uint]*models.Message
	markedRead  int
	failUnread  error
	failLoad    error
	fetchCalls  int
	createdRows []models.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		unreadFrom: make(map[uint]int64),
		lastByPeer: make(map[uint]*models.Message),
	}
}

func (f *fakeMessageRepo) CreateMessage(ctx context.Context, m *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = uint(len(f.createdRows) + 1)
	f.createdRows = append(f.createdRows, *m)
	return nil
}

func (f *fakeMessageRepo) GetTranscript(ctx context.Context, userID, peerID uint, limit int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLoad != nil {
		return nil, f.failLoad
	}
	out := make([]models.Message, len(f.transcript))
	copy(out, f.transcript)
	return out, nil
}

func (f *fakeMessageRepo) MarkConversationRead(ctx context.Context, senderID, receiverID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead++
	return nil
}

func (f *fakeMessageRepo) UnreadCount(ctx context.Context, receiverID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.failUnread != nil {
		return 0, f.failUnread
	}
	return f.unread, nil
}

func (f *fakeMessageRepo) UnreadCountFrom(ctx context.Context, receiverID, senderID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unreadFrom[senderID], nil
}

func (f *fakeMessageRepo) GetConversationPeers(ctx context.Context, userID uint) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint, len(f.peers))
	copy(out, f.peers)
	return out, nil
}

func (f *fakeMessageRepo) GetLastMessage(ctx context.Context, userID, peerID uint) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m := f.lastByPeer[peerID]; m != nil {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeMessageRepo) setUnread(n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unread = n
}

func (f *fakeMessageRepo) markReadCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markedRead
}

// fakeNotificationRepo serves a canned unread count.
type fakeNotificationRepo struct {
	mu     sync.Mutex
	unread int64
	rows   []models.Notification
}

func (f *fakeNotificationRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = uint(len(f.rows) + 1)
	f.rows = append(f.rows, *n)
	return nil
}

func (f *fakeNotificationRepo) GetByUserID(ctx context.Context, userID uint, limit int) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Notification, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *fakeNotificationRepo) GetUnreadCount(ctx context.Context, userID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread, nil
}

func (f *fakeNotificationRepo) MarkAsRead(ctx context.Context, notificationID uint) error {
	return nil
}

func (f *fakeNotificationRepo) MarkAllAsRead(ctx context.Context, userID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unread = 0
	return nil
}

func (f *fakeNotificationRepo) setUnread(n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unread = n
}

// fakeProfileRepo serves profiles by id.
type fakeProfileRepo struct {
	mu       sync.Mutex
	profiles map[uint]models.Profile
}

func newFakeProfileRepo(profiles ...models.Profile) *fakeProfileRepo {
	f := &fakeProfileRepo{profiles: make(map[uint]models.Profile)}
	for _, p := range profiles {
		f.profiles[p.ID] = p
	}
	return f
}

func (f *fakeProfileRepo) CreateProfile(ctx context.Context, p *models.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.ID] = *p
	return nil
}

func (f *fakeProfileRepo) GetProfileByID(ctx context.Context, id uint) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (f *fakeProfileRepo) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeProfileRepo) GetProfileByFirebaseUID(ctx context.Context, uid string) (*models.Profile, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeProfileRepo) UpdateProfile(ctx context.Context, p *models.Profile) error {
	return nil
}

func (f *fakeProfileRepo) SearchProfiles(ctx context.Context, query string) ([]models.Profile, error) {
	return nil, nil
}
