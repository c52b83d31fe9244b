package posts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/gorm"

	"github.com/echogram/echogram/internal/models"
	"github.com/echogram/echogram/pkg/apperrors"
)

type memPostRepo struct {
	mu            sync.Mutex
	posts         []models.Post
	commentDeltas []int64
}

func (r *memPostRepo) CreatePost(ctx context.Context, post *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	post.ID = primitive.NewObjectID()
	r.posts = append(r.posts, *post)
	return nil
}

func (r *memPostRepo) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.ID.Hex() == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, errors.New("post not found")
}

func (r *memPostRepo) GetPostsByUserID(ctx context.Context, userID uint, skip, limit int64) ([]models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Post
	for _, p := range r.posts {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memPostRepo) GetAllPosts(ctx context.Context, skip, limit int64) ([]models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Post, len(r.posts))
	copy(out, r.posts)
	return out, nil
}

func (r *memPostRepo) DeletePost(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.posts {
		if p.ID.Hex() == id {
			r.posts = append(r.posts[:i], r.posts[i+1:]...)
			return nil
		}
	}
	return errors.New("post not found")
}

func (r *memPostRepo) AdjustReactionsCount(ctx context.Context, postID string, delta int64) error {
	return nil
}

func (r *memPostRepo) AdjustCommentsCount(ctx context.Context, postID string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commentDeltas = append(r.commentDeltas, delta)
	return nil
}

type stubProfileRepo struct {
	profiles map[uint]models.Profile
}

func (r *stubProfileRepo) CreateProfile(ctx context.Context, p *models.Profile) error { return nil }
func (r *stubProfileRepo) GetProfileByID(ctx context.Context, id uint) (*models.Profile, error) {
	if p, ok := r.profiles[id]; ok {
		return &p, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (r *stubProfileRepo) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *stubProfileRepo) GetProfileByFirebaseUID(ctx context.Context, uid string) (*models.Profile, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *stubProfileRepo) UpdateProfile(ctx context.Context, p *models.Profile) error { return nil }
func (r *stubProfileRepo) SearchProfiles(ctx context.Context, query string) ([]models.Profile, error) {
	return nil, nil
}

type stubReactionRepo struct {
	fail bool
}

func (r *stubReactionRepo) CreateReaction(ctx context.Context, reaction *models.Reaction) error {
	return nil
}
func (r *stubReactionRepo) DeleteForPostUser(ctx context.Context, postID string, userID uint) (int64, error) {
	return 0, nil
}
func (r *stubReactionRepo) GetSummary(ctx context.Context, postID string, userID uint) (*models.ReactionSummary, error) {
	if r.fail {
		return nil, errors.New("timeout")
	}
	return &models.ReactionSummary{PostID: postID, Count: 7, DidReact: true, Kind: "like"}, nil
}
func (r *stubReactionRepo) GetReactionsByPostID(ctx context.Context, postID string) ([]models.Reaction, error) {
	return nil, nil
}
func (r *stubReactionRepo) DeleteByPostID(ctx context.Context, postID string) error { return nil }

type memCommentRepo struct {
	mu         sync.Mutex
	rows       []models.Comment
	failCreate error
}

func (r *memCommentRepo) CreateComment(ctx context.Context, c *models.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate != nil {
		return r.failCreate
	}
	c.ID = uint(len(r.rows) + 1)
	r.rows = append(r.rows, *c)
	return nil
}
func (r *memCommentRepo) GetCommentsByPostID(ctx context.Context, postID string) ([]models.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Comment
	for _, c := range r.rows {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	return out, nil
}
func (r *memCommentRepo) GetCommentByID(ctx context.Context, id uint) (*models.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}
func (r *memCommentRepo) DeleteComment(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.rows {
		if c.ID == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}
func (r *memCommentRepo) DeleteByPostID(ctx context.Context, postID string) error { return nil }
func (r *memCommentRepo) CountByPostID(ctx context.Context, postID string) (int64, error) {
	return 0, nil
}

type noopNotificationRepo struct{}

func (noopNotificationRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	return nil
}
func (noopNotificationRepo) GetByUserID(ctx context.Context, userID uint, limit int) ([]models.Notification, error) {
	return nil, nil
}
func (noopNotificationRepo) GetUnreadCount(ctx context.Context, userID uint) (int64, error) {
	return 0, nil
}
func (noopNotificationRepo) MarkAsRead(ctx context.Context, notificationID uint) error { return nil }
func (noopNotificationRepo) MarkAllAsRead(ctx context.Context, userID uint) error      { return nil }

func newPostFixture(reactionsFail bool) (*Service, *memPostRepo, *memCommentRepo) {
	postRepo := &memPostRepo{}
	commentRepo := &memCommentRepo{}
	profileRepo := &stubProfileRepo{profiles: map[uint]models.Profile{
		2: {ID: 2, Username: "ada"},
	}}
	svc := NewService(1, postRepo, profileRepo, &stubReactionRepo{fail: reactionsFail}, commentRepo, noopNotificationRepo{})
	return svc, postRepo, commentRepo
}

func TestFeedEnrichesPosts(t *testing.T) {
	svc, postRepo, _ := newPostFixture(false)
	ctx := context.Background()
	require.NoError(t, postRepo.CreatePost(ctx, &models.Post{UserID: 2, Content: "hi"}))

	feed, err := svc.Feed(ctx, 0, 20)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "ada", feed[0].Author.Username)
	assert.Equal(t, int64(7), feed[0].Reactions.Count)
	assert.True(t, feed[0].Reactions.DidReact)
}

func TestFeedDegradesOnEnrichmentFailure(t *testing.T) {
	svc, postRepo, _ := newPostFixture(true)
	ctx := context.Background()
	// Author 99 has no profile and reaction lookups fail; the post must
	// still render with its embedded counter.
	require.NoError(t, postRepo.CreatePost(ctx, &models.Post{UserID: 99, Content: "orphan", ReactionsCount: 3}))

	feed, err := svc.Feed(ctx, 0, 20)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Zero(t, feed[0].Author.ID)
	assert.Equal(t, int64(3), feed[0].Reactions.Count)
}

func TestCreateValidatesContent(t *testing.T) {
	svc, _, _ := newPostFixture(false)

	_, err := svc.Create(context.Background(), models.CreatePostRequest{})
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
}

func TestDeleteOnlyByAuthor(t *testing.T) {
	svc, postRepo, _ := newPostFixture(false)
	ctx := context.Background()

	post := models.Post{UserID: 2, Content: "not mine"}
	require.NoError(t, postRepo.CreatePost(ctx, &post))

	err := svc.Delete(ctx, post.ID.Hex())
	assert.Equal(t, apperrors.CodeFailedPrecondition, apperrors.CodeOf(err))

	mine := models.Post{UserID: 1, Content: "mine"}
	require.NoError(t, postRepo.CreatePost(ctx, &mine))
	assert.NoError(t, svc.Delete(ctx, mine.ID.Hex()))
}

func TestAddCommentConfirmsAndCounts(t *testing.T) {
	svc, postRepo, commentRepo := newPostFixture(false)
	ctx := context.Background()

	comment, err := svc.AddComment(ctx, "p1", 2, "nice")
	require.NoError(t, err)
	assert.Equal(t, uint(1), comment.ID)

	// The pending copy is gone once the write is confirmed.
	listed, err := svc.Comments(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.False(t, listed[0].Pending)

	postRepo.mu.Lock()
	assert.Equal(t, []int64{1}, postRepo.commentDeltas)
	postRepo.mu.Unlock()

	commentRepo.mu.Lock()
	assert.Len(t, commentRepo.rows, 1)
	commentRepo.mu.Unlock()
}

func TestAddCommentRollsBackOnFailure(t *testing.T) {
	svc, _, commentRepo := newPostFixture(false)
	commentRepo.failCreate = errors.New("connection refused")
	ctx := context.Background()

	_, err := svc.AddComment(ctx, "p1", 2, "doomed")
	require.Error(t, err)

	listed, err := svc.Comments(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestDeleteCommentAdjustsCounter(t *testing.T) {
	svc, postRepo, _ := newPostFixture(false)
	ctx := context.Background()

	comment, err := svc.AddComment(ctx, "p1", 2, "temp")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteComment(ctx, comment.ID))

	postRepo.mu.Lock()
	assert.Equal(t, []int64{1, -1}, postRepo.commentDeltas)
	postRepo.mu.Unlock()
}
