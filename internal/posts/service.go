// Package posts assembles the home feed and runs post and comment
// mutations. Feed assembly degrades instead of failing: a post whose
// author or reaction lookup errors still renders with whatever data
// resolved.
package posts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/echogram/echogram/internal/models"
	"github.com/echogram/echogram/internal/optimistic"
	"github.com/echogram/echogram/internal/repositories"
	"github.com/echogram/echogram/pkg/apperrors"
	"github.com/echogram/echogram/validators"
)

// Service loads and mutates posts for the signed-in viewer.
type Service struct {
	userID        uint
	posts         repositories.PostRepository
	profiles      repositories.ProfileRepository
	reactions     repositories.ReactionRepository
	comments      repositories.CommentRepository
	notifications repositories.NotificationRepository
	validator     *validators.Validator

	mu              sync.Mutex
	pendingComments map[string][]models.Comment // postID -> optimistic rows
}

func NewService(
	userID uint,
	posts repositories.PostRepository,
	profiles repositories.ProfileRepository,
	reactions repositories.ReactionRepository,
	comments repositories.CommentRepository,
	notifications repositories.NotificationRepository,
) *Service {
	return &Service{
		userID:          userID,
		posts:           posts,
		profiles:        profiles,
		reactions:       reactions,
		comments:        comments,
		notifications:   notifications,
		validator:       validators.NewValidator(),
		pendingComments: make(map[string][]models.Comment),
	}
}

// Feed returns a page of recent posts enriched with author and
// reaction data. Enrichment failures are logged and degrade to zero
// values; only the post query itself can fail the call.
func (s *Service) Feed(ctx context.Context, skip, limit int64) ([]models.FeedPost, error) {
	raw, err := s.posts.GetAllPosts(ctx, skip, limit)
	if err != nil {
		return nil, apperrors.Transient("loading feed", err)
	}

	feed := make([]models.FeedPost, 0, len(raw))
	authors := make(map[uint]models.ProfileCompact)
	for _, post := range raw {
		fp := models.FeedPost{Post: post}

		author, ok := authors[post.UserID]
		if !ok {
			profile, err := s.profiles.GetProfileByID(ctx, post.UserID)
			if err != nil {
				log.Warn().Err(err).Uint("author_id", post.UserID).Msg("feed author lookup failed")
			} else {
				author = profile.ToCompact()
			}
			authors[post.UserID] = author
		}
		fp.Author = author

		postID := post.ID.Hex()
		summary, err := s.reactions.GetSummary(ctx, postID, s.userID)
		if err != nil {
			log.Warn().Err(err).Str("post_id", postID).Msg("feed reaction lookup failed")
			fp.Reactions = models.ReactionSummary{PostID: postID, Count: post.ReactionsCount}
		} else {
			fp.Reactions = *summary
		}

		feed = append(feed, fp)
	}
	return feed, nil
}

// ProfileFeed returns one user's posts with the same enrichment rules.
func (s *Service) ProfileFeed(ctx context.Context, authorID uint, skip, limit int64) ([]models.FeedPost, error) {
	raw, err := s.posts.GetPostsByUserID(ctx, authorID, skip, limit)
	if err != nil {
		return nil, apperrors.Transient("loading profile posts", err)
	}

	var author models.ProfileCompact
	if profile, err := s.profiles.GetProfileByID(ctx, authorID); err != nil {
		log.Warn().Err(err).Uint("author_id", authorID).Msg("profile lookup failed")
	} else {
		author = profile.ToCompact()
	}

	feed := make([]models.FeedPost, 0, len(raw))
	for _, post := range raw {
		postID := post.ID.Hex()
		fp := models.FeedPost{Post: post, Author: author}
		summary, err := s.reactions.GetSummary(ctx, postID, s.userID)
		if err != nil {
			fp.Reactions = models.ReactionSummary{PostID: postID, Count: post.ReactionsCount}
		} else {
			fp.Reactions = *summary
		}
		feed = append(feed, fp)
	}
	return feed, nil
}

// Create publishes a new post authored by the viewer.
func (s *Service) Create(ctx context.Context, req models.CreatePostRequest) (*models.Post, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, apperrors.InvalidArg(err.Error())
	}
	post := models.Post{
		UserID:    s.userID,
		Content:   req.Content,
		ImageURLs: req.ImageURLs,
	}
	if err := s.posts.CreatePost(ctx, &post); err != nil {
		return nil, apperrors.Transient("creating post", err)
	}
	return &post, nil
}

// Delete removes the viewer's own post along with its comments and
// reactions. The cascade deletes are best effort once the post row is
// gone.
func (s *Service) Delete(ctx context.Context, postID string) error {
	post, err := s.posts.GetPostByID(ctx, postID)
	if err != nil {
		return apperrors.NotFound("post not found")
	}
	if post.UserID != s.userID {
		return apperrors.FailedPrecondition("only the author can delete a post")
	}
	if err := s.posts.DeletePost(ctx, postID); err != nil {
		return apperrors.Transient("deleting post", err)
	}
	if err := s.comments.DeleteByPostID(ctx, postID); err != nil {
		log.Warn().Err(err).Str("post_id", postID).Msg("comment cleanup failed")
	}
	if err := s.reactions.DeleteByPostID(ctx, postID); err != nil {
		log.Warn().Err(err).Str("post_id", postID).Msg("reaction cleanup failed")
	}
	return nil
}

// Comments returns a post's confirmed comments followed by the
// viewer's still-pending ones.
func (s *Service) Comments(ctx context.Context, postID string) ([]models.Comment, error) {
	confirmed, err := s.comments.GetCommentsByPostID(ctx, postID)
	if err != nil {
		return nil, apperrors.Transient("loading comments", err)
	}
	s.mu.Lock()
	pending := append([]models.Comment(nil), s.pendingComments[postID]...)
	s.mu.Unlock()
	return append(confirmed, pending...), nil
}

// AddComment posts a comment optimistically: it is visible under the
// post immediately and either confirmed or withdrawn when the write
// settles.
func (s *Service) AddComment(ctx context.Context, postID string, authorID uint, content string) (*models.Comment, error) {
	req := models.CreateCommentRequest{PostID: postID, Content: content}
	if err := s.validator.Validate(req); err != nil {
		return nil, apperrors.InvalidArg(err.Error())
	}

	pending := models.Comment{
		PostID:   postID,
		UserID:   s.userID,
		Content:  content,
		ClientID: uuid.NewString(),
		Pending:  true,
	}
	pending.CreatedAt = time.Now()

	confirmed := models.Comment{
		PostID:  postID,
		UserID:  s.userID,
		Content: content,
	}

	err := optimistic.Run(ctx, optimistic.Command{
		Name: "add comment",
		Apply: func() {
			s.mu.Lock()
			s.pendingComments[postID] = append(s.pendingComments[postID], pending)
			s.mu.Unlock()
		},
		Remote: func(ctx context.Context) error {
			return s.comments.CreateComment(ctx, &confirmed)
		},
		Reconcile: func() {
			s.removePending(postID, pending.ClientID)
			s.afterComment(ctx, postID, authorID)
		},
		Rollback: func() {
			s.removePending(postID, pending.ClientID)
		},
	})
	if err != nil {
		return nil, err
	}
	return &confirmed, nil
}

func (s *Service) removePending(postID, clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.pendingComments[postID]
	for i, c := range rows {
		if c.ClientID == clientID {
			s.pendingComments[postID] = append(rows[:i], rows[i+1:]...)
			break
		}
	}
	if len(s.pendingComments[postID]) == 0 {
		delete(s.pendingComments, postID)
	}
}

func (s *Service) afterComment(ctx context.Context, postID string, authorID uint) {
	if err := s.posts.AdjustCommentsCount(ctx, postID, 1); err != nil {
		log.Warn().Err(err).Str("post_id", postID).Msg("failed to adjust comment counter")
	}
	if authorID == 0 || authorID == s.userID {
		return
	}
	notif := models.Notification{
		Type:        models.NotificationComment,
		UserID:      authorID,
		ActorID:     s.userID,
		ReferenceID: postID,
	}
	if err := s.notifications.CreateNotification(ctx, &notif); err != nil {
		log.Warn().Err(err).Str("post_id", postID).Msg("failed to create comment notification")
	}
}

// DeleteComment removes the viewer's own confirmed comment.
func (s *Service) DeleteComment(ctx context.Context, commentID uint) error {
	comment, err := s.comments.GetCommentByID(ctx, commentID)
	if err != nil {
		return apperrors.NotFound("comment not found")
	}
	if comment.UserID != s.userID {
		return apperrors.FailedPrecondition("only the author can delete a comment")
	}
	if err := s.comments.DeleteComment(ctx, commentID); err != nil {
		return apperrors.Transient("deleting comment", err)
	}
	if err := s.posts.AdjustCommentsCount(ctx, comment.PostID, -1); err != nil {
		log.Warn().Err(err).Str("post_id", comment.PostID).Msg("failed to adjust comment counter")
	}
	return nil
}
