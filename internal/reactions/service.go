// Package reactions implements post reaction toggling with an
// optimistic local summary that is recomputed from the store after
// every confirmed write.
package reactions

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/echogram/echogram/internal/models"
	"github.com/echogram/echogram/internal/optimistic"
	"github.com/echogram/echogram/internal/repositories"
	"github.com/echogram/echogram/pkg/apperrors"
)

// Service tracks reaction summaries for the posts currently on screen
// and applies toggles optimistically.
type Service struct {
	userID        uint
	reactions     repositories.ReactionRepository
	posts         repositories.PostRepository
	notifications repositories.NotificationRepository

	mu        sync.Mutex
	summaries map[string]models.ReactionSummary
}

func NewService(userID uint, reactions repositories.ReactionRepository, posts repositories.PostRepository, notifications repositories.NotificationRepository) *Service {
	return &Service{
		userID:        userID,
		reactions:     reactions,
		posts:         posts,
		notifications: notifications,
		summaries:     make(map[string]models.ReactionSummary),
	}
}

// Prime seeds the local summary for a post, typically from a feed
// fetch that already carried the counts.
func (s *Service) Prime(summary models.ReactionSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[summary.PostID] = summary
}

// Summary returns the current local summary for a post.
func (s *Service) Summary(postID string) (models.ReactionSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[postID]
	return sum, ok
}

// Toggle flips the viewer's reaction on a post. Reacting again with a
// different kind replaces the previous reaction rather than stacking;
// the repository deletes any existing row before inserting.
func (s *Service) Toggle(ctx context.Context, postID string, authorID uint, kind string) (models.ReactionSummary, error) {
	req := models.ToggleReactionRequest{PostID: postID, Kind: kind}
	if err := validateToggle(req); err != nil {
		return models.ReactionSummary{}, err
	}

	s.mu.Lock()
	before, ok := s.summaries[postID]
	s.mu.Unlock()
	if !ok {
		before = models.ReactionSummary{PostID: postID}
	}

	removing := before.DidReact && before.Kind == kind

	err := optimistic.Run(ctx, optimistic.Command{
		Name: "toggle reaction",
		Apply: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			next := before
			if removing {
				next.Count--
				next.DidReact = false
				next.Kind = ""
			} else {
				if !before.DidReact {
					next.Count++
				}
				next.DidReact = true
				next.Kind = kind
			}
			if next.Count < 0 {
				next.Count = 0
			}
			s.summaries[postID] = next
		},
		Remote: func(ctx context.Context) error {
			return s.toggleRemote(ctx, postID, authorID, kind, removing)
		},
		Reconcile: func() {
			// Replace the locally adjusted count with the store's
			// answer so concurrent reactors converge.
			s.recompute(ctx, postID)
		},
		Rollback: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.summaries[postID] = before
		},
	})
	if err != nil {
		return before, err
	}

	s.mu.Lock()
	after := s.summaries[postID]
	s.mu.Unlock()
	return after, nil
}

func (s *Service) toggleRemote(ctx context.Context, postID string, authorID uint, kind string, removing bool) error {
	deleted, err := s.reactions.DeleteForPostUser(ctx, postID, s.userID)
	if err != nil {
		return err
	}

	if removing {
		if err := s.posts.AdjustReactionsCount(ctx, postID, -1); err != nil {
			log.Warn().Err(err).Str("post_id", postID).Msg("failed to adjust reaction counter")
		}
		return nil
	}

	reaction := models.Reaction{PostID: postID, UserID: s.userID, Kind: kind}
	if err := s.reactions.CreateReaction(ctx, &reaction); err != nil {
		return err
	}
	if deleted == 0 {
		if err := s.posts.AdjustReactionsCount(ctx, postID, 1); err != nil {
			log.Warn().Err(err).Str("post_id", postID).Msg("failed to adjust reaction counter")
		}
	}

	// Reacting to your own post makes no notification.
	if authorID != 0 && authorID != s.userID && deleted == 0 {
		notif := models.Notification{
			Type:        models.NotificationLikePost,
			UserID:      authorID,
			ActorID:     s.userID,
			ReferenceID: postID,
		}
		if err := s.notifications.CreateNotification(ctx, &notif); err != nil {
			log.Warn().Err(err).Str("post_id", postID).Msg("failed to create reaction notification")
		}
	}
	return nil
}

func (s *Service) recompute(ctx context.Context, postID string) {
	sum, err := s.reactions.GetSummary(ctx, postID, s.userID)
	if err != nil {
		log.Warn().Err(err).Str("post_id", postID).Msg("failed to recompute reaction summary")
		return
	}
	s.mu.Lock()
	s.summaries[postID] = *sum
	s.mu.Unlock()
}

func validateToggle(req models.ToggleReactionRequest) error {
	if req.PostID == "" {
		return apperrors.InvalidArg("post id is required")
	}
	switch req.Kind {
	case "like", "fire", "heart", "laugh", "sad":
		return nil
	default:
		return apperrors.InvalidArg("unknown reaction kind " + strconv.Quote(req.Kind))
	}
}
