// Package echoes manages ephemeral 24-hour media posts: creation with
// an object-storage upload, the connections-only tray, seen receipts
// and reactions.
package echoes

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/echogram/echogram/internal/connections"
	"github.com/echogram/echogram/internal/models"
	"github.com/echogram/echogram/internal/repositories"
	"github.com/echogram/echogram/pkg/apperrors"
	"github.com/echogram/echogram/pkg/storage"
	"github.com/echogram/echogram/validators"
)

// TrayEntry is one user's active echoes with the viewer's seen state.
type TrayEntry struct {
	Author models.ProfileCompact `json:"author"`
	Echoes []TrayEcho            `json:"echoes"`
}

// TrayEcho pairs an echo with whether the viewer has seen it.
type TrayEcho struct {
	Echo models.Echo `json:"echo"`
	Seen bool        `json:"seen"`
}

// Service runs echo operations for the signed-in viewer.
type Service struct {
	userID        uint
	echoes        repositories.EchoRepository
	profiles      repositories.ProfileRepository
	notifications repositories.NotificationRepository
	connections   *connections.Service
	uploader      *storage.Uploader
	validator     *validators.Validator
}

func NewService(
	userID uint,
	echoes repositories.EchoRepository,
	profiles repositories.ProfileRepository,
	notifications repositories.NotificationRepository,
	conns *connections.Service,
	uploader *storage.Uploader,
) *Service {
	return &Service{
		userID:        userID,
		echoes:        echoes,
		profiles:      profiles,
		notifications: notifications,
		connections:   conns,
		uploader:      uploader,
		validator:     validators.NewValidator(),
	}
}

// CreateFromUpload stores the media object first, then publishes the
// echo pointing at it. The echo expires 24 hours after creation.
func (s *Service) CreateFromUpload(ctx context.Context, media io.Reader, contentType, mediaType string, duration int) (*models.Echo, error) {
	if mediaType != "image" && mediaType != "video" {
		return nil, apperrors.InvalidArg("type must be image or video")
	}

	key := "echoes/" + uuid.NewString()
	url, err := s.uploader.Upload(ctx, key, media, contentType)
	if err != nil {
		return nil, apperrors.Transient("uploading media", err)
	}
	return s.Create(ctx, models.CreateEchoRequest{MediaURL: url, Type: mediaType, Duration: duration})
}

// Create publishes an echo from an already-uploaded media URL.
func (s *Service) Create(ctx context.Context, req models.CreateEchoRequest) (*models.Echo, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, apperrors.InvalidArg(err.Error())
	}

	now := time.Now()
	echo := models.Echo{
		UserID: s.userID,
		Items: []models.EchoItem{{
			ID:        uuid.NewString(),
			Type:      req.Type,
			URL:       req.MediaURL,
			Duration:  req.Duration,
			CreatedAt: now,
		}},
		ExpiresAt: now.Add(24 * time.Hour),
		CreatedAt: now,
	}
	if err := s.echoes.CreateEcho(ctx, &echo); err != nil {
		return nil, apperrors.Transient("creating echo", err)
	}
	return &echo, nil
}

// Tray returns active echoes from the viewer and their connections,
// annotated with seen state. Missing profiles or seen lookups degrade;
// only the echo query can fail the call.
func (s *Service) Tray(ctx context.Context) ([]TrayEntry, error) {
	friends, err := s.connections.Friends(ctx)
	if err != nil {
		return nil, err
	}
	userIDs := make([]uint, 0, len(friends)+1)
	userIDs = append(userIDs, s.userID)
	for _, conn := range friends {
		if conn.RequesterID == s.userID {
			userIDs = append(userIDs, conn.ReceiverID)
		} else {
			userIDs = append(userIDs, conn.RequesterID)
		}
	}

	active, err := s.echoes.GetActiveEchoesByUserIDs(ctx, userIDs)
	if err != nil {
		return nil, apperrors.Transient("loading echoes", err)
	}
	if len(active) == 0 {
		return nil, nil
	}

	echoIDs := make([]string, 0, len(active))
	for _, e := range active {
		echoIDs = append(echoIDs, e.ID.Hex())
	}
	seen, err := s.echoes.GetSeenEchoIDs(ctx, s.userID, echoIDs)
	if err != nil {
		log.Warn().Err(err).Msg("seen lookup failed")
		seen = map[string]bool{}
	}

	byAuthor := make(map[uint][]TrayEcho)
	order := make([]uint, 0)
	for _, e := range active {
		if _, ok := byAuthor[e.UserID]; !ok {
			order = append(order, e.UserID)
		}
		byAuthor[e.UserID] = append(byAuthor[e.UserID], TrayEcho{Echo: e, Seen: seen[e.ID.Hex()]})
	}

	tray := make([]TrayEntry, 0, len(order))
	for _, authorID := range order {
		entry := TrayEntry{Echoes: byAuthor[authorID]}
		if profile, err := s.profiles.GetProfileByID(ctx, authorID); err != nil {
			log.Warn().Err(err).Uint("author_id", authorID).Msg("echo author lookup failed")
			entry.Author = models.ProfileCompact{ID: authorID}
		} else {
			entry.Author = profile.ToCompact()
		}
		tray = append(tray, entry)
	}
	return tray, nil
}

// MarkSeen records that the viewer watched an echo. Repeats are no-ops.
func (s *Service) MarkSeen(ctx context.Context, echoID string) error {
	seen := models.EchoSeen{EchoID: echoID, UserID: s.userID, SeenAt: time.Now()}
	if err := s.echoes.MarkSeen(ctx, &seen); err != nil {
		return apperrors.Transient("marking echo seen", err)
	}
	return nil
}

// React attaches a reaction to an echo and notifies its author.
func (s *Service) React(ctx context.Context, echoID, reaction string) error {
	echo, err := s.echoes.GetEchoByID(ctx, echoID)
	if err != nil {
		return apperrors.NotFound("echo not found or expired")
	}

	row := models.EchoReaction{EchoID: echoID, UserID: s.userID, Reaction: reaction}
	if err := s.echoes.AddReaction(ctx, &row); err != nil {
		return apperrors.Transient("reacting to echo", err)
	}

	if echo.UserID != s.userID {
		notif := models.Notification{
			Type:        models.NotificationEchoReaction,
			UserID:      echo.UserID,
			ActorID:     s.userID,
			ReferenceID: echoID,
		}
		if err := s.notifications.CreateNotification(ctx, &notif); err != nil {
			log.Warn().Err(err).Str("echo_id", echoID).Msg("failed to create echo reaction notification")
		}
	}
	return nil
}

// PurgeExpired deletes echoes past their expiry. Called periodically
// by the runtime.
func (s *Service) PurgeExpired(ctx context.Context) error {
	return s.echoes.DeleteExpiredEchoes(ctx)
}
