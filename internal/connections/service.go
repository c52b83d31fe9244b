// Package connections implements the connection state machine:
//
//	none → sent_pending            requester sends
//	*_pending → accepted           receiver accepts
//	any pending → none             decline/cancel deletes the row
//	accepted → none                either side unfriends, deletes the row
//	blocked                        sticky; only an external unblock leaves it
//
// Declines delete rather than persist a declined status so the pair can
// re-request immediately.
package connections

import (
	"context"
	"fmt"
	"strconv"

	"github.com/echogram/echogram/internal/models"
	"github.com/echogram/echogram/internal/repositories"
	"github.com/echogram/echogram/internal/signal"
	"github.com/echogram/echogram/pkg/apperrors"
)

// Service drives connection mutations for one user.
type Service struct {
	userID        uint
	connections   repositories.ConnectionRepository
	notifications repositories.NotificationRepository
	bus           *signal.Bus
}

// NewService creates a connection Service
func NewService(userID uint, connections repositories.ConnectionRepository, notifications repositories.NotificationRepository, bus *signal.Bus) *Service {
	return &Service{
		userID:        userID,
		connections:   connections,
		notifications: notifications,
		bus:           bus,
	}
}

// StateWith returns the viewer-relative connection state for a peer.
func (s *Service) StateWith(ctx context.Context, peerID uint) (models.ConnectionState, error) {
	conn, err := s.connections.GetForPair(ctx, s.userID, peerID)
	if err != nil {
		return models.StateNone, fmt.Errorf("loading connection: %w", err)
	}
	return models.StateFor(conn, s.userID), nil
}

// Request sends a connection request. The repository deletes any prior
// live row for the pair inside the insert transaction, so a double
// click or both sides racing to request leaves exactly one pending
// row. Blocked pairs reject the request.
func (s *Service) Request(ctx context.Context, receiverID uint) (*models.Connection, error) {
	if receiverID == s.userID {
		return nil, apperrors.InvalidArg("cannot send a connection request to yourself")
	}

	existing, err := s.connections.GetForPair(ctx, s.userID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("checking existing connection: %w", err)
	}
	if models.StateFor(existing, s.userID) == models.StateBlocked {
		return nil, apperrors.Conflict("connection is blocked")
	}

	conn, err := s.connections.CreatePending(ctx, s.userID, receiverID)
	if err != nil {
		return nil, err
	}

	// Best effort: the receiver also sees a synthesized entry until
	// this row lands, so a failed notification write is not fatal.
	_ = s.notifications.CreateNotification(ctx, &models.Notification{
		Type:        models.NotificationRequestReceived,
		ActorID:     s.userID,
		UserID:      receiverID,
		ReferenceID: strconv.FormatUint(uint64(conn.ID), 10),
	})
	return conn, nil
}

// Accept transitions a pending request addressed to this user.
func (s *Service) Accept(ctx context.Context, connectionID uint) error {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return apperrors.NotFound("connection request not found")
	}
	if conn.ReceiverID != s.userID {
		return apperrors.FailedPrecondition("only the receiver can accept a request")
	}
	if conn.Status == models.ConnectionBlocked {
		return apperrors.Conflict("connection is blocked")
	}
	if conn.Status != models.ConnectionPending {
		return apperrors.FailedPrecondition("request is no longer pending")
	}

	if err := s.connections.Accept(ctx, connectionID); err != nil {
		return err
	}
	_ = s.notifications.CreateNotification(ctx, &models.Notification{
		Type:        models.NotificationRequestAccepted,
		ActorID:     s.userID,
		UserID:      conn.RequesterID,
		ReferenceID: strconv.FormatUint(uint64(conn.ID), 10),
	})
	s.bus.Emit()
	return nil
}

// Decline removes a pending request addressed to this user.
func (s *Service) Decline(ctx context.Context, connectionID uint) error {
	return s.removePending(ctx, connectionID, func(conn *models.Connection) bool {
		return conn.ReceiverID == s.userID
	})
}

// Cancel removes a pending request this user sent.
func (s *Service) Cancel(ctx context.Context, connectionID uint) error {
	return s.removePending(ctx, connectionID, func(conn *models.Connection) bool {
		return conn.RequesterID == s.userID
	})
}

// Unfriend deletes an accepted connection from either side.
func (s *Service) Unfriend(ctx context.Context, peerID uint) error {
	conn, err := s.connections.GetForPair(ctx, s.userID, peerID)
	if err != nil {
		return fmt.Errorf("loading connection: %w", err)
	}
	if conn == nil || conn.Status != models.ConnectionAccepted {
		return apperrors.FailedPrecondition("users are not connected")
	}
	if err := s.connections.Delete(ctx, conn.ID); err != nil {
		return err
	}
	s.bus.Emit()
	return nil
}

// Block installs the sticky blocked state toward a peer.
func (s *Service) Block(ctx context.Context, peerID uint) error {
	if err := s.connections.Block(ctx, s.userID, peerID); err != nil {
		return err
	}
	s.bus.Emit()
	return nil
}

// Friends lists the user's accepted connections.
func (s *Service) Friends(ctx context.Context) ([]models.Connection, error) {
	return s.connections.ListAccepted(ctx, s.userID)
}

// AreConnected reports whether the pair has an accepted connection;
// messaging requires it.
func (s *Service) AreConnected(ctx context.Context, peerID uint) (bool, error) {
	conn, err := s.connections.GetForPair(ctx, s.userID, peerID)
	if err != nil {
		return false, err
	}
	return conn != nil && conn.Status == models.ConnectionAccepted, nil
}

func (s *Service) removePending(ctx context.Context, connectionID uint, allowed func(*models.Connection) bool) error {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return apperrors.NotFound("connection request not found")
	}
	if conn.Status == models.ConnectionBlocked {
		return apperrors.Conflict("connection is blocked")
	}
	if conn.Status != models.ConnectionPending {
		return apperrors.FailedPrecondition("request is no longer pending")
	}
	if !allowed(conn) {
		return apperrors.FailedPrecondition("not a party to this request")
	}
	if err := s.connections.Delete(ctx, conn.ID); err != nil {
		return err
	}
	s.bus.Emit()
	return nil
}
