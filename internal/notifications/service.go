package notifications

import (
	"context"
	"fmt"

	"github.com/echogram/echogram/internal/repositories"
	"github.com/echogram/echogram/internal/signal"
)

const listLimit = 100

// Service assembles the notification screen's data and owns its badge
// side effects.
type Service struct {
	userID        uint
	notifications repositories.NotificationRepository
	connections   repositories.ConnectionRepository
	bus           *signal.Bus
}

// NewService creates a notification Service for one user
func NewService(userID uint, notifications repositories.NotificationRepository, connections repositories.ConnectionRepository, bus *signal.Bus) *Service {
	return &Service{
		userID:        userID,
		notifications: notifications,
		connections:   connections,
		bus:           bus,
	}
}

// List returns the merged notification list, newest first. Pending
// connection requests without a stored notification row appear as
// synthesized entries.
func (s *Service) List(ctx context.Context) ([]View, error) {
	stored, err := s.notifications.GetByUserID(ctx, s.userID, listLimit)
	if err != nil {
		return nil, fmt.Errorf("loading notifications: %w", err)
	}
	pending, err := s.connections.ListPendingReceived(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("loading pending requests: %w", err)
	}
	return Merge(stored, pending), nil
}

// MarkRead flips one stored notification and signals a badge recompute.
func (s *Service) MarkRead(ctx context.Context, notificationID uint) error {
	if err := s.notifications.MarkAsRead(ctx, notificationID); err != nil {
		return err
	}
	s.bus.Emit()
	return nil
}

// MarkAllRead clears the user's unread notifications. Entering the
// notifications screen calls this; the nav badge re-derives through the
// signal bus rather than trusting any local inference.
func (s *Service) MarkAllRead(ctx context.Context) error {
	if err := s.notifications.MarkAllAsRead(ctx, s.userID); err != nil {
		return err
	}
	s.bus.Emit()
	return nil
}

// UnreadCount returns the authoritative unread notification count.
func (s *Service) UnreadCount(ctx context.Context) (int64, error) {
	return s.notifications.GetUnreadCount(ctx, s.userID)
}
