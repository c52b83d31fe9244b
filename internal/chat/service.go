// Package chat drives the direct-message actions on top of the
// transcript store and the optimistic command contract.
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/echogram/echogram/internal/connections"
	"github.com/echogram/echogram/internal/models"
	"github.com/echogram/echogram/internal/optimistic"
	"github.com/echogram/echogram/internal/repositories"
	"github.com/echogram/echogram/internal/signal"
	"github.com/echogram/echogram/pkg/apperrors"
	"github.com/echogram/echogram/validators"
)

// Service sends messages for one open chat.
type Service struct {
	userID      uint
	peerID      uint
	messages    repositories.MessageRepository
	connections *connections.Service
	transcript  Transcript
	bus         *signal.Bus
	validator   *validators.Validator
}

// Transcript is the slice of the transcript store the service mutates.
type Transcript interface {
	AppendPending(m models.Message)
	ConfirmPending(clientID string, confirmed models.Message)
	RemovePending(clientID string)
}

// NewService creates a chat Service for one peer.
func NewService(userID, peerID uint, messages repositories.MessageRepository, conns *connections.Service, transcript Transcript, bus *signal.Bus) *Service {
	return &Service{
		userID:      userID,
		peerID:      peerID,
		messages:    messages,
		connections: conns,
		transcript:  transcript,
		bus:         bus,
		validator:   validators.NewValidator(),
	}
}

// Send delivers a message optimistically: it appears in the transcript
// immediately with a temporary client id, is replaced in place by the
// server-confirmed row, or is removed again if the write fails.
func (s *Service) Send(ctx context.Context, content string) (*models.Message, error) {
	req := models.SendMessageRequest{ReceiverID: s.peerID, Content: content}
	if err := s.validator.Validate(req); err != nil {
		return nil, apperrors.InvalidArg(err.Error())
	}

	connected, err := s.connections.AreConnected(ctx, s.peerID)
	if err != nil {
		return nil, apperrors.Transient("checking connection", err)
	}
	if !connected {
		return nil, apperrors.FailedPrecondition("you can only message connected users")
	}

	pending := models.Message{
		ClientID:   uuid.NewString(),
		Pending:    true,
		SenderID:   s.userID,
		ReceiverID: s.peerID,
		Content:    content,
		CreatedAt:  time.Now(),
	}

	confirmed := models.Message{
		SenderID:   s.userID,
		ReceiverID: s.peerID,
		Content:    content,
	}

	err = optimistic.Run(ctx, optimistic.Command{
		Name:   "send message",
		Apply:  func() { s.transcript.AppendPending(pending) },
		Remote: func(ctx context.Context) error { return s.messages.CreateMessage(ctx, &confirmed) },
		Reconcile: func() {
			s.transcript.ConfirmPending(pending.ClientID, confirmed)
		},
		Rollback: func() { s.transcript.RemovePending(pending.ClientID) },
	})
	if err != nil {
		return nil, err
	}
	return &confirmed, nil
}

// MarkRead flips the peer's unread messages and signals the badge
// recompute; idempotent on repeat.
func (s *Service) MarkRead(ctx context.Context) error {
	if err := s.messages.MarkConversationRead(ctx, s.peerID, s.userID); err != nil {
		return err
	}
	s.bus.Emit()
	return nil
}
