package sync

import (
	"context"
	"fmt"
	"sort"
	stdsync "sync"

	"github.com/rs/zerolog/log"

	"github.com/echogram/echogram/internal/feed"
	"github.com/echogram/echogram/internal/models"
	"github.com/echogram/echogram/internal/repositories"
	"github.com/echogram/echogram/internal/signal"
)

// ConversationStore maintains the derived conversation list: peer,
// last message and per-peer unread count. Targeted increments are
// allowed only for INSERT events; anything else (read receipts landing,
// deletions) triggers a full recompute from the store of record.
type ConversationStore struct {
	userID     uint
	messages   repositories.MessageRepository
	profiles   repositories.ProfileRepository
	feedClient feed.Client
	bus        *signal.Bus

	actor  *Actor
	reload *debouncer

	mu       stdsync.Mutex
	convs    []models.Conversation
	watchers map[int]func([]models.Conversation)
	nextID   int

	sub            *feed.Subscription
	removeListener func()
}

// NewConversationStore wires a store; call Start to load and subscribe.
func NewConversationStore(userID uint, messages repositories.MessageRepository, profiles repositories.ProfileRepository, feedClient feed.Client, bus *signal.Bus) *ConversationStore {
	s := &ConversationStore{
		userID:     userID,
		messages:   messages,
		profiles:   profiles,
		feedClient: feedClient,
		bus:        bus,
		actor:      NewActor(64),
		watchers:   make(map[int]func([]models.Conversation)),
	}
	s.reload = newDebouncer(refetchDebounce, s.reloadAuthoritative)
	return s
}

// Start loads the list and subscribes to message changes and the badge
// signal: reading a chat elsewhere must clear that row's unread count
// here without waiting for a change-feed round trip.
func (s *ConversationStore) Start(ctx context.Context) error {
	if err := s.loadOnce(ctx); err != nil {
		return err
	}

	sub, err := s.feedClient.Subscribe(
		fmt.Sprintf("conversations:%d", s.userID),
		feed.TableFilter{Table: "messages"},
		s.onEvent,
	)
	if err != nil {
		return fmt.Errorf("subscribing to conversation feed: %w", err)
	}
	s.sub = sub
	s.removeListener = s.bus.AddListener(s)
	return nil
}

// Stop disposes the subscription, timers and the actor.
func (s *ConversationStore) Stop() {
	if s.removeListener != nil {
		s.removeListener()
	}
	if s.sub != nil {
		s.sub.Close()
	}
	s.reload.Stop()
	s.actor.Close()
}

// Snapshot returns a copy of the conversation list.
func (s *ConversationStore) Snapshot() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, len(s.convs))
	copy(out, s.convs)
	return out
}

// Watch registers a list observer and returns its removal func.
func (s *ConversationStore) Watch(fn func([]models.Conversation)) (remove func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// OnBadgeInvalidate implements signal.Listener.
func (s *ConversationStore) OnBadgeInvalidate() {
	s.reload.TriggerAfter(settleDelay)
}

// OnVisible recomputes after a possible event gap, waiting out the
// settle delay so the write that woke the app has landed server-side.
func (s *ConversationStore) OnVisible() {
	s.reload.TriggerAfter(settleDelay)
}

func (s *ConversationStore) onEvent(ev feed.Event) {
	s.actor.Do(func() {
		if ev.Type != feed.EventInsert {
			s.reload.Trigger()
			return
		}
		var m models.Message
		if err := ev.DecodeNew(&m); err != nil {
			s.reload.Trigger()
			return
		}

		peerID := m.SenderID
		if m.SenderID == s.userID {
			peerID = m.ReceiverID
		} else if m.ReceiverID != s.userID {
			return
		}

		s.mu.Lock()
		idx := -1
		for i := range s.convs {
			if s.convs[i].Peer.ID == peerID {
				idx = i
				break
			}
		}
		if idx == -1 {
			// First message from a new peer; the profile is unknown
			// locally, so recompute from scratch.
			s.mu.Unlock()
			s.reload.Trigger()
			return
		}

		conv := s.convs[idx]
		msg := m
		conv.LastMessage = &msg
		if m.ReceiverID == s.userID && !m.IsRead {
			conv.UnreadCount++
		}
		// Most recent conversation floats to the top.
		s.convs = append(s.convs[:idx], s.convs[idx+1:]...)
		s.convs = append([]models.Conversation{conv}, s.convs...)
		s.mu.Unlock()
		s.notifyWatchers()
	})
}

func (s *ConversationStore) loadOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	peers, err := s.messages.GetConversationPeers(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("loading conversation peers: %w", err)
	}

	convs := make([]models.Conversation, 0, len(peers))
	for _, peerID := range peers {
		conv, err := s.buildConversation(ctx, peerID)
		if err != nil {
			log.Warn().Err(err).Uint("peer_id", peerID).Msg("skipping conversation")
			continue
		}
		convs = append(convs, conv)
	}

	sort.SliceStable(convs, func(i, j int) bool {
		li, lj := convs[i].LastMessage, convs[j].LastMessage
		if li == nil || lj == nil {
			return lj == nil
		}
		return li.CreatedAt.After(lj.CreatedAt)
	})

	s.actor.Do(func() {
		s.mu.Lock()
		s.convs = convs
		s.mu.Unlock()
		s.notifyWatchers()
	})
	s.actor.Barrier()
	return nil
}

func (s *ConversationStore) buildConversation(ctx context.Context, peerID uint) (models.Conversation, error) {
	profile, err := s.profiles.GetProfileByID(ctx, peerID)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("peer profile: %w", err)
	}
	last, err := s.messages.GetLastMessage(ctx, s.userID, peerID)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("last message: %w", err)
	}
	unread, err := s.messages.UnreadCountFrom(ctx, s.userID, peerID)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("unread count: %w", err)
	}
	return models.Conversation{
		Peer:        profile.ToCompact(),
		LastMessage: last,
		UnreadCount: unread,
	}, nil
}

func (s *ConversationStore) reloadAuthoritative() {
	if err := s.loadOnce(context.Background()); err != nil {
		log.Warn().Err(err).Uint("user_id", s.userID).Msg("conversation reload failed")
	}
}

func (s *ConversationStore) notifyWatchers() {
	s.mu.Lock()
	snapshot := make([]models.Conversation, len(s.convs))
	copy(snapshot, s.convs)
	fns := make([]func([]models.Conversation), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snapshot)
	}
}
