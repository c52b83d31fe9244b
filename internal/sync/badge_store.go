package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/echogram/echogram/internal/feed"
	"github.com/echogram/echogram/internal/models"
	"github.com/echogram/echogram/internal/repositories"
	"github.com/echogram/echogram/internal/signal"
)

const (
	// settleDelay gives the write that triggered a cross-view signal or
	// a visibility regain time to land before the authoritative refetch.
	settleDelay = 500 * time.Millisecond

	// refetchDebounce coalesces the per-event refetch scheduling.
	refetchDebounce = 250 * time.Millisecond

	// readRetryDelay is the single bounded retry for read-path
	// reconciliation failures.
	readRetryDelay = 2 * time.Second

	// fetchTimeout bounds every authoritative fetch so the UI degrades
	// instead of blocking.
	fetchTimeout = 4 * time.Second
)

// BadgeStore maintains UnreadBadgeState for one user.
//
// Only INSERT events move the counter directly, and only by +1: an
// insert has an unambiguous direction. UPDATE and DELETE events
// (read-receipts, edits) are never interpreted as +1/-1, since that
// risks negative or stuck counts; they only schedule an authoritative
// refetch. The counter therefore can run ahead of server truth inside
// the optimistic window but converges at every quiescent point.
type BadgeStore struct {
	userID        uint
	messages      repositories.MessageRepository
	notifications repositories.NotificationRepository
	feedClient    feed.Client
	bus           *signal.Bus

	actor   *Actor
	refetch *debouncer

	mu          stdsync.Mutex
	state       models.UnreadBadgeState
	watchers    map[int]func(models.UnreadBadgeState)
	nextWatcher int

	subs           []*feed.Subscription
	removeListener func()

	retryMu    stdsync.Mutex
	retryTimer *time.Timer
	stopped    bool
}

// NewBadgeStore wires a store; call Start to load and subscribe.
func NewBadgeStore(userID uint, messages repositories.MessageRepository, notifications repositories.NotificationRepository, feedClient feed.Client, bus *signal.Bus) *BadgeStore {
	s := &BadgeStore{
		userID:        userID,
		messages:      messages,
		notifications: notifications,
		feedClient:    feedClient,
		bus:           bus,
		actor:         NewActor(64),
		watchers:      make(map[int]func(models.UnreadBadgeState)),
	}
	s.refetch = newDebouncer(refetchDebounce, func() { s.refetchAuthoritative(true) })
	return s
}

// Start fetches the authoritative counts and subscribes to the change
// feed and the signal bus. A failed initial fetch degrades to zeroed
// badges and a scheduled retry instead of blocking.
func (s *BadgeStore) Start(ctx context.Context) error {
	count, hasUnread, err := s.fetchCounts(ctx)
	if err != nil {
		log.Warn().Err(err).Uint("user_id", s.userID).Msg("initial badge fetch failed, starting degraded")
		s.refetch.TriggerAfter(readRetryDelay)
	} else {
		s.apply(count, hasUnread)
	}

	msgSub, err := s.feedClient.Subscribe(
		fmt.Sprintf("messages:%d", s.userID),
		feed.TableFilter{Table: "messages", Column: "receiver_id", Value: fmt.Sprint(s.userID)},
		s.onMessageEvent,
	)
	if err != nil {
		return fmt.Errorf("subscribing to message feed: %w", err)
	}
	s.subs = append(s.subs, msgSub)

	notifSub, err := s.feedClient.Subscribe(
		fmt.Sprintf("notifications:%d", s.userID),
		feed.TableFilter{Table: "notifications", Column: "user_id", Value: fmt.Sprint(s.userID)},
		s.onNotificationEvent,
	)
	if err != nil {
		msgSub.Close()
		return fmt.Errorf("subscribing to notification feed: %w", err)
	}
	s.subs = append(s.subs, notifSub)

	s.removeListener = s.bus.AddListener(s)
	return nil
}

// Stop disposes subscriptions, timers and the actor. Required on
// teardown: a leaked subscription keeps counting against a dead store.
func (s *BadgeStore) Stop() {
	if s.removeListener != nil {
		s.removeListener()
	}
	for _, sub := range s.subs {
		sub.Close()
	}
	s.refetch.Stop()
	s.retryMu.Lock()
	s.stopped = true
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	s.retryMu.Unlock()
	s.actor.Close()
}

// Snapshot returns the current badge state.
func (s *BadgeStore) Snapshot() models.UnreadBadgeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Watch registers a state observer and returns its removal func.
func (s *BadgeStore) Watch(fn func(models.UnreadBadgeState)) (remove func()) {
	s.mu.Lock()
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// OnBadgeInvalidate implements signal.Listener: another screen changed
// something badge-relevant, so re-derive after the settle delay.
func (s *BadgeStore) OnBadgeInvalidate() {
	s.refetch.TriggerAfter(settleDelay)
}

// OnVisible compensates for events missed while hidden or disconnected.
func (s *BadgeStore) OnVisible() {
	s.refetch.TriggerAfter(settleDelay)
}

// ClearNotificationsBadge optimistically clears the dot when the user
// enters the notifications screen; the authoritative mark-all-read
// lands remotely and the next refetch confirms.
func (s *BadgeStore) ClearNotificationsBadge() {
	s.actor.Do(func() {
		s.mu.Lock()
		s.state.HasUnreadNotifications = false
		s.mu.Unlock()
		s.notifyWatchers()
	})
}

func (s *BadgeStore) onMessageEvent(ev feed.Event) {
	s.actor.Do(func() {
		if ev.Type != feed.EventInsert {
			// Not safely interpretable as +1/-1; go to the source.
			s.refetch.Trigger()
			return
		}
		var m models.Message
		if err := ev.DecodeNew(&m); err != nil || m.ReceiverID != s.userID {
			s.refetch.Trigger()
			return
		}
		s.mu.Lock()
		s.state.UnreadMessageCount++
		s.mu.Unlock()
		s.notifyWatchers()
		s.refetch.Trigger()
	})
}

func (s *BadgeStore) onNotificationEvent(ev feed.Event) {
	s.actor.Do(func() {
		if ev.Type != feed.EventInsert {
			s.refetch.Trigger()
			return
		}
		var n models.Notification
		if err := ev.DecodeNew(&n); err != nil || n.UserID != s.userID {
			s.refetch.Trigger()
			return
		}
		s.mu.Lock()
		s.state.HasUnreadNotifications = true
		s.mu.Unlock()
		s.notifyWatchers()
		s.refetch.Trigger()
	})
}

func (s *BadgeStore) fetchCounts(ctx context.Context) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	msgCount, err := s.messages.UnreadCount(ctx, s.userID)
	if err != nil {
		return 0, false, fmt.Errorf("unread message count: %w", err)
	}
	notifCount, err := s.notifications.GetUnreadCount(ctx, s.userID)
	if err != nil {
		return 0, false, fmt.Errorf("unread notification count: %w", err)
	}
	return msgCount, notifCount > 0, nil
}

// refetchAuthoritative replaces the projection with server truth. A
// transient failure gets exactly one bounded retry; a second failure is
// logged and left to the next invalidation.
func (s *BadgeStore) refetchAuthoritative(allowRetry bool) {
	count, hasUnread, err := s.fetchCounts(context.Background())
	if err != nil {
		if allowRetry {
			log.Debug().Err(err).Msg("badge refetch failed, retrying once")
			s.retryMu.Lock()
			if !s.stopped {
				s.retryTimer = time.AfterFunc(readRetryDelay, func() { s.refetchAuthoritative(false) })
			}
			s.retryMu.Unlock()
			return
		}
		log.Warn().Err(err).Uint("user_id", s.userID).Msg("badge refetch failed")
		return
	}
	s.actor.Do(func() { s.apply(count, hasUnread) })
}

func (s *BadgeStore) apply(count int64, hasUnread bool) {
	if count < 0 {
		count = 0
	}
	s.mu.Lock()
	s.state = models.UnreadBadgeState{
		UnreadMessageCount:     count,
		HasUnreadNotifications: hasUnread,
	}
	s.mu.Unlock()
	s.notifyWatchers()
}

func (s *BadgeStore) notifyWatchers() {
	s.mu.Lock()
	state := s.state
	fns := make([]func(models.UnreadBadgeState), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}
