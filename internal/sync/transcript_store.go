package sync

import (
	"context"
	"fmt"
	stdsync "sync"

	"github.com/rs/zerolog/log"

	"github.com/echogram/echogram/internal/feed"
	"github.com/echogram/echogram/internal/models"
	"github.com/echogram/echogram/internal/repositories"
	"github.com/echogram/echogram/internal/signal"
)

const transcriptLimit = 200

// TranscriptStore maintains the message list for one open chat. Pending
// optimistic messages ride at the tail until the server-confirmed row
// replaces them in the same slot; a full reload replaces confirmed rows
// but re-appends whatever is still pending.
type TranscriptStore struct {
	userID     uint
	peerID     uint
	messages   repositories.MessageRepository
	feedClient feed.Client
	bus        *signal.Bus

	actor  *Actor
	reload *debouncer

	mu       stdsync.Mutex
	msgs     []models.Message
	watchers map[int]func([]models.Message)
	nextID   int

	sub *feed.Subscription
}

// NewTranscriptStore wires a store for one peer; call Open to load.
func NewTranscriptStore(userID, peerID uint, messages repositories.MessageRepository, feedClient feed.Client, bus *signal.Bus) *TranscriptStore {
	s := &TranscriptStore{
		userID:     userID,
		peerID:     peerID,
		messages:   messages,
		feedClient: feedClient,
		bus:        bus,
		actor:      NewActor(64),
		watchers:   make(map[int]func([]models.Message)),
	}
	s.reload = newDebouncer(refetchDebounce, s.reloadAuthoritative)
	return s
}

// Open loads the transcript, marks the peer's messages read and
// subscribes to live changes. Entering the chat is what clears the
// unread state, so the cross-view signal fires here too.
func (s *TranscriptStore) Open(ctx context.Context) error {
	if err := s.loadOnce(ctx); err != nil {
		return err
	}

	sub, err := s.feedClient.Subscribe(
		fmt.Sprintf("chat:%d", s.userID),
		feed.TableFilter{Table: "messages"},
		s.onEvent,
	)
	if err != nil {
		return fmt.Errorf("subscribing to chat feed: %w", err)
	}
	s.sub = sub
	return nil
}

// Close disposes the subscription, pending reloads and the actor.
func (s *TranscriptStore) Close() {
	if s.sub != nil {
		s.sub.Close()
	}
	s.reload.Stop()
	s.actor.Close()
}

// Snapshot returns a copy of the current transcript.
func (s *TranscriptStore) Snapshot() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Watch registers a transcript observer and returns its removal func.
func (s *TranscriptStore) Watch(fn func([]models.Message)) (remove func()) {
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

// OnVisible forces a full reconciliation pass: messages that arrived
// server-side during a disconnect are only recoverable by refetch. The
// settle delay gives the write that woke the app time to land.
func (s *TranscriptStore) OnVisible() {
	s.reload.TriggerAfter(settleDelay)
}

// AppendPending adds an optimistic message. Synchronous with respect to
// the store: it returns once the mutation is applied.
func (s *TranscriptStore) AppendPending(m models.Message) {
	s.actor.Do(func() {
		s.mu.Lock()
		s.msgs = append(s.msgs, m)
		s.mu.Unlock()
		s.notifyWatchers()
	})
	s.actor.Barrier()
}

// ConfirmPending replaces the pending message carrying clientID with the
// server-confirmed row, keeping its slot.
func (s *TranscriptStore) ConfirmPending(clientID string, confirmed models.Message) {
	s.actor.Do(func() {
		s.mu.Lock()
		for i := range s.msgs {
			if s.msgs[i].ClientID == clientID && s.msgs[i].Pending {
				confirmed.ClientID = clientID
				confirmed.Pending = false
				s.msgs[i] = confirmed
				break
			}
		}
		s.mu.Unlock()
		s.notifyWatchers()
	})
	s.actor.Barrier()
}

// RemovePending drops a failed optimistic message.
func (s *TranscriptStore) RemovePending(clientID string) {
	s.actor.Do(func() {
		s.mu.Lock()
		for i := range s.msgs {
			if s.msgs[i].ClientID == clientID && s.msgs[i].Pending {
				s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		s.notifyWatchers()
	})
	s.actor.Barrier()
}

func (s *TranscriptStore) onEvent(ev feed.Event) {
	s.actor.Do(func() {
		if ev.Type != feed.EventInsert {
			// Edits and deletions reshape the transcript in ways a
			// single event cannot describe safely; refetch instead.
			s.reload.Trigger()
			return
		}

		var m models.Message
		if err := ev.DecodeNew(&m); err != nil {
			s.reload.Trigger()
			return
		}
		if !s.isForThisChat(m) {
			return
		}

		s.mu.Lock()
		if s.containsLocked(m) {
			// At-least-once delivery: a redelivered or already
			// reconciled row must not double-apply.
			s.mu.Unlock()
			return
		}
		s.msgs = append(s.msgs, m)
		s.mu.Unlock()
		s.notifyWatchers()

		if m.SenderID == s.peerID {
			// The chat is open, so the new message is read immediately;
			// the flip is idempotent and the nav badge re-derives.
			s.markReadRemote()
		}
	})
}

func (s *TranscriptStore) isForThisChat(m models.Message) bool {
	return (m.SenderID == s.userID && m.ReceiverID == s.peerID) ||
		(m.SenderID == s.peerID && m.ReceiverID == s.userID)
}

// containsLocked dedups by server id, and treats an own-sent row as
// present while its optimistic twin is still awaiting confirmation;
// the command's reconcile step owns that slot.
func (s *TranscriptStore) containsLocked(m models.Message) bool {
	for i := range s.msgs {
		if m.ID != 0 && s.msgs[i].ID == m.ID {
			return true
		}
		if m.SenderID == s.userID && s.msgs[i].Pending && s.msgs[i].Content == m.Content {
			return true
		}
	}
	return false
}

func (s *TranscriptStore) loadOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	msgs, err := s.messages.GetTranscript(ctx, s.userID, s.peerID, transcriptLimit)
	if err != nil {
		return fmt.Errorf("loading transcript: %w", err)
	}

	s.actor.Do(func() {
		s.mu.Lock()
		var pending []models.Message
		for _, m := range s.msgs {
			if m.Pending {
				pending = append(pending, m)
			}
		}
		s.msgs = append(msgs, pending...)
		s.mu.Unlock()
		s.notifyWatchers()
	})
	s.actor.Barrier()

	s.markReadRemote()
	return nil
}

func (s *TranscriptStore) reloadAuthoritative() {
	if err := s.loadOnce(context.Background()); err != nil {
		log.Warn().Err(err).Uint("peer_id", s.peerID).Msg("transcript reload failed")
	}
}

// markReadRemote flips the peer's unread rows and signals the other
// screens to re-derive their badges. Best-effort: a failure is logged
// and the next reconciliation pass repairs it.
func (s *TranscriptStore) markReadRemote() {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	if err := s.messages.MarkConversationRead(ctx, s.peerID, s.userID); err != nil {
		log.Warn().Err(err).Uint("peer_id", s.peerID).Msg("marking conversation read failed")
		return
	}
	s.bus.Emit()
}

func (s *TranscriptStore) notifyWatchers() {
	s.mu.Lock()
	snapshot := make([]models.Message, len(s.msgs))
	copy(snapshot, s.msgs)
	fns := make([]func([]models.Message), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snapshot)
	}
}
