// Package runtime assembles the per-session client: stores, services
// and the presence heartbeat, re-keyed whenever the session changes.
package runtime

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/echogram/echogram/internal/chat"
	"github.com/echogram/echogram/internal/connections"
	"github.com/echogram/echogram/internal/echoes"
	"github.com/echogram/echogram/internal/feed"
	"github.com/echogram/echogram/internal/notifications"
	"github.com/echogram/echogram/internal/posts"
	"github.com/echogram/echogram/internal/presence"
	"github.com/echogram/echogram/internal/reactions"
	"github.com/echogram/echogram/internal/repositories"
	"github.com/echogram/echogram/internal/session"
	"github.com/echogram/echogram/internal/signal"
	"github.com/echogram/echogram/internal/sync"
	"github.com/echogram/echogram/pkg/apperrors"
	"github.com/echogram/echogram/pkg/storage"
)

const (
	sessionResolveTimeout = 4 * time.Second
	signalDebounce        = 200 * time.Millisecond
	echoPurgeInterval     = time.Hour
)

// Repositories bundles the data access layer the runtime builds scopes
// from.
type Repositories struct {
	Messages      repositories.MessageRepository
	Notifications repositories.NotificationRepository
	Connections   repositories.ConnectionRepository
	Reactions     repositories.ReactionRepository
	Comments      repositories.CommentRepository
	Presence      repositories.PresenceRepository
	Profiles      repositories.ProfileRepository
	Posts         repositories.PostRepository
	Echoes        repositories.EchoRepository
}

// Scope is everything keyed to one signed-in user. A session switch
// tears the old scope down and builds a fresh one.
type Scope struct {
	UserID uint

	Badges        *sync.BadgeStore
	Conversations *sync.ConversationStore
	Notifications *notifications.Service
	Connections   *connections.Service
	Reactions     *reactions.Service
	Posts         *posts.Service
	Echoes        *echoes.Service
	Presence      *presence.Tracker

	bus   *signal.Bus
	purge chan struct{}

	chatMu     stdsync.Mutex
	chats      map[int]*Chat
	nextChatID int
}

func (s *Scope) registerChat(c *Chat) {
	s.chatMu.Lock()
	id := s.nextChatID
	s.nextChatID++
	s.chats[id] = c
	s.chatMu.Unlock()
	c.unregister = func() {
		s.chatMu.Lock()
		delete(s.chats, id)
		s.chatMu.Unlock()
	}
}

func (s *Scope) openChats() []*Chat {
	s.chatMu.Lock()
	defer s.chatMu.Unlock()
	out := make([]*Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, c)
	}
	return out
}

// Chat bundles an open transcript with its send service. Close it when
// the conversation leaves the screen.
type Chat struct {
	Transcript *sync.TranscriptStore
	Service    *chat.Service

	closeOnce  stdsync.Once
	unregister func()
}

func (c *Chat) Close() {
	c.closeOnce.Do(func() {
		if c.unregister != nil {
			c.unregister()
		}
		c.Transcript.Close()
	})
}

// Runtime owns the active scope and reacts to session changes and
// visibility transitions.
type Runtime struct {
	repos    Repositories
	sessions session.Service
	feed     feed.Client
	uploader *storage.Uploader

	mu           stdsync.Mutex
	active       *Scope
	visible      bool
	removeOnChng func()
}

func New(repos Repositories, sessions session.Service, feedClient feed.Client, uploader *storage.Uploader) *Runtime {
	return &Runtime{
		repos:    repos,
		sessions: sessions,
		feed:     feedClient,
		uploader: uploader,
		visible:  true,
	}
}

// Start resolves the current session, bounded by a short timeout, and
// builds the scope for it. A slow or failed resolve starts the runtime
// signed out; the session change listener picks the user up later.
func (r *Runtime) Start(ctx context.Context) error {
	r.removeOnChng = r.sessions.OnChange(r.onSessionChange)

	resolveCtx, cancel := context.WithTimeout(ctx, sessionResolveTimeout)
	defer cancel()
	sess, err := r.sessions.Current(resolveCtx)
	if err != nil {
		log.Warn().Err(err).Msg("session resolve failed, starting signed out")
		return nil
	}
	if sess == nil {
		return nil
	}
	return r.switchTo(ctx, sess)
}

// Active returns the current scope, or nil when signed out.
func (r *Runtime) Active() *Scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// OpenChat builds a live transcript plus send service for one peer.
func (r *Runtime) OpenChat(ctx context.Context, peerID uint) (*Chat, error) {
	r.mu.Lock()
	scope := r.active
	r.mu.Unlock()
	if scope == nil {
		return nil, apperrors.Unauthenticated("no active session")
	}

	transcript := sync.NewTranscriptStore(scope.UserID, peerID, r.repos.Messages, r.feed, scope.bus)
	if err := transcript.Open(ctx); err != nil {
		return nil, err
	}
	svc := chat.NewService(scope.UserID, peerID, r.repos.Messages, scope.Connections, transcript, scope.bus)
	c := &Chat{Transcript: transcript, Service: svc}
	scope.registerChat(c)
	return c, nil
}

// SetVisible propagates app foreground and background transitions to
// the stores and the presence heartbeat.
func (r *Runtime) SetVisible(visible bool) {
	r.mu.Lock()
	r.visible = visible
	scope := r.active
	r.mu.Unlock()
	if scope == nil {
		return
	}
	if visible {
		scope.Presence.Show()
		scope.Badges.OnVisible()
		scope.Conversations.OnVisible()
		// An open chat loses change-feed events while hidden the same
		// way the badge stores do; its transcript reconciles too.
		for _, c := range scope.openChats() {
			c.Transcript.OnVisible()
		}
	} else {
		scope.Presence.Hide()
	}
}

// Stop tears down the active scope and stops listening for session
// changes.
func (r *Runtime) Stop() {
	if r.removeOnChng != nil {
		r.removeOnChng()
	}
	r.mu.Lock()
	scope := r.active
	r.active = nil
	r.mu.Unlock()
	if scope != nil {
		r.teardown(scope)
	}
}

func (r *Runtime) onSessionChange(ev session.ChangeEvent) {
	ctx := context.Background()
	if ev.New == nil {
		r.mu.Lock()
		scope := r.active
		r.active = nil
		r.mu.Unlock()
		if scope != nil {
			r.teardown(scope)
		}
		return
	}
	if err := r.switchTo(ctx, ev.New); err != nil {
		log.Error().Err(err).Uint("user_id", ev.New.UserID).Msg("failed to build session scope")
	}
}

func (r *Runtime) switchTo(ctx context.Context, sess *session.Session) error {
	scope, err := r.buildScope(ctx, sess.UserID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	old := r.active
	r.active = scope
	visible := r.visible
	r.mu.Unlock()

	if old != nil {
		r.teardown(old)
	}
	if !visible {
		scope.Presence.Hide()
	}
	return nil
}

func (r *Runtime) buildScope(ctx context.Context, userID uint) (*Scope, error) {
	bus, err := signal.NewBus(signalDebounce)
	if err != nil {
		return nil, err
	}

	scope := &Scope{
		UserID: userID,
		bus:    bus,
		purge:  make(chan struct{}),
		chats:  make(map[int]*Chat),
	}

	scope.Badges = sync.NewBadgeStore(userID, r.repos.Messages, r.repos.Notifications, r.feed, bus)
	scope.Conversations = sync.NewConversationStore(userID, r.repos.Messages, r.repos.Profiles, r.feed, bus)
	scope.Connections = connections.NewService(userID, r.repos.Connections, r.repos.Notifications, bus)
	scope.Notifications = notifications.NewService(userID, r.repos.Notifications, r.repos.Connections, bus)
	scope.Reactions = reactions.NewService(userID, r.repos.Reactions, r.repos.Posts, r.repos.Notifications)
	scope.Posts = posts.NewService(userID, r.repos.Posts, r.repos.Profiles, r.repos.Reactions, r.repos.Comments, r.repos.Notifications)
	scope.Echoes = echoes.NewService(userID, r.repos.Echoes, r.repos.Profiles, r.repos.Notifications, scope.Connections, r.uploader)
	scope.Presence = presence.NewTracker(userID, r.repos.Presence)

	if err := scope.Badges.Start(ctx); err != nil {
		bus.Close()
		return nil, err
	}
	if err := scope.Conversations.Start(ctx); err != nil {
		scope.Badges.Stop()
		bus.Close()
		return nil, err
	}

	scope.Presence.Start()
	go r.purgeLoop(scope)
	return scope, nil
}

func (r *Runtime) purgeLoop(scope *Scope) {
	ticker := time.NewTicker(echoPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := scope.Echoes.PurgeExpired(ctx); err != nil {
				log.Debug().Err(err).Msg("echo purge failed")
			}
			cancel()
		case <-scope.purge:
			return
		}
	}
}

func (r *Runtime) teardown(scope *Scope) {
	close(scope.purge)
	for _, c := range scope.openChats() {
		c.Close()
	}
	scope.Presence.Stop()
	scope.Conversations.Stop()
	scope.Badges.Stop()
	if err := scope.bus.Close(); err != nil {
		log.Debug().Err(err).Msg("signal bus close failed")
	}
}
