// Package session resolves who the viewer is and announces account
// switches so the rest of the runtime can re-key its subscriptions.
package session

import (
	"context"
	"sync"

	"github.com/echogram/echogram/internal/models"
)

// Session identifies the signed-in viewer.
type Session struct {
	UserID  uint
	Token   string
	Profile models.ProfileCompact
}

// ChangeEvent announces a session transition. Old is zero on first
// sign-in; New is zero on sign-out.
type ChangeEvent struct {
	Old *Session
	New *Session
}

// Service is the authentication surface the runtime depends on.
type Service interface {
	// Current resolves the active session, or nil when signed out.
	Current(ctx context.Context) (*Session, error)
	// SignIn authenticates with email and password.
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SignInWithFirebase exchanges a Firebase ID token for a session,
	// provisioning a profile on first contact.
	SignInWithFirebase(ctx context.Context, idToken string) (*Session, error)
	// SignUp registers a local account.
	SignUp(ctx context.Context, req models.SignUpRequest) (*Session, error)
	// SignOut clears the active session.
	SignOut(ctx context.Context) error
	// OnChange registers a listener for session transitions; the
	// returned func removes it.
	OnChange(fn func(ChangeEvent)) (remove func())
}

// notifier is the shared listener plumbing embedded by implementations.
type notifier struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func(ChangeEvent)
}

func (n *notifier) OnChange(fn func(ChangeEvent)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners == nil {
		n.listeners = make(map[int]func(ChangeEvent))
	}
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
	}
}

func (n *notifier) emit(ev ChangeEvent) {
	n.mu.Lock()
	fns := make([]func(ChangeEvent), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
