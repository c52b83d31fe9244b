// Package presence maintains the viewer's online heartbeat and watches
// peers' presence rows over the feed. Everything here is best effort:
// presence writes never surface errors to callers.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/echogram/echogram/internal/feed"
	"github.com/echogram/echogram/internal/models"
	"github.com/echogram/echogram/internal/repositories"
)

const heartbeatInterval = 30 * time.Second

// Tracker publishes the viewer's presence on a fixed heartbeat and
// flips it off when the app is hidden or stopped.
type Tracker struct {
	userID   uint
	presence repositories.PresenceRepository

	mu      sync.Mutex
	visible bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

func NewTracker(userID uint, presence repositories.PresenceRepository) *Tracker {
	return &Tracker{
		userID:   userID,
		presence: presence,
		visible:  true,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the heartbeat loop. The first beat fires immediately.
func (t *Tracker) Start() {
	go t.run()
}

func (t *Tracker) run() {
	defer close(t.done)
	t.beat()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.beat()
		case <-t.stop:
			return
		}
	}
}

func (t *Tracker) beat() {
	t.mu.Lock()
	visible := t.visible && !t.stopped
	t.mu.Unlock()
	if !visible {
		return
	}
	t.write(true)
}

// Touch records activity outside the ticker, e.g. after a user action.
func (t *Tracker) Touch() {
	t.beat()
}

// Hide marks the viewer offline while the app is backgrounded.
func (t *Tracker) Hide() {
	t.mu.Lock()
	t.visible = false
	t.mu.Unlock()
	t.write(false)
}

// Show marks the viewer online again and resumes heartbeats.
func (t *Tracker) Show() {
	t.mu.Lock()
	t.visible = true
	stopped := t.stopped
	t.mu.Unlock()
	if !stopped {
		t.write(true)
	}
}

// Stop publishes a final offline state and ends the heartbeat loop.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()
	close(t.stop)
	<-t.done
	t.write(false)
}

func (t *Tracker) write(online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec := models.PresenceRecord{UserID: t.userID, IsOnline: online, LastSeen: time.Now()}
	if err := t.presence.Upsert(ctx, &rec); err != nil {
		log.Debug().Err(err).Bool("online", online).Msg("presence write failed")
	}
}

// Watcher follows one peer's presence row: seeded from the store, then
// updated live from the feed.
type Watcher struct {
	peerID uint

	mu      sync.Mutex
	current models.PresenceRecord
	sub     *feed.Subscription

	onChange func(models.PresenceRecord)
}

// Watch resolves the peer's current presence and subscribes to changes.
// onChange runs on the feed's delivery goroutine.
func Watch(ctx context.Context, client feed.Client, presence repositories.PresenceRepository, peerID uint, onChange func(models.PresenceRecord)) (*Watcher, error) {
	w := &Watcher{peerID: peerID, onChange: onChange}

	if rec, err := presence.Get(ctx, peerID); err != nil {
		log.Debug().Err(err).Uint("peer_id", peerID).Msg("presence lookup failed")
	} else if rec != nil {
		w.current = *rec
	} else {
		w.current = models.PresenceRecord{UserID: peerID}
	}

	channel := fmt.Sprintf("presence:%d", peerID)
	filter := feed.TableFilter{Table: "presence_records", Column: "user_id", Value: fmt.Sprint(peerID)}
	sub, err := client.Subscribe(channel, filter, func(ev feed.Event) {
		if ev.Type == feed.EventDelete {
			return
		}
		var rec models.PresenceRecord
		if err := ev.DecodeNew(&rec); err != nil {
			log.Debug().Err(err).Msg("bad presence payload")
			return
		}
		w.mu.Lock()
		w.current = rec
		cb := w.onChange
		w.mu.Unlock()
		if cb != nil {
			cb(rec)
		}
	})
	if err != nil {
		return nil, err
	}
	w.sub = sub
	return w, nil
}

// Current returns the latest known presence for the peer.
func (w *Watcher) Current() models.PresenceRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Close stops the live subscription.
func (w *Watcher) Close() {
	if w.sub != nil {
		w.sub.Close()
	}
}

// LastSeenLabel renders a presence record the way chat headers show it.
func LastSeenLabel(rec models.PresenceRecord, now time.Time) string {
	if rec.IsOnline {
		return "online"
	}
	if rec.LastSeen.IsZero() {
		return "offline"
	}
	d := now.Sub(rec.LastSeen)
	switch {
	case d < time.Minute:
		return "last seen just now"
	case d < time.Hour:
		return fmt.Sprintf("last seen %dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("last seen %dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("last seen %dd ago", int(d.Hours()/24))
	}
}
