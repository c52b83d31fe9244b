// Package notifications builds the merged notification list: stored
// rows combined with views synthesized from pending connection requests
// that have no stored counterpart yet.
package notifications

import (
	"fmt"
	"sort"
	"time"

	"github.com/echogram/echogram/internal/models"
)

// View is the tagged union behind every list entry: exactly one of
// Stored or Synthesized is set.
type View struct {
	Stored      *models.Notification `json:"stored,omitempty"`
	Synthesized *models.Connection   `json:"synthesized,omitempty"`
}

// Type returns the view's notification type.
func (v View) Type() models.NotificationType {
	if v.Stored != nil {
		return v.Stored.Type
	}
	return models.NotificationRequestReceived
}

// ActorID returns the acting user.
func (v View) ActorID() uint {
	if v.Stored != nil {
		return v.Stored.ActorID
	}
	return v.Synthesized.RequesterID
}

// CreatedAt returns the entry's timestamp for sorting.
func (v View) CreatedAt() time.Time {
	if v.Stored != nil {
		return v.Stored.CreatedAt
	}
	return v.Synthesized.CreatedAt
}

// IsRead reports read state; synthesized entries are always unread.
func (v View) IsRead() bool {
	return v.Stored != nil && v.Stored.IsRead
}

// dedupKey identifies the underlying fact: (type, reference_id) when a
// reference exists, (type, actor_id) otherwise. A stored and a
// synthesized entry for the same fact collapse to the stored one.
func (v View) dedupKey() string {
	if v.Stored != nil {
		if v.Stored.ReferenceID != "" {
			return fmt.Sprintf("%s:%s", v.Stored.Type, v.Stored.ReferenceID)
		}
		return fmt.Sprintf("%s:actor:%d", v.Stored.Type, v.Stored.ActorID)
	}
	return fmt.Sprintf("%s:%d", models.NotificationRequestReceived, v.Synthesized.ID)
}

// Merge combines stored notifications with pending received connection
// requests, newest first, deduplicated so a request never shows twice.
func Merge(stored []models.Notification, pendingReceived []models.Connection) []View {
	views := make([]View, 0, len(stored)+len(pendingReceived))
	seen := make(map[string]bool, len(stored))

	for i := range stored {
		v := View{Stored: &stored[i]}
		key := v.dedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		views = append(views, v)
	}

	for i := range pendingReceived {
		conn := &pendingReceived[i]
		if conn.Status != models.ConnectionPending {
			continue
		}
		v := View{Synthesized: conn}
		if seen[v.dedupKey()] {
			continue
		}
		seen[v.dedupKey()] = true
		views = append(views, v)
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].CreatedAt().After(views[j].CreatedAt())
	})
	return views
}
