// Package feed delivers row-level change notifications from the remote
// change-feed service. Delivery is at-least-once and ordered only within
// a single channel; nothing is delivered while disconnected, so gap
// repair belongs to the reconciliation layer, never to this package.
package feed

import (
	"encoding/json"
	"fmt"
	"sync"
)

// EventType discriminates row change notifications
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is one row change on a subscribed channel. New carries the row
// after an insert/update, Old the row before an update/delete.
type Event struct {
	Type  EventType       `json:"type"`
	Table string          `json:"table"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// DecodeNew unmarshals the new row into v
func (e Event) DecodeNew(v any) error {
	if len(e.New) == 0 {
		return fmt.Errorf("event has no new row")
	}
	return json.Unmarshal(e.New, v)
}

// DecodeOld unmarshals the old row into v
func (e Event) DecodeOld(v any) error {
	if len(e.Old) == 0 {
		return fmt.Errorf("event has no old row")
	}
	return json.Unmarshal(e.Old, v)
}

// TableFilter scopes a subscription server-side. Column/Value is an
// equality predicate, normally the viewing user's id so the socket never
// carries irrelevant traffic.
type TableFilter struct {
	Table  string `json:"table"`
	Column string `json:"column,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Matches reports whether an event passes the filter. The socket backend
// filters server-side; the in-memory backend uses this directly.
func (f TableFilter) Matches(ev Event) bool {
	if f.Table != "" && f.Table != ev.Table {
		return false
	}
	if f.Column == "" {
		return true
	}
	row := ev.New
	if len(row) == 0 {
		row = ev.Old
	}
	var fields map[string]any
	if err := json.Unmarshal(row, &fields); err != nil {
		return false
	}
	v, ok := fields[f.Column]
	if !ok {
		return false
	}
	return fmt.Sprint(v) == f.Value
}

// Handler receives events for one subscription. Handlers on the same
// channel are invoked sequentially in delivery order.
type Handler func(Event)

// Client is the change-feed collaborator boundary.
type Client interface {
	// Subscribe attaches a handler to a channel. The returned
	// Subscription must be closed exactly once on view teardown;
	// a forgotten close leaks the handler and double-counts events.
	Subscribe(channelKey string, filter TableFilter, handler Handler) (*Subscription, error)
	Close() error
}

// Subscription is a disposable handle on one channel subscription.
type Subscription struct {
	channelKey string
	once       sync.Once
	stop       func()
}

// Channel returns the subscription's channel key
func (s *Subscription) Channel() string { return s.channelKey }

// Close detaches the handler. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.stop)
}
