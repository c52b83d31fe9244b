package feed

import (
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryClient is an in-process Client used by tests and local mode.
// Emit delivers synchronously on the caller's goroutine, which keeps
// test sequencing deterministic while preserving per-channel order.
type MemoryClient struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]*memorySub
	closed bool
}

type memorySub struct {
	filter  TableFilter
	handler Handler
}

// NewMemoryClient creates an empty MemoryClient
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{subs: make(map[string]map[int]*memorySub)}
}

// Subscribe implements Client.
func (c *MemoryClient) Subscribe(channelKey string, filter TableFilter, handler Handler) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("feed client is closed")
	}

	id := c.nextID
	c.nextID++
	if c.subs[channelKey] == nil {
		c.subs[channelKey] = make(map[int]*memorySub)
	}
	c.subs[channelKey][id] = &memorySub{filter: filter, handler: handler}

	return &Subscription{
		channelKey: channelKey,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs[channelKey], id)
		},
	}, nil
}

// Close implements Client.
func (c *MemoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.subs = make(map[string]map[int]*memorySub)
	return nil
}

// SubscriberCount reports the live subscriptions on a channel, which
// lets tests observe re-keying and teardown.
func (c *MemoryClient) SubscriberCount(channelKey string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs[channelKey])
}

// Emit delivers an event to every matching subscription on the channel.
func (c *MemoryClient) Emit(channelKey string, ev Event) {
	c.mu.Lock()
	var handlers []Handler
	for _, sub := range c.subs[channelKey] {
		if sub.filter.Matches(ev) {
			handlers = append(handlers, sub.handler)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// EmitRow is a convenience for tests: marshals the row as the new side.
func (c *MemoryClient) EmitRow(channelKey string, typ EventType, table string, row any) {
	payload, err := json.Marshal(row)
	if err != nil {
		panic(err)
	}
	ev := Event{Type: typ, Table: table}
	if typ == EventDelete {
		ev.Old = payload
	} else {
		ev.New = payload
	}
	c.Emit(channelKey, ev)
}
