// Package signal carries the process-wide "recompute badges now"
// broadcast. The event has no payload: listeners always re-derive from
// the authoritative store, so a stale or reordered signal can never
// install a wrong value.
package signal

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const recomputeTopic = "badges.recompute"

// Listener is implemented by every screen-level consumer that derives
// badge state.
type Listener interface {
	OnBadgeInvalidate()
}

// Bus is a process-wide broadcast with a single event type. Any
// component may Emit, any may listen; rapid emissions within the
// debounce window coalesce into one invalidation, and the final
// recomputation is never lost.
type Bus struct {
	pubsub   *gochannel.GoChannel
	debounce time.Duration

	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBus creates a running Bus. A zero debounce delivers immediately.
func NewBus(debounce time.Duration) (*Bus, error) {
	b := &Bus{
		pubsub:    gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{}),
		debounce:  debounce,
		listeners: make(map[int]Listener),
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	msgs, err := b.pubsub.Subscribe(ctx, recomputeTopic)
	if err != nil {
		cancel()
		return nil, err
	}

	b.wg.Add(1)
	go b.run(msgs)
	return b, nil
}

// Emit requests a badge recomputation. Never blocks the caller.
func (b *Bus) Emit() {
	msg := message.NewMessage(watermill.NewUUID(), nil)
	_ = b.pubsub.Publish(recomputeTopic, msg)
}

// AddListener registers a listener and returns its removal func.
func (b *Bus) AddListener(l Listener) (remove func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Close stops delivery. Pending coalesced signals are dropped; by then
// the stores they would have refreshed are shutting down too.
func (b *Bus) Close() error {
	b.cancel()
	b.wg.Wait()
	return b.pubsub.Close()
}

func (b *Bus) run(msgs <-chan *message.Message) {
	defer b.wg.Done()
	for msg := range msgs {
		msg.Ack()

		if b.debounce > 0 {
			// Coalesce the burst: drain everything arriving inside the
			// window, then fire once.
			timer := time.NewTimer(b.debounce)
		drain:
			for {
				select {
				case extra, ok := <-msgs:
					if !ok {
						timer.Stop()
						return
					}
					extra.Ack()
				case <-timer.C:
					break drain
				}
			}
		}

		b.mu.Lock()
		listeners := make([]Listener, 0, len(b.listeners))
		for _, l := range b.listeners {
			listeners = append(listeners, l)
		}
		b.mu.Unlock()

		for _, l := range listeners {
			l.OnBadgeInvalidate()
		}
	}
}
