package signal

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingListener struct {
	calls int32
}

func (l *countingListener) OnBadgeInvalidate() {
	atomic.AddInt32(&l.calls, 1)
}

func (l *countingListener) count() int32 {
	return atomic.LoadInt32(&l.calls)
}

func TestBusDeliversToAllListeners(t *testing.T) {
	bus, err := NewBus(0)
	require.NoError(t, err)
	defer bus.Close()

	a, b := &countingListener{}, &countingListener{}
	bus.AddListener(a)
	bus.AddListener(b)

	bus.Emit()

	require.Eventually(t, func() bool {
		return a.count() == 1 && b.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBusCoalescesBurst(t *testing.T) {
	bus, err := NewBus(50 * time.Millisecond)
	require.NoError(t, err)
	defer bus.Close()

	l := &countingListener{}
	bus.AddListener(l)

	for i := 0; i < 10; i++ {
		bus.Emit()
	}

	require.Eventually(t, func() bool {
		return l.count() >= 1
	}, time.Second, 5*time.Millisecond)

	// The burst collapses to one invalidation; a slow trailing emit may
	// start a second window but ten emits never mean ten calls.
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, l.count(), int32(2))
}

func TestBusRemoveListenerStopsDelivery(t *testing.T) {
	bus, err := NewBus(0)
	require.NoError(t, err)
	defer bus.Close()

	l := &countingListener{}
	remove := bus.AddListener(l)

	bus.Emit()
	require.Eventually(t, func() bool { return l.count() == 1 }, time.Second, 5*time.Millisecond)

	remove()
	bus.Emit()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), l.count())
}
