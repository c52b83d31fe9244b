// Package sync holds the reconciliation stores: the canonical badge,
// conversation and transcript projections, each guarded by a
// single-writer actor so the local optimistic writer and the remote
// event writer can never interleave mid-mutation.
package sync

import "sync"

// Actor is a single-writer task queue. All mutations of one store are
// funneled through its actor, which makes them atomic with respect to
// each other without locks in the store itself.
type Actor struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

// NewActor starts the drain goroutine.
func NewActor(buffer int) *Actor {
	a := &Actor{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Actor) run() {
	defer close(a.done)
	for task := range a.tasks {
		task()
	}
}

// Do enqueues a mutation. Blocks only when the buffer is full; tasks
// submitted after Close are dropped.
func (a *Actor) Do(task func()) {
	defer func() {
		// Sends race with Close on teardown; a task lost to a closed
		// queue is a task against a disposed store.
		_ = recover()
	}()
	a.tasks <- task
}

// Barrier blocks until every task enqueued before it has run.
func (a *Actor) Barrier() {
	done := make(chan struct{})
	a.Do(func() { close(done) })
	select {
	case <-done:
	case <-a.done:
	}
}

// Close drains outstanding tasks and stops the actor.
func (a *Actor) Close() {
	a.once.Do(func() { close(a.tasks) })
	<-a.done
}
