// Package queue implements the bounded hand-off between pipeline stages.
//
// A Queue has many producers and a single consumer. Sends suspend while the
// queue is full, which is how a slow sink pushes back on fast inputs. When
// the consumer gives up (Abandon), every pending and future send fails with
// ErrReceiverGone instead of blocking forever.
package queue

import (
	"errors"
	"sync"

	"github.com/tinytelemetry/lotus-agent/internal/model"
)

const (
	// DefaultCapacity is used when the configured capacity is unset.
	DefaultCapacity = 1024
)

var (
	// ErrReceiverGone is returned by Send once the consumer has abandoned the queue.
	ErrReceiverGone = errors.New("queue: receiver gone")

	// ErrStopped is returned by Send when the caller's stop channel closed first.
	ErrStopped = errors.New("queue: send stopped")
)

// Queue is a bounded many-producer single-consumer event queue.
type Queue struct {
	ch   chan *model.Event
	gone chan struct{}

	closeOnce   sync.Once
	abandonOnce sync.Once
}

// New creates a queue holding at most capacity events. Capacities below 1
// are raised to 1.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan *model.Event, capacity),
		gone: make(chan struct{}),
	}
}

// Send enqueues ev, suspending while the queue is full. It returns
// ErrReceiverGone if the consumer abandons the queue and ErrStopped if stop
// closes first. A nil stop channel never fires.
//
// Send must not be called after Close.
func (q *Queue) Send(stop <-chan struct{}, ev *model.Event) error {
	select {
	case <-q.gone:
		return ErrReceiverGone
	default:
	}

	select {
	case q.ch <- ev:
		return nil
	case <-q.gone:
		return ErrReceiverGone
	case <-stop:
		return ErrStopped
	}
}

// C returns the receive side. It is closed by Close once every producer is done.
func (q *Queue) C() <-chan *model.Event {
	return q.ch
}

// Close marks the end of input. Called once all producers have returned.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.ch)
	})
}

// Abandon records that the consumer stopped receiving.
func (q *Queue) Abandon() {
	q.abandonOnce.Do(func() {
		close(q.gone)
	})
}

// Gone returns a channel closed once the consumer abandoned the queue.
func (q *Queue) Gone() <-chan struct{} {
	return q.gone
}

// Len reports the number of queued events.
func (q *Queue) Len() int { return len(q.ch) }

// Cap reports the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// IsStop reports whether err means the producer should unwind cleanly
// rather than report a failure.
func IsStop(err error) bool {
	return errors.Is(err, ErrReceiverGone) || errors.Is(err, ErrStopped)
}
