// Package shutdown provides the stop condition shared by every input
// adapter and sink of a run.
//
// A Trigger is held by exactly one writer. Any number of Signal handles
// observe it; once fired the condition never reverts, and every handle
// (including handles cloned after the transition) sees it immediately.
package shutdown

import (
	"context"
	"sync"
)

type state struct {
	once sync.Once
	done chan struct{}
}

// Trigger fires the stop condition.
type Trigger struct {
	s *state
}

// Signal observes the stop condition. The zero value never fires.
type Signal struct {
	s *state
}

// New returns a Trigger and a Signal sharing one stop condition.
func New() (*Trigger, Signal) {
	s := &state{done: make(chan struct{})}
	return &Trigger{s: s}, Signal{s: s}
}

// Derive returns a stop condition that fires when parent fires or when the
// returned Trigger is fired, whichever happens first. The returned Trigger
// must be fired eventually to release the watcher goroutine.
func Derive(parent Signal) (*Trigger, Signal) {
	t, sig := New()
	go func() {
		select {
		case <-parent.Done():
			t.Fire()
		case <-sig.Done():
		}
	}()
	return t, sig
}

// Fire transitions the condition to triggered. It reports whether this call
// performed the transition; later calls are no-ops.
func (t *Trigger) Fire() bool {
	fired := false
	t.s.once.Do(func() {
		close(t.s.done)
		fired = true
	})
	return fired
}

// Signal returns a reader handle for the trigger's condition.
func (t *Trigger) Signal() Signal {
	return Signal{s: t.s}
}

// Clone returns an independent handle sharing the same condition, safe to
// hand to a newly started goroutine.
func (s Signal) Clone() Signal {
	return Signal{s: s.s}
}

// IsTriggered reports the current state without blocking.
func (s Signal) IsTriggered() bool {
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}

// Done returns a channel closed once the condition is triggered, for use in
// select alongside a component's primary operation. A zero Signal returns a
// nil channel.
func (s Signal) Done() <-chan struct{} {
	if s.s == nil {
		return nil
	}
	return s.s.done
}

// Wait blocks until the condition is triggered.
func (s Signal) Wait() {
	<-s.Done()
}

// Context returns a context derived from parent that is cancelled when the
// condition triggers.
func (s Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if s.s == nil {
		return ctx, cancel
	}
	go func() {
		select {
		case <-s.s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
