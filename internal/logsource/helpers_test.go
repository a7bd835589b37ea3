package logsource

import (
	"log/slog"
	"testing"
	"time"

	"github.com/tinytelemetry/lotus-agent/internal/model"
	"github.com/tinytelemetry/lotus-agent/internal/queue"
	"github.com/tinytelemetry/lotus-agent/internal/shutdown"
)

func testLogger() *slog.Logger { return slog.Default() }

func recvEvent(t *testing.T, q *queue.Queue) *model.Event {
	t.Helper()
	select {
	case ev := <-q.C():
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func expectNoEvent(t *testing.T, q *queue.Queue, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-q.C():
		t.Fatalf("unexpected event %q from %q", ev.Line, ev.Source)
	case <-time.After(wait):
	}
}

// runSource starts src and returns its trigger and a channel with Run's result.
func runSource(t *testing.T, src LogSource, q *queue.Queue) (*shutdown.Trigger, <-chan error) {
	t.Helper()
	trigger, sig := shutdown.New()
	done := make(chan error, 1)
	go func() { done <- src.Run(q, sig.Clone()) }()
	t.Cleanup(func() { trigger.Fire() })
	return trigger, done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("source did not return")
		return nil
	}
}
