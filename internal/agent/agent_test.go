package agent

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/lotus-agent/internal/config"
	"github.com/tinytelemetry/lotus-agent/internal/logsource"
	"github.com/tinytelemetry/lotus-agent/internal/model"
	"github.com/tinytelemetry/lotus-agent/internal/output"
	"github.com/tinytelemetry/lotus-agent/internal/queue"
	"github.com/tinytelemetry/lotus-agent/internal/shutdown"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type funcSource struct {
	name string
	run  func(q *queue.Queue, sig shutdown.Signal) error
}

func (s *funcSource) Name() string { return s.name }

func (s *funcSource) Run(q *queue.Queue, sig shutdown.Signal) error { return s.run(q, sig) }

type funcSink struct {
	run func(q *queue.Queue, sig shutdown.Signal) error
}

func (s *funcSink) Name() string { return "test" }

func (s *funcSink) Run(q *queue.Queue, sig shutdown.Signal) error { return s.run(q, sig) }

// collectSink records every event's line until its queue closes.
type collectSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *collectSink) Name() string { return "collect" }

func (s *collectSink) Run(q *queue.Queue, _ shutdown.Signal) error {
	for ev := range q.C() {
		s.mu.Lock()
		s.lines = append(s.lines, ev.Line)
		s.mu.Unlock()
	}
	return nil
}

func (s *collectSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func linesSource(name string, lines ...string) *funcSource {
	return &funcSource{name: name, run: func(q *queue.Queue, sig shutdown.Signal) error {
		for _, l := range lines {
			if err := q.Send(sig.Done(), model.NewEvent(name, l)); err != nil {
				return nil
			}
		}
		return nil
	}}
}

// blockingSource produces nothing and returns once the signal fires.
func blockingSource(name string) *funcSource {
	return &funcSource{name: name, run: func(_ *queue.Queue, sig shutdown.Signal) error {
		sig.Wait()
		return nil
	}}
}

func testAgent(sink output.Sink, sources ...logsource.LogSource) *Agent {
	cfg := &config.Config{Runtime: config.RuntimeConfig{ChannelSize: 4, HealthInterval: time.Hour}}
	a := newAgent(cfg, Options{Logger: testLogger()})
	a.sources = sources
	a.sink = sink
	return a
}

func runAsync(a *Agent, sig shutdown.Signal) <-chan error {
	done := make(chan error, 1)
	go func() { done <- a.Run(sig) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not finish")
		return nil
	}
}

func TestNew_NoInputs(t *testing.T) {
	t.Parallel()

	_, err := New(&config.Config{Output: config.OutputConfig{Type: config.OutputStdout}}, Options{Logger: testLogger()})
	assert.ErrorIs(t, err, config.ErrNoInputs)
}

func TestNew_BuildError(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Inputs: []config.InputConfig{{Type: "carrier_pigeon"}},
		Output: config.OutputConfig{Type: config.OutputStdout},
	}
	_, err := New(cfg, Options{Logger: testLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inputs[0]")
}

func TestRun_StdinToStdout(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cfg := &config.Config{
		Runtime: config.RuntimeConfig{ChannelSize: 8, HealthInterval: time.Hour},
		Inputs:  []config.InputConfig{{Type: config.InputStdin}},
		Output:  config.OutputConfig{Type: config.OutputStdout},
	}
	a, err := New(cfg, Options{
		Logger: testLogger(),
		Stdin:  strings.NewReader("hello 10.0.0.1\n\nsecond line\n"),
		Stdout: &out,
	})
	require.NoError(t, err)
	defer a.Close()

	_, sig := shutdown.New()
	require.NoError(t, waitRun(t, runAsync(a, sig)))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[stdin] hello 10.0.0.1 [ioc:ip=10.0.0.1]")
	assert.Contains(t, lines[1], "[stdin] second line")
	assert.EqualValues(t, 2, a.Stats().Processed())
	assert.Equal(t, "stdout", a.SinkName())
	assert.Nil(t, a.Store())
}

func TestRun_MergesAllInputs(t *testing.T) {
	t.Parallel()

	sink := &collectSink{}
	a := testAgent(sink,
		linesSource("a", "a1", "a2", "a3"),
		linesSource("b", "b1", "b2"),
	)

	_, sig := shutdown.New()
	require.NoError(t, waitRun(t, runAsync(a, sig)))

	assert.ElementsMatch(t, []string{"a1", "a2", "a3", "b1", "b2"}, sink.Lines())
	assert.EqualValues(t, 5, a.Stats().Processed())
}

func TestRun_InputFailureIsIsolated(t *testing.T) {
	t.Parallel()

	sink := &collectSink{}
	broken := &funcSource{name: "broken", run: func(*queue.Queue, shutdown.Signal) error {
		return errors.New("bind: address in use")
	}}
	a := testAgent(sink, broken, linesSource("ok", "x", "y"))

	_, sig := shutdown.New()
	require.NoError(t, waitRun(t, runAsync(a, sig)))
	assert.Equal(t, []string{"x", "y"}, sink.Lines())
}

func TestRun_ExternalShutdown(t *testing.T) {
	t.Parallel()

	sink := &collectSink{}
	a := testAgent(sink, blockingSource("tcp"), blockingSource("udp"))

	trigger, sig := shutdown.New()
	done := runAsync(a, sig)

	select {
	case err := <-done:
		t.Fatalf("run returned before shutdown: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	trigger.Fire()
	assert.NoError(t, waitRun(t, done))
}

func TestRun_SinkFailureUnwindsInputs(t *testing.T) {
	t.Parallel()

	sinkErr := errors.New("connection refused")
	sink := &funcSink{run: func(q *queue.Queue, _ shutdown.Signal) error {
		<-q.C()
		return sinkErr
	}}

	// A producer that never stops on its own and a reader that waits for
	// shutdown: both must unwind once the sink is gone.
	flood := &funcSource{name: "flood", run: func(q *queue.Queue, sig shutdown.Signal) error {
		for {
			if err := q.Send(sig.Done(), model.NewEvent("flood", "line")); err != nil {
				return nil
			}
		}
	}}
	a := testAgent(sink, flood, blockingSource("idle"))

	_, sig := shutdown.New()
	err := waitRun(t, runAsync(a, sig))
	require.Error(t, err)
	assert.ErrorIs(t, err, sinkErr)
	assert.False(t, sig.IsTriggered(), "the external signal belongs to the caller")
}

func TestRun_SourcePanicIsFatal(t *testing.T) {
	t.Parallel()

	sink := &collectSink{}
	boom := &funcSource{name: "boom", run: func(*queue.Queue, shutdown.Signal) error {
		panic("unexpected state")
	}}
	a := testAgent(sink, boom, blockingSource("idle"))

	_, sig := shutdown.New()
	err := waitRun(t, runAsync(a, sig))

	var p *PanicError
	require.ErrorAs(t, err, &p)
	assert.Equal(t, "input boom", p.Task)
	assert.Equal(t, "unexpected state", p.Value)
	assert.NotEmpty(t, p.Stack)
}

func TestRun_SinkPanicIsFatal(t *testing.T) {
	t.Parallel()

	sink := &funcSink{run: func(q *queue.Queue, _ shutdown.Signal) error {
		<-q.C()
		panic("sink exploded")
	}}
	a := testAgent(sink, linesSource("a", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10"))

	_, sig := shutdown.New()
	err := waitRun(t, runAsync(a, sig))

	var p *PanicError
	require.ErrorAs(t, err, &p)
	assert.Equal(t, "output test", p.Task)
}

func TestHealthLoop_FinalSnapshotOnSignal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, nil))

	cfg := &config.Config{Runtime: config.RuntimeConfig{HealthInterval: 10 * time.Millisecond}}
	a := newAgent(cfg, Options{Logger: logger})
	a.stats.Inc()

	trigger, sig := shutdown.New()
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.healthLoop(sig, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	trigger.Fire()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("health loop did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	out := buf.String()
	assert.Contains(t, out, "pipeline health")
	assert.Contains(t, out, "processed=1")
	assert.Contains(t, out, "(final)")
}

type lockedWriter struct {
	w  io.Writer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
