package ingest

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/lotus-agent/internal/model"
	"github.com/tinytelemetry/lotus-agent/internal/queue"
)

func TestProcessor_ForwardsInOrderAndCounts(t *testing.T) {
	t.Parallel()

	in, out := queue.New(8), queue.New(8)
	stats := NewStats()
	p := NewProcessor(stats, nil, true)

	lines := []string{"a 1.1.1.1", "b", "c ERROR x"}
	for _, l := range lines {
		require.NoError(t, in.Send(nil, model.NewEvent("t", l)))
	}
	in.Close()

	require.NoError(t, p.Run(in, out))
	out.Close()

	var got []*model.Event
	for ev := range out.C() {
		got = append(got, ev)
	}
	require.Len(t, got, 3)
	for i, ev := range got {
		assert.Equal(t, lines[i], ev.Line)
	}
	assert.Equal(t, "1.1.1.1", got[0].Indicators[0].Value)
	assert.Equal(t, "ERROR", got[2].Metadata.Level)
	assert.Equal(t, uint64(3), stats.Processed())
}

func TestProcessor_StopsWhenEgressGone(t *testing.T) {
	t.Parallel()

	in, out := queue.New(4), queue.New(1)
	stats := NewStats()
	p := NewProcessor(stats, nil, false)
	out.Abandon()

	require.NoError(t, in.Send(nil, model.NewEvent("t", "x")))

	done := make(chan error, 1)
	go func() { done <- p.Run(in, out) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop after egress was abandoned")
	}

	assert.ErrorIs(t, in.Send(nil, model.NewEvent("t", "late")), queue.ErrReceiverGone)
	assert.Zero(t, stats.Processed(), "an event that was never forwarded is not counted")
}

func TestStats_Collector(t *testing.T) {
	t.Parallel()

	s := NewStats()
	s.Inc()
	s.Inc()

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(s))
	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "lotus_agent_events_processed_total", families[0].GetName())
	require.Len(t, families[0].GetMetric(), 1)
	assert.Equal(t, float64(2), families[0].GetMetric()[0].GetCounter().GetValue())
}
