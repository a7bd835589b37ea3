package ingest

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats counts events forwarded past the normalization stage. It is safe for
// concurrent use and doubles as a prometheus collector.
type Stats struct {
	processed atomic.Uint64
	desc      *prometheus.Desc
}

// NewStats creates a zeroed counter.
func NewStats() *Stats {
	return &Stats{
		desc: prometheus.NewDesc(
			"lotus_agent_events_processed_total",
			"Events forwarded past the normalization stage.",
			nil, nil,
		),
	}
}

// Inc records one forwarded event.
func (s *Stats) Inc() { s.processed.Add(1) }

// Processed returns the current count.
func (s *Stats) Processed() uint64 { return s.processed.Load() }

// Describe implements prometheus.Collector.
func (s *Stats) Describe(ch chan<- *prometheus.Desc) { ch <- s.desc }

// Collect implements prometheus.Collector.
func (s *Stats) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(s.desc, prometheus.CounterValue, float64(s.Processed()))
}
