package ingest

import (
	"log/slog"
	"strings"

	"github.com/tinytelemetry/lotus-agent/internal/model"
	"github.com/tinytelemetry/lotus-agent/internal/queue"
)

// Processor is the normalization stage between the ingress and egress queues.
type Processor struct {
	stats       *Stats
	logger      *slog.Logger
	debugEvents bool
}

// NewProcessor creates a stage that counts into stats. When debugEvents is
// set every normalized event is logged at debug level.
func NewProcessor(stats *Stats, logger *slog.Logger, debugEvents bool) *Processor {
	if stats == nil {
		stats = NewStats()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		stats:       stats,
		logger:      logger.With("component", "normalize"),
		debugEvents: debugEvents,
	}
}

// Run drains in until it is closed, forwarding each normalized event to out.
// If the consumer of out goes away, Run abandons in so producers unwind too.
// Run never closes out; the caller does that after Run returns.
func (p *Processor) Run(in, out *queue.Queue) error {
	for ev := range in.C() {
		Normalize(ev)
		if p.debugEvents {
			p.logEvent(ev)
		}
		if err := out.Send(nil, ev); err != nil {
			p.logger.Debug("egress closed, stopping", "error", err)
			in.Abandon()
			return nil
		}
		p.stats.Inc()
	}
	return nil
}

func (p *Processor) logEvent(ev *model.Event) {
	attrs := []any{"source", ev.Source, "line", ev.Line}
	if len(ev.Indicators) > 0 {
		values := make([]string, 0, len(ev.Indicators))
		for _, ind := range ev.Indicators {
			values = append(values, ind.Kind.String()+"="+ind.Value)
		}
		attrs = append(attrs, "indicators", strings.Join(values, ","))
	}
	if ev.Metadata.Level != "" {
		attrs = append(attrs, "level", ev.Metadata.Level)
	}
	if ev.Metadata.AppName != "" {
		attrs = append(attrs, "app_name", ev.Metadata.AppName)
	}
	if ev.Metadata.ObservedAt != nil {
		attrs = append(attrs, "observed_ts", *ev.Metadata.ObservedAt)
	}
	p.logger.Debug("normalized event", attrs...)
}
