package output

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tinytelemetry/lotus-agent/internal/model"
	"github.com/tinytelemetry/lotus-agent/internal/queue"
	"github.com/tinytelemetry/lotus-agent/internal/shutdown"
)

// StdoutSink writes one human-readable line per event.
type StdoutSink struct {
	w *bufio.Writer
}

func NewStdoutSink(w io.Writer) *StdoutSink {
	return &StdoutSink{w: bufio.NewWriter(w)}
}

func (s *StdoutSink) Name() string { return "stdout" }

// FormatConsole renders "{ingested_at} [{source}] {line}" plus an indicator
// summary " [ioc:ip=a,ip=b]" when indicators were found.
func FormatConsole(ev *model.Event) string {
	var b strings.Builder
	b.WriteString(ev.IngestedAt.UTC().Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(ev.Source)
	b.WriteString("] ")
	b.WriteString(ev.Line)
	if len(ev.Indicators) > 0 {
		b.WriteString(" [ioc:")
		for i, ind := range ev.Indicators {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(ind.Kind.String())
			b.WriteByte('=')
			b.WriteString(ind.Value)
		}
		b.WriteByte(']')
	}
	return b.String()
}

func (s *StdoutSink) Run(q *queue.Queue, _ shutdown.Signal) error {
	for ev := range q.C() {
		if _, err := s.w.WriteString(FormatConsole(ev) + "\n"); err != nil {
			return fmt.Errorf("stdout write: %w", err)
		}
		if err := s.w.Flush(); err != nil {
			return fmt.Errorf("stdout flush: %w", err)
		}
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("stdout flush: %w", err)
	}
	return nil
}
