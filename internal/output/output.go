// Package output implements the sinks that serialize enriched events to
// their destination.
package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tinytelemetry/lotus-agent/internal/config"
	"github.com/tinytelemetry/lotus-agent/internal/queue"
	"github.com/tinytelemetry/lotus-agent/internal/shutdown"
)

// Sink drains the egress queue until it is closed. A returned error is
// fatal to the run.
type Sink interface {
	Name() string
	Run(q *queue.Queue, sig shutdown.Signal) error
}

// Deps carries process-level handles the sinks need.
type Deps struct {
	Logger *slog.Logger
	Stdout io.Writer
}

// Build selects the sink for a validated output config.
func Build(cfg config.OutputConfig, deps Deps) (Sink, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Type {
	case config.OutputStdout, "":
		w := deps.Stdout
		if w == nil {
			w = os.Stdout
		}
		return NewStdoutSink(w), nil
	case config.OutputSyslog:
		return NewSyslogSink(cfg.SyslogConfig, logger), nil
	case config.OutputDuckDB:
		return NewDuckDBSink(cfg.Path, cfg.RetentionDays, logger)
	default:
		return nil, fmt.Errorf("output: unknown type %q", cfg.Type)
	}
}
