// Package logsource implements the input adapters. Each adapter turns one
// configured source into events on the shared ingress queue and runs until
// the shutdown signal fires, the source is exhausted, or the queue's
// consumer goes away.
package logsource

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/tinytelemetry/lotus-agent/internal/config"
	"github.com/tinytelemetry/lotus-agent/internal/model"
	"github.com/tinytelemetry/lotus-agent/internal/queue"
	"github.com/tinytelemetry/lotus-agent/internal/shutdown"
	"github.com/tinytelemetry/lotus-agent/internal/tcpserver"
)

// DefaultMaxLineSize is the default maximum size (in bytes) of a single line.
const DefaultMaxLineSize = 1024 * 1024 // 1MB

// LogSource is a unified interface for all input adapters.
type LogSource interface {
	// Name is the configured source identifier.
	Name() string
	// Run blocks until the source stops. Stopping because of sig or because
	// the queue's consumer is gone is not an error.
	Run(q *queue.Queue, sig shutdown.Signal) error
}

// Deps carries process-level handles the adapters need.
type Deps struct {
	Logger *slog.Logger
	Stdin  io.Reader
}

// Build selects the adapter for a validated input config.
func Build(cfg config.InputConfig, deps Deps) (LogSource, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.SourceName()

	switch cfg.Type {
	case config.InputStdin:
		r := deps.Stdin
		if r == nil {
			r = os.Stdin
		}
		return NewStdinSource(r, name, logger), nil
	case config.InputFileTail:
		return NewFileTailSource(cfg.Path, name, cfg.ReadFromBeginning, cfg.PollInterval(), logger), nil
	case config.InputTCPListener:
		return NewTCPSource(tcpserver.NewServer(cfg.Bind, name, logger), name), nil
	case config.InputUDPListener:
		return NewUDPSource(cfg.Bind, name, logger), nil
	case config.InputProcess:
		return NewProcessSource(cfg.Program, cfg.Args, name, logger), nil
	case config.InputJournald:
		return newJournaldSource(cfg.Units, name, logger)
	case config.InputWindowsEventLog:
		return newEventLogSource(cfg.Log, name, logger)
	case config.InputOTLPGRPC:
		return NewOTLPSource(cfg.Bind, name, logger), nil
	default:
		return nil, fmt.Errorf("logsource: unknown input type %q", cfg.Type)
	}
}

// cleanLine strips the line terminator and reports whether anything other
// than whitespace is left.
func cleanLine(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	return line, strings.TrimSpace(line) != ""
}

// pumpLines scans r and sends every non-empty line to q tagged with source.
// It returns nil at EOF or when a send is stopped, and the read error
// otherwise.
func pumpLines(r io.Reader, source string, q *queue.Queue, stop <-chan struct{}, maxLineSize int) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, maxLineSize)), maxLineSize)
	for scanner.Scan() {
		line, ok := cleanLine(scanner.Text())
		if !ok {
			continue
		}
		if err := q.Send(stop, model.NewEvent(source, line)); err != nil {
			return nil
		}
	}
	err := scanner.Err()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
