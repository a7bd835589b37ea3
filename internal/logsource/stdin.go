package logsource

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tinytelemetry/lotus-agent/internal/model"
	"github.com/tinytelemetry/lotus-agent/internal/queue"
	"github.com/tinytelemetry/lotus-agent/internal/shutdown"
)

// StdinConfig holds tunable parameters for the stdin source.
type StdinConfig struct {
	MaxLineSize int
}

// StdinSource reads log lines from standard input.
type StdinSource struct {
	r           io.Reader
	name        string
	maxLineSize int
	logger      *slog.Logger
}

// NewStdinSource creates a source reading lines from r.
func NewStdinSource(r io.Reader, name string, logger *slog.Logger, conf ...StdinConfig) *StdinSource {
	maxLineSize := DefaultMaxLineSize
	if len(conf) > 0 && conf[0].MaxLineSize > 0 {
		maxLineSize = conf[0].MaxLineSize
	}
	return &StdinSource{
		r:           r,
		name:        name,
		maxLineSize: maxLineSize,
		logger:      logger.With("component", "logsource", "source", name),
	}
}

func (s *StdinSource) Name() string { return s.name }

// Run reads until EOF or shutdown. Reads from stdin cannot be interrupted,
// so the scanner runs on its own goroutine and Run selects on its results.
func (s *StdinSource) Run(q *queue.Queue, sig shutdown.Signal) error {
	done := make(chan struct{})
	defer close(done)

	type scanResult struct {
		line string
		err  error
	}
	results := make(chan scanResult)
	go func() {
		defer close(results)
		scanner := bufio.NewScanner(s.r)
		scanner.Buffer(make([]byte, 0, min(64*1024, s.maxLineSize)), s.maxLineSize)
		for scanner.Scan() {
			line, ok := cleanLine(scanner.Text())
			if !ok {
				continue
			}
			select {
			case results <- scanResult{line: line}:
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case results <- scanResult{err: err}:
			case <-done:
			}
		}
	}()

	for {
		select {
		case <-sig.Done():
			return nil
		case <-q.Gone():
			return nil
		case r, ok := <-results:
			if !ok {
				s.logger.Debug("end of input")
				return nil
			}
			if r.err != nil {
				if errors.Is(r.err, bufio.ErrTooLong) {
					return fmt.Errorf("stdin line exceeded max size (%d bytes): %w", s.maxLineSize, r.err)
				}
				return fmt.Errorf("stdin read: %w", r.err)
			}
			if err := q.Send(sig.Done(), model.NewEvent(s.name, r.line)); err != nil {
				return nil
			}
		}
	}
}
