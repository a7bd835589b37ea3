package logsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/tinytelemetry/lotus-agent/internal/queue"
	"github.com/tinytelemetry/lotus-agent/internal/shutdown"
)

// processDrainTimeout bounds how long the readers may keep draining after
// the child exited. A background process that inherited the pipes would
// otherwise keep them open indefinitely.
const processDrainTimeout = time.Second

// ProcessSource runs a child process and turns its stdout and stderr into
// events tagged "{name}:stdout" and "{name}:stderr".
type ProcessSource struct {
	program       string
	args          []string
	name          string
	discardStderr bool
	// stdoutSource overrides the stdout tag when set.
	stdoutSource string
	logger       *slog.Logger
}

// NewProcessSource creates a source for program with args.
func NewProcessSource(program string, args []string, name string, logger *slog.Logger) *ProcessSource {
	return &ProcessSource{
		program: program,
		args:    args,
		name:    name,
		logger:  logger.With("component", "logsource", "source", name),
	}
}

func (p *ProcessSource) Name() string { return p.name }

func (p *ProcessSource) stdoutTag() string {
	if p.stdoutSource != "" {
		return p.stdoutSource
	}
	return p.name + ":stdout"
}

type processStream struct {
	r      *os.File
	source string
}

// Run starts the child and returns once it exited and its output was
// drained, or once shutdown killed it.
func (p *ProcessSource) Run(q *queue.Queue, sig shutdown.Signal) error {
	ctx, cancel := sig.Context(context.Background())
	defer cancel()
	go func() {
		select {
		case <-q.Gone():
			cancel()
		case <-ctx.Done():
		}
	}()

	cmd := exec.CommandContext(ctx, p.program, p.args...)

	// The pipes are created here rather than with StdoutPipe so that Wait
	// only waits for the child and the readers own their end.
	var streams []processStream
	var childEnds []*os.File
	closeReaders := func() {
		for _, s := range streams {
			s.r.Close()
		}
	}
	closeChildEnds := func() {
		for _, f := range childEnds {
			f.Close()
		}
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	streams = append(streams, processStream{stdoutR, p.stdoutTag()})
	childEnds = append(childEnds, stdoutW)
	if !p.discardStderr {
		stderrR, stderrW, err := os.Pipe()
		if err != nil {
			closeReaders()
			closeChildEnds()
			return fmt.Errorf("stderr pipe: %w", err)
		}
		cmd.Stderr = stderrW
		streams = append(streams, processStream{stderrR, p.name + ":stderr"})
		childEnds = append(childEnds, stderrW)
	}

	startErr := cmd.Start()
	// The child holds its own copies of the write ends.
	closeChildEnds()
	if startErr != nil {
		closeReaders()
		return fmt.Errorf("spawn %s: %w", p.program, startErr)
	}
	p.logger.Info("process started", "program", p.program, "pid", cmd.Process.Pid)

	var wg sync.WaitGroup
	for _, s := range streams {
		wg.Add(1)
		go func(s processStream) {
			defer wg.Done()
			if err := pumpLines(s.r, s.source, q, ctx.Done(), DefaultMaxLineSize); err != nil && ctx.Err() == nil {
				p.logger.Warn("stream read failed", "stream", s.source, "error", err)
			}
		}(s)
	}
	readersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(readersDone)
	}()

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-exited:
		drain := time.NewTimer(processDrainTimeout)
		select {
		case <-readersDone:
		case <-drain.C:
			p.logger.Debug("output still open after exit, closing", "after", processDrainTimeout)
		case <-ctx.Done():
		}
		drain.Stop()
	case <-ctx.Done():
		// CommandContext kills the child.
		waitErr = <-exited
	}
	closeReaders()
	<-readersDone

	if ctx.Err() != nil {
		p.logger.Info("process stopped")
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		p.logger.Warn("process exited", "status", exitErr.ExitCode())
		return nil
	}
	if waitErr != nil {
		return fmt.Errorf("wait %s: %w", p.program, waitErr)
	}
	p.logger.Info("process exited", "status", 0)
	return nil
}
