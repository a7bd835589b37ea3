// Package agent wires inputs, the normalization stage and the output sink
// into one run.
//
// Join order: every input first, then normalization, then the sink. Input
// and normalization failures are logged and isolated; a sink failure or a
// panic in any task ends the run with an error.
package agent

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/tinytelemetry/lotus-agent/internal/config"
	"github.com/tinytelemetry/lotus-agent/internal/duckdb"
	"github.com/tinytelemetry/lotus-agent/internal/ingest"
	"github.com/tinytelemetry/lotus-agent/internal/logsource"
	"github.com/tinytelemetry/lotus-agent/internal/output"
	"github.com/tinytelemetry/lotus-agent/internal/queue"
	"github.com/tinytelemetry/lotus-agent/internal/shutdown"
)

// PanicError reports a panic recovered from one of the run's tasks.
type PanicError struct {
	Task  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Task, e.Value)
}

// Options carries process-level dependencies. Zero values fall back to the
// process defaults.
type Options struct {
	Logger      *slog.Logger
	Stats       *ingest.Stats
	Stdin       io.Reader
	Stdout      io.Writer
	DebugEvents bool
}

// Agent is one configured pipeline.
type Agent struct {
	cfg         *config.Config
	logger      *slog.Logger
	stats       *ingest.Stats
	debugEvents bool

	sources []logsource.LogSource
	sink    output.Sink

	panicMu  sync.Mutex
	panicErr *PanicError
}

// New builds every input and the sink from a validated config.
func New(cfg *config.Config, opts Options) (*Agent, error) {
	if len(cfg.Inputs) == 0 {
		return nil, config.ErrNoInputs
	}
	a := newAgent(cfg, opts)

	for i, in := range cfg.Inputs {
		src, err := logsource.Build(in, logsource.Deps{Logger: a.logger, Stdin: opts.Stdin})
		if err != nil {
			return nil, fmt.Errorf("inputs[%d]: %w", i, err)
		}
		a.sources = append(a.sources, src)
	}

	sink, err := output.Build(cfg.Output, output.Deps{Logger: a.logger, Stdout: opts.Stdout})
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	a.sink = sink
	return a, nil
}

func newAgent(cfg *config.Config, opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stats := opts.Stats
	if stats == nil {
		stats = ingest.NewStats()
	}
	return &Agent{
		cfg:         cfg,
		logger:      logger,
		stats:       stats,
		debugEvents: opts.DebugEvents,
	}
}

// Stats returns the pipeline counter.
func (a *Agent) Stats() *ingest.Stats { return a.stats }

// Sources returns the built inputs in configuration order.
func (a *Agent) Sources() []logsource.LogSource { return a.sources }

// SinkName returns the configured sink's name.
func (a *Agent) SinkName() string { return a.sink.Name() }

// Store returns the event store when the duckdb output is used, else nil.
func (a *Agent) Store() *duckdb.Store {
	if s, ok := a.sink.(*output.DuckDBSink); ok {
		return s.Store()
	}
	return nil
}

// Close releases resources held by the sink after Run returned.
func (a *Agent) Close() error {
	if c, ok := a.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Run executes the pipeline until every input finished and the sink drained
// its queue, or until the sink fails. sig is the external stop condition.
func (a *Agent) Run(sig shutdown.Signal) error {
	log := a.logger.With("component", "agent")

	// The internal trigger also fires on sink failure and panics, so inputs
	// unwind without waiting for the operator.
	trigger, internal := shutdown.Derive(sig)
	defer trigger.Fire()

	ingress := queue.New(a.cfg.Runtime.ChannelSize)
	egress := queue.New(a.cfg.Runtime.ChannelSize)

	healthStop := make(chan struct{})
	healthDone := make(chan struct{})
	go func() {
		defer close(healthDone)
		a.healthLoop(internal.Clone(), healthStop)
	}()

	var inputs sync.WaitGroup
	for _, src := range a.sources {
		inputs.Add(1)
		go func(src logsource.LogSource) {
			defer inputs.Done()
			err := a.guard(trigger, "input "+src.Name(), func() error {
				return src.Run(ingress, internal.Clone())
			})
			if err != nil && !isPanic(err) {
				log.Warn("input stopped with error", "source", src.Name(), "error", err)
				return
			}
			log.Debug("input finished", "source", src.Name())
		}(src)
	}

	processor := ingest.NewProcessor(a.stats, a.logger, a.debugEvents)
	normDone := make(chan error, 1)
	go func() {
		normDone <- a.guard(trigger, "normalization", func() error {
			defer func() {
				if r := recover(); r != nil {
					ingress.Abandon()
					panic(r)
				}
			}()
			return processor.Run(ingress, egress)
		})
	}()

	sinkDone := make(chan error, 1)
	go func() {
		err := a.guard(trigger, "output "+a.sink.Name(), func() error {
			return a.sink.Run(egress, internal.Clone())
		})
		// Nothing drains egress any more: release the stages feeding it.
		egress.Abandon()
		if err != nil {
			trigger.Fire()
		}
		sinkDone <- err
	}()

	inputs.Wait()
	ingress.Close()

	if err := <-normDone; err != nil && !isPanic(err) {
		log.Warn("normalization stopped with error", "error", err)
	}
	egress.Close()

	sinkErr := <-sinkDone

	close(healthStop)
	<-healthDone

	if p := a.recordedPanic(); p != nil {
		log.Error("task panicked", "task", p.Task, "panic", p.Value, "stack", string(p.Stack))
		return p
	}
	if sinkErr != nil {
		log.Error("output failed", "sink", a.sink.Name(), "error", sinkErr)
		return fmt.Errorf("output %s: %w", a.sink.Name(), sinkErr)
	}
	log.Info("pipeline finished", "processed", a.stats.Processed())
	return nil
}

// guard runs fn, converting a panic into a PanicError that is recorded and
// fires the internal trigger.
func (a *Agent) guard(trigger *shutdown.Trigger, task string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p := &PanicError{Task: task, Value: r, Stack: debug.Stack()}
			a.panicMu.Lock()
			if a.panicErr == nil {
				a.panicErr = p
			}
			a.panicMu.Unlock()
			trigger.Fire()
			err = p
		}
	}()
	return fn()
}

func (a *Agent) recordedPanic() *PanicError {
	a.panicMu.Lock()
	defer a.panicMu.Unlock()
	return a.panicErr
}

func isPanic(err error) bool {
	var p *PanicError
	return errors.As(err, &p)
}

// healthLoop logs the processed count every interval and a final snapshot
// once sig fires or stop is closed.
func (a *Agent) healthLoop(sig shutdown.Signal, stop <-chan struct{}) {
	interval := a.cfg.Runtime.HealthInterval
	if interval <= 0 {
		interval = config.DefaultHealthInterval
	}
	log := a.logger.With("component", "health")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Info("pipeline health", "processed", a.stats.Processed())
			continue
		case <-sig.Done():
		case <-stop:
		}
		log.Info("pipeline health (final)", "processed", a.stats.Processed())
		return
	}
}
