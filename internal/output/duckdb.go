package output

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinytelemetry/lotus-agent/internal/duckdb"
	"github.com/tinytelemetry/lotus-agent/internal/queue"
	"github.com/tinytelemetry/lotus-agent/internal/shutdown"
)

// DuckDBSink stores every event in a DuckDB events table, one insert per event.
type DuckDBSink struct {
	store         *duckdb.Store
	retentionDays int
	logger        *slog.Logger
}

// NewDuckDBSink opens (or creates) the database at path.
func NewDuckDBSink(path string, retentionDays int, logger *slog.Logger) (*DuckDBSink, error) {
	store, err := duckdb.NewStore(path)
	if err != nil {
		return nil, err
	}
	return &DuckDBSink{
		store:         store,
		retentionDays: retentionDays,
		logger:        logger.With("component", "output", "sink", "duckdb", "path", path),
	}, nil
}

func (s *DuckDBSink) Name() string { return "duckdb" }

// Store exposes the underlying store for read access.
func (s *DuckDBSink) Store() *duckdb.Store { return s.store }

// Run inserts events until the queue closes. An insert failure is fatal.
// The store stays open for readers; Close releases it.
func (s *DuckDBSink) Run(q *queue.Queue, _ shutdown.Signal) error {
	cleaner := duckdb.NewRetentionCleaner(s.store, s.logger, duckdb.RetentionConfig{RetentionDays: s.retentionDays})
	defer cleaner.Stop()

	ctx := context.Background()
	for ev := range q.C() {
		if err := s.store.InsertEvent(ctx, ev); err != nil {
			return fmt.Errorf("duckdb sink: %w", err)
		}
	}
	return nil
}

// Close closes the store.
func (s *DuckDBSink) Close() error { return s.store.Close() }
