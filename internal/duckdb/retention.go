package duckdb

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const retentionInterval = time.Hour

// RetentionConfig holds configuration for the retention cleaner.
type RetentionConfig struct {
	RetentionDays int
}

// RetentionCleaner periodically deletes events older than the retention period.
type RetentionCleaner struct {
	store         *Store
	retentionDays int
	logger        *slog.Logger
	done          chan struct{}
	wg            sync.WaitGroup
	stopOnce      sync.Once
}

// NewRetentionCleaner starts a cleaner. It returns nil when retention is
// disabled (zero or negative days).
func NewRetentionCleaner(store *Store, logger *slog.Logger, conf RetentionConfig) *RetentionCleaner {
	if conf.RetentionDays <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	rc := &RetentionCleaner{
		store:         store,
		retentionDays: conf.RetentionDays,
		logger:        logger.With("component", "duckdb"),
		done:          make(chan struct{}),
	}

	// Catch up after downtime.
	rc.cleanup()

	rc.wg.Add(1)
	go rc.tickLoop()
	return rc
}

func (rc *RetentionCleaner) tickLoop() {
	defer rc.wg.Done()
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cleanup() {
	cutoff := time.Now().Add(-time.Duration(rc.retentionDays) * 24 * time.Hour)
	rows, err := rc.store.DeleteBefore(context.Background(), cutoff)
	if err != nil {
		rc.logger.Warn("retention cleanup failed", "error", err)
		return
	}
	if rows > 0 {
		rc.logger.Info("retention cleanup", "deleted", rows, "retention_days", rc.retentionDays)
	}
}

// Stop signals the cleaner to stop and waits for it. Safe on a nil cleaner.
func (rc *RetentionCleaner) Stop() {
	if rc == nil {
		return
	}
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
