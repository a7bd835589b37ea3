package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/lotus-agent/internal/model"
)

// EventRow is a stored event as read back from the events table.
type EventRow struct {
	ID         int64      `json:"id"`
	IngestedAt time.Time  `json:"ingested_at"`
	Source     string     `json:"source"`
	Line       string     `json:"line"`
	Level      string     `json:"level,omitempty"`
	AppName    string     `json:"app_name,omitempty"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
	Indicators string     `json:"indicators,omitempty"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// IndicatorList renders indicators as "kind=value" joined by commas.
func IndicatorList(inds []model.IndicatorMatch) string {
	parts := make([]string, 0, len(inds))
	for _, ind := range inds {
		parts = append(parts, ind.Kind.String()+"="+ind.Value)
	}
	return strings.Join(parts, ",")
}

// InsertEvent stores one enriched event.
func (s *Store) InsertEvent(ctx context.Context, ev *model.Event) error {
	var observed sql.NullTime
	if ev.Metadata.ObservedAt != nil {
		observed = sql.NullTime{Time: ev.Metadata.ObservedAt.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (ingested_at, source, line, level, app_name, observed_at, indicators)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.IngestedAt.UTC(), ev.Source, ev.Line,
		nullString(ev.Metadata.Level), nullString(ev.Metadata.AppName),
		observed, nullString(IndicatorList(ev.Indicators)),
	)
	if err != nil {
		return fmt.Errorf("duckdb: insert event: %w", err)
	}
	return nil
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("duckdb: count events: %w", err)
	}
	return n, nil
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ingested_at, source, line, level, app_name, observed_at, indicators
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("duckdb: recent events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var (
			r                      EventRow
			level, app, indicators sql.NullString
			observed               sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.IngestedAt, &r.Source, &r.Line, &level, &app, &observed, &indicators); err != nil {
			return nil, fmt.Errorf("duckdb: scan event: %w", err)
		}
		r.Level, r.AppName, r.Indicators = level.String, app.String, indicators.String
		if observed.Valid {
			t := observed.Time.UTC()
			r.ObservedAt = &t
		}
		r.IngestedAt = r.IngestedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteBefore removes events ingested before cutoff and returns how many.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE ingested_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("duckdb: delete before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return res.RowsAffected()
}
