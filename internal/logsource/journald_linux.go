//go:build linux

package logsource

import "log/slog"

func newJournaldSource(units []string, name string, logger *slog.Logger) (LogSource, error) {
	return NewProcessSource("journalctl", journaldArgs(units), name, logger), nil
}
