//go:build windows

package logsource

import "log/slog"

func newEventLogSource(logName, name string, logger *slog.Logger) (LogSource, error) {
	return newEventLogProcess(logName, name, logger), nil
}
