//go:build !windows

package logsource

import (
	"fmt"
	"log/slog"

	"github.com/tinytelemetry/lotus-agent/internal/config"
)

func newEventLogSource(_, _ string, _ *slog.Logger) (LogSource, error) {
	return nil, fmt.Errorf("%w: windows_event_log", config.ErrUnsupportedPlatform)
}
