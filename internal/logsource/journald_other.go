//go:build !linux

package logsource

import (
	"fmt"
	"log/slog"

	"github.com/tinytelemetry/lotus-agent/internal/config"
)

func newJournaldSource(_ []string, _ string, _ *slog.Logger) (LogSource, error) {
	return nil, fmt.Errorf("%w: journald", config.ErrUnsupportedPlatform)
}
