// Package ingest implements the normalization stage: it enriches raw events
// with indicators and metadata before they reach the output sink.
package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tinytelemetry/lotus-agent/internal/logparse"
	"github.com/tinytelemetry/lotus-agent/internal/model"
	"github.com/tinytelemetry/lotus-agent/internal/timestamp"
)

var ipv4Candidate = regexp.MustCompile(`(?:\d{1,3}\.){3}\d{1,3}`)

// ExtractIndicators returns every dotted-quad IPv4 address in line, in the
// order they occur. Candidates with a component above 255 are skipped.
func ExtractIndicators(line string) []model.IndicatorMatch {
	var out []model.IndicatorMatch
	for _, candidate := range ipv4Candidate.FindAllString(line, -1) {
		if !validIPv4(candidate) {
			continue
		}
		out = append(out, model.IndicatorMatch{Kind: model.IndicatorIP, Value: candidate})
	}
	return out
}

func validIPv4(candidate string) bool {
	parts := strings.Split(candidate, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.ParseUint(p, 10, 8); err != nil {
			return false
		}
	}
	return true
}

// ParseMetadata recovers the level, application name and embedded RFC 3339
// timestamp from line. Fields that are not found stay empty.
func ParseMetadata(line string) model.ParsedMetadata {
	var md model.ParsedMetadata
	if level, ok := logparse.ExtractLevel(line); ok {
		md.Level = level
	}
	if app, ok := logparse.ExtractAppName(line); ok {
		md.AppName = app
	}
	if ts, ok := timestamp.FindRFC3339(line); ok {
		md.ObservedAt = &ts
	}
	return md
}

// Normalize enriches ev in place from its raw line. It depends only on
// ev.Line, so applying it again yields the same result.
func Normalize(ev *model.Event) {
	ev.Indicators = ExtractIndicators(ev.Line)
	ev.Metadata = ParseMetadata(ev.Line)
}
