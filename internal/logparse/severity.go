// Package logparse recovers level and application tokens from raw log text.
package logparse

import (
	"regexp"
	"strings"
)

// LevelRegex matches a known level token, optionally written as level=TOKEN.
var LevelRegex = regexp.MustCompile(`(?i)\b(?:level=)?(INFO|WARN|ERROR|DEBUG|TRACE)\b`)

// AppNameRegex matches an identifier-like token followed by a colon, with an
// optional bracketed numeric suffix (usually a PID) before the colon.
var AppNameRegex = regexp.MustCompile(`([A-Za-z0-9_./-]+)(?:\[\d+\])?:`)

// Syslog severities used by the syslog sink (RFC 5424 section 6.2.1).
const (
	SeverityCritical      = 2
	SeverityError         = 3
	SeverityWarning       = 4
	SeverityInformational = 6
	SeverityDebug         = 7
)

// ExtractLevel returns the first level token in line, uppercased.
func ExtractLevel(line string) (string, bool) {
	m := LevelRegex.FindStringSubmatch(line)
	if len(m) < 2 {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}

// ExtractAppName returns the first token that looks like "app:" or "app[123]:".
func ExtractAppName(line string) (string, bool) {
	m := AppNameRegex.FindStringSubmatch(line)
	if len(m) < 2 {
		return "", false
	}
	app := strings.TrimSpace(m[1])
	return app, app != ""
}

var severityAliases = map[string]string{
	"TRACE": "TRACE", "TRAC": "TRACE", "TRC": "TRACE",
	"DEBUG": "DEBUG", "DEBU": "DEBUG", "DBG": "DEBUG", "DEB": "DEBUG",
	"INFO": "INFO", "INFORMATION": "INFO", "INF": "INFO",
	"WARN": "WARN", "WARNING": "WARN", "WRNG": "WARN", "WRN": "WARN",
	"ERROR": "ERROR", "ERR": "ERROR", "ERRO": "ERROR",
	"FATAL": "FATAL", "FATL": "FATAL", "FTL": "FATAL",
	"CRITICAL": "FATAL", "CRIT": "FATAL", "CRT": "FATAL",
	"PANIC": "FATAL", "PNC": "FATAL",
}

var severityPrefixes = map[string]string{
	"INFO": "INFO", "WARN": "WARN", "ERRO": "ERROR",
	"DEBU": "DEBUG", "TRAC": "TRACE", "FATA": "FATAL", "CRIT": "FATAL",
}

// NormalizeSeverity folds the many spellings of a level into one of
// TRACE, DEBUG, INFO, WARN, ERROR or FATAL. Unknown input maps to INFO.
func NormalizeSeverity(severity string) string {
	normalized := strings.ToUpper(strings.TrimSpace(severity))
	if level, ok := severityAliases[normalized]; ok {
		return level
	}
	if len(normalized) >= 4 {
		if level, ok := severityPrefixes[normalized[:4]]; ok {
			return level
		}
	}
	return "INFO"
}

// SyslogSeverity maps a parsed level to a syslog severity. An empty level
// maps to informational.
func SyslogSeverity(level string) int {
	if strings.TrimSpace(level) == "" {
		return SeverityInformational
	}
	switch NormalizeSeverity(level) {
	case "TRACE", "DEBUG":
		return SeverityDebug
	case "WARN":
		return SeverityWarning
	case "ERROR":
		return SeverityError
	case "FATAL":
		return SeverityCritical
	default:
		return SeverityInformational
	}
}
