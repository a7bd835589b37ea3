package logsource

import (
	"log/slog"
	"strings"
)

// journaldArgs builds the journalctl arguments that follow the journal as
// plain messages, optionally limited to units.
func journaldArgs(units []string) []string {
	args := []string{"-f", "-o", "cat"}
	for _, u := range units {
		args = append(args, "-u", u)
	}
	return args
}

// eventLogCommand returns a PowerShell invocation that follows the named
// event log and prints each record as one line of compact JSON.
func eventLogCommand(logName string) (string, []string) {
	quoted := strings.ReplaceAll(logName, "'", "''")
	script := "$Log = '" + quoted + "'; Get-WinEvent -LogName $Log -Wait | ForEach-Object { $_ | ConvertTo-Json -Compress }"
	return "powershell.exe", []string{"-NoLogo", "-NoProfile", "-Command", script}
}

// newEventLogProcess tags events with the source name itself; stderr is
// PowerShell noise and is dropped.
func newEventLogProcess(logName, name string, logger *slog.Logger) *ProcessSource {
	program, args := eventLogCommand(logName)
	p := NewProcessSource(program, args, name, logger)
	p.discardStderr = true
	p.stdoutSource = name
	return p
}
