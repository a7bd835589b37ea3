package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
)

var (
	// ErrNoInputs is returned when no input is configured.
	ErrNoInputs = errors.New("config: no inputs configured")

	// ErrUnsupportedPlatform is returned for inputs that only exist on
	// another operating system.
	ErrUnsupportedPlatform = errors.New("config: input not supported on this platform")
)

// goos is swapped in tests to exercise platform gating.
var goos = runtime.GOOS

// Validate checks cfg before anything is started.
func Validate(cfg *Config) error {
	if len(cfg.Inputs) == 0 {
		return ErrNoInputs
	}
	for i, in := range cfg.Inputs {
		if err := validateInput(in); err != nil {
			return fmt.Errorf("inputs[%d] (%s): %w", i, in.Type, err)
		}
	}
	if err := validateOutput(cfg.Output); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if cfg.API.Enabled {
		if err := validateAddr(cfg.API.Addr); err != nil {
			return fmt.Errorf("api.addr: %w", err)
		}
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
	}
	return nil
}

func validateInput(in InputConfig) error {
	switch in.Type {
	case InputStdin:
		return nil
	case InputFileTail:
		if in.Path == "" {
			return errors.New("path is required")
		}
		if _, err := os.Stat(in.Path); err != nil {
			return fmt.Errorf("path: %w", err)
		}
		return nil
	case InputTCPListener, InputUDPListener, InputOTLPGRPC:
		return validateAddr(in.Bind)
	case InputProcess:
		if strings.TrimSpace(in.Program) == "" {
			return errors.New("program is required")
		}
		return nil
	case InputJournald:
		if goos != "linux" {
			return fmt.Errorf("%w: journald requires linux, running on %s", ErrUnsupportedPlatform, goos)
		}
		return nil
	case InputWindowsEventLog:
		if goos != "windows" {
			return fmt.Errorf("%w: windows_event_log requires windows, running on %s", ErrUnsupportedPlatform, goos)
		}
		if in.Log == "" {
			return errors.New("log is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown input type %q", in.Type)
	}
}

func validateOutput(out OutputConfig) error {
	switch out.Type {
	case OutputStdout:
		return nil
	case OutputDuckDB:
		if out.Path == "" {
			return errors.New("path is required for duckdb output")
		}
		if out.RetentionDays < 0 {
			return fmt.Errorf("retention_days %d must not be negative", out.RetentionDays)
		}
		return nil
	case OutputSyslog:
	default:
		return fmt.Errorf("unknown output type %q", out.Type)
	}

	switch out.Protocol {
	case ProtocolUDP, ProtocolTCP:
	default:
		return fmt.Errorf("unknown syslog protocol %q", out.Protocol)
	}
	switch out.Format {
	case FormatRFC3164, FormatRFC5424:
	default:
		return fmt.Errorf("unknown syslog format %q", out.Format)
	}
	if out.Facility < 0 || out.Facility > 23 {
		return fmt.Errorf("facility %d out of range 0-23", out.Facility)
	}
	if err := validateAddr(out.Address); err != nil {
		return fmt.Errorf("address: %w", err)
	}
	return nil
}

func validateAddr(addr string) error {
	if addr == "" {
		return errors.New("address is required")
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port in %q", addr)
	}
	return nil
}
