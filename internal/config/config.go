// Package config defines the agent configuration schema and loads it from
// file and environment.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath           = "configs/agent.yaml"
	DefaultChannelSize    = 1024
	DefaultHealthInterval = 30 * time.Second
	DefaultPollIntervalMs = 500
	MinPollIntervalMs     = 100
	DefaultFacility       = 1
	DefaultAPIAddr        = "127.0.0.1:3000"
	DefaultAppName        = "lotus-agent"
)

// InputType selects an input adapter.
type InputType string

const (
	InputStdin           InputType = "stdin"
	InputFileTail        InputType = "file_tail"
	InputTCPListener     InputType = "tcp_listener"
	InputUDPListener     InputType = "udp_listener"
	InputProcess         InputType = "process"
	InputJournald        InputType = "journald"
	InputWindowsEventLog InputType = "windows_event_log"
	InputOTLPGRPC        InputType = "otlp_grpc"
)

// OutputType selects the output sink.
type OutputType string

const (
	OutputStdout OutputType = "stdout"
	OutputSyslog OutputType = "syslog"
	OutputDuckDB OutputType = "duckdb"
)

// Syslog transports and wire formats.
const (
	ProtocolUDP = "udp"
	ProtocolTCP = "tcp"

	FormatRFC3164 = "rfc3164"
	FormatRFC5424 = "rfc5424"
)

// Config is the full agent configuration.
type Config struct {
	Runtime RuntimeConfig `mapstructure:"runtime" yaml:"runtime"`
	Inputs  []InputConfig `mapstructure:"inputs" yaml:"inputs"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`

	// Path is the config file actually read, empty if none was found.
	Path string `mapstructure:"-" yaml:"-"`
}

type RuntimeConfig struct {
	ChannelSize    int           `mapstructure:"channel_size" yaml:"channel_size"`
	HealthInterval time.Duration `mapstructure:"health_interval" yaml:"health_interval"`
}

// InputConfig describes one input. Only the fields relevant to Type are used.
type InputConfig struct {
	Type              InputType `mapstructure:"type" yaml:"type"`
	Name              string    `mapstructure:"name" yaml:"name,omitempty"`
	Path              string    `mapstructure:"path" yaml:"path,omitempty"`
	ReadFromBeginning bool      `mapstructure:"read_from_beginning" yaml:"read_from_beginning,omitempty"`
	PollIntervalMs    int       `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms,omitempty"`
	Bind              string    `mapstructure:"bind" yaml:"bind,omitempty"`
	Program           string    `mapstructure:"program" yaml:"program,omitempty"`
	Args              []string  `mapstructure:"args" yaml:"args,omitempty"`
	Units             []string  `mapstructure:"units" yaml:"units,omitempty"`
	Log               string    `mapstructure:"log" yaml:"log,omitempty"`
}

// SourceName returns the configured name or the per-kind default.
func (c InputConfig) SourceName() string {
	if c.Name != "" {
		return c.Name
	}
	switch c.Type {
	case InputFileTail:
		return c.Path
	case InputTCPListener:
		return "tcp"
	case InputUDPListener:
		return "udp"
	case InputProcess:
		return c.Program
	case InputJournald:
		return "journald"
	case InputWindowsEventLog:
		return "windows-" + c.Log
	case InputOTLPGRPC:
		return "otlp"
	default:
		return "stdin"
	}
}

// PollInterval returns the file tail idle poll interval, defaulted and
// clamped to the minimum.
func (c InputConfig) PollInterval() time.Duration {
	ms := c.PollIntervalMs
	if ms == 0 {
		ms = DefaultPollIntervalMs
	}
	if ms < MinPollIntervalMs {
		ms = MinPollIntervalMs
	}
	return time.Duration(ms) * time.Millisecond
}

type OutputConfig struct {
	Type         OutputType `mapstructure:"type" yaml:"type"`
	SyslogConfig `mapstructure:",squash" yaml:",inline"`
	// Path is the database file of the duckdb output.
	Path string `mapstructure:"path" yaml:"path,omitempty"`
	// RetentionDays prunes duckdb events older than this; 0 keeps everything.
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days,omitempty"`
}

type SyslogConfig struct {
	Protocol          string `mapstructure:"protocol" yaml:"protocol,omitempty"`
	Address           string `mapstructure:"address" yaml:"address,omitempty"`
	Format            string `mapstructure:"format" yaml:"format,omitempty"`
	Hostname          string `mapstructure:"hostname" yaml:"hostname,omitempty"`
	AppName           string `mapstructure:"app_name" yaml:"app_name,omitempty"`
	Facility          int    `mapstructure:"facility" yaml:"facility"`
	SeverityFromLevel bool   `mapstructure:"severity_from_level" yaml:"severity_from_level,omitempty"`
}

type APIConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("config: marshal yaml: %w", err)
	}
	return out, nil
}
