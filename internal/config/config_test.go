package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const sampleYAML = `
runtime:
  channel_size: 16
  health_interval: 5s
inputs:
  - type: stdin
  - type: udp_listener
    bind: 127.0.0.1:5514
    name: edge
  - type: process
    program: /bin/echo
    args: [hello]
output:
  type: syslog
  protocol: tcp
  address: 127.0.0.1:514
  format: rfc5424
  hostname: host
  facility: 4
api:
  enabled: true
`

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "agent.yaml", sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, 16, cfg.Runtime.ChannelSize)
	assert.Equal(t, 5*time.Second, cfg.Runtime.HealthInterval)
	require.Len(t, cfg.Inputs, 3)
	assert.Equal(t, InputUDPListener, cfg.Inputs[1].Type)
	assert.Equal(t, "edge", cfg.Inputs[1].SourceName())
	assert.Equal(t, []string{"hello"}, cfg.Inputs[2].Args)

	assert.Equal(t, OutputSyslog, cfg.Output.Type)
	assert.Equal(t, ProtocolTCP, cfg.Output.Protocol)
	assert.Equal(t, FormatRFC5424, cfg.Output.Format)
	assert.Equal(t, "host", cfg.Output.Hostname)
	assert.Equal(t, 4, cfg.Output.Facility)

	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, DefaultAPIAddr, cfg.API.Addr)
	assert.Equal(t, "info", cfg.Log.Level)

	require.NoError(t, Validate(cfg))
}

func TestLoad_Defaults(t *testing.T) {
	path := writeFile(t, "agent.yaml", "inputs:\n  - type: stdin\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultChannelSize, cfg.Runtime.ChannelSize)
	assert.Equal(t, DefaultHealthInterval, cfg.Runtime.HealthInterval)
	assert.Equal(t, OutputStdout, cfg.Output.Type)
	assert.Equal(t, ProtocolUDP, cfg.Output.Protocol)
	assert.Equal(t, FormatRFC3164, cfg.Output.Format)
	assert.Equal(t, DefaultFacility, cfg.Output.Facility)
	assert.False(t, cfg.API.Enabled)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "agent.toml", `
[runtime]
channel_size = 8

[[inputs]]
type = "tcp_listener"
bind = "0.0.0.0:6000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Runtime.ChannelSize)
	require.Len(t, cfg.Inputs, 1)
	assert.Equal(t, "tcp", cfg.Inputs[0].SourceName())
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeFile(t, "agent.yaml", sampleYAML)
	t.Setenv("LOTUS_AGENT_OUTPUT_ADDRESS", "10.0.0.5:1514")
	t.Setenv("LOTUS_AGENT_RUNTIME_CHANNEL_SIZE", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:1514", cfg.Output.Address)
	assert.Equal(t, 2, cfg.Runtime.ChannelSize)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_DefaultPathMayBeAbsent(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Path)
	assert.ErrorIs(t, Validate(cfg), ErrNoInputs)
}

func validConfig() *Config {
	return &Config{
		Inputs: []InputConfig{{Type: InputStdin}},
		Output: OutputConfig{Type: OutputStdout},
	}
}

func TestValidate(t *testing.T) {
	existing := writeFile(t, "app.log", "")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"stdin ok", func(*Config) {}, false},
		{"no inputs", func(c *Config) { c.Inputs = nil }, true},
		{"unknown input", func(c *Config) { c.Inputs[0].Type = "kafka" }, true},
		{"file tail without path", func(c *Config) { c.Inputs[0] = InputConfig{Type: InputFileTail} }, true},
		{"file tail missing file", func(c *Config) {
			c.Inputs[0] = InputConfig{Type: InputFileTail, Path: existing + ".missing"}
		}, true},
		{"file tail ok", func(c *Config) { c.Inputs[0] = InputConfig{Type: InputFileTail, Path: existing} }, false},
		{"tcp bad bind", func(c *Config) { c.Inputs[0] = InputConfig{Type: InputTCPListener, Bind: "nope"} }, true},
		{"udp ok", func(c *Config) { c.Inputs[0] = InputConfig{Type: InputUDPListener, Bind: "0.0.0.0:514"} }, false},
		{"process without program", func(c *Config) { c.Inputs[0] = InputConfig{Type: InputProcess} }, true},
		{"unknown output", func(c *Config) { c.Output.Type = "kafka" }, true},
		{"syslog ok", func(c *Config) {
			c.Output = OutputConfig{Type: OutputSyslog, SyslogConfig: SyslogConfig{
				Protocol: ProtocolUDP, Format: FormatRFC3164, Address: "127.0.0.1:514", Facility: 23,
			}}
		}, false},
		{"syslog facility too large", func(c *Config) {
			c.Output = OutputConfig{Type: OutputSyslog, SyslogConfig: SyslogConfig{
				Protocol: ProtocolUDP, Format: FormatRFC3164, Address: "127.0.0.1:514", Facility: 24,
			}}
		}, true},
		{"syslog bad protocol", func(c *Config) {
			c.Output = OutputConfig{Type: OutputSyslog, SyslogConfig: SyslogConfig{
				Protocol: "sctp", Format: FormatRFC3164, Address: "127.0.0.1:514",
			}}
		}, true},
		{"syslog missing address", func(c *Config) {
			c.Output = OutputConfig{Type: OutputSyslog, SyslogConfig: SyslogConfig{
				Protocol: ProtocolTCP, Format: FormatRFC5424,
			}}
		}, true},
		{"duckdb without path", func(c *Config) { c.Output = OutputConfig{Type: OutputDuckDB} }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_PlatformGating(t *testing.T) {
	orig := goos
	t.Cleanup(func() { goos = orig })

	journald := &Config{Inputs: []InputConfig{{Type: InputJournald}}, Output: OutputConfig{Type: OutputStdout}}
	eventlog := &Config{Inputs: []InputConfig{{Type: InputWindowsEventLog, Log: "System"}}, Output: OutputConfig{Type: OutputStdout}}

	goos = "darwin"
	assert.ErrorIs(t, Validate(journald), ErrUnsupportedPlatform)
	assert.ErrorIs(t, Validate(eventlog), ErrUnsupportedPlatform)

	goos = "linux"
	assert.NoError(t, Validate(journald))
	assert.ErrorIs(t, Validate(eventlog), ErrUnsupportedPlatform)

	goos = "windows"
	assert.ErrorIs(t, Validate(journald), ErrUnsupportedPlatform)
	assert.NoError(t, Validate(eventlog))
}

func TestInputConfig_Defaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "stdin", InputConfig{Type: InputStdin}.SourceName())
	assert.Equal(t, "/var/log/x", InputConfig{Type: InputFileTail, Path: "/var/log/x"}.SourceName())
	assert.Equal(t, "udp", InputConfig{Type: InputUDPListener}.SourceName())
	assert.Equal(t, "/bin/app", InputConfig{Type: InputProcess, Program: "/bin/app"}.SourceName())
	assert.Equal(t, "journald", InputConfig{Type: InputJournald}.SourceName())
	assert.Equal(t, "windows-Security", InputConfig{Type: InputWindowsEventLog, Log: "Security"}.SourceName())

	assert.Equal(t, 500*time.Millisecond, InputConfig{}.PollInterval())
	assert.Equal(t, 100*time.Millisecond, InputConfig{PollIntervalMs: 10}.PollInterval())
	assert.Equal(t, 2*time.Second, InputConfig{PollIntervalMs: 2000}.PollInterval())
}

func TestConfig_YAML(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Runtime.HealthInterval = 30 * time.Second
	cfg.Output = OutputConfig{Type: OutputSyslog, SyslogConfig: SyslogConfig{
		Protocol: ProtocolUDP, Format: FormatRFC3164, Address: "127.0.0.1:514", Facility: 1,
	}}

	out, err := cfg.YAML()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	output := decoded["output"].(map[string]any)
	assert.Equal(t, "syslog", output["type"])
	assert.Equal(t, "127.0.0.1:514", output["address"])
	runtime := decoded["runtime"].(map[string]any)
	assert.Equal(t, "30s", runtime["health_interval"])
}
