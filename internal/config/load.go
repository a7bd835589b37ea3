package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. LOTUS_AGENT_OUTPUT_ADDRESS.
const EnvPrefix = "LOTUS_AGENT"

func setDefaults(v *viper.Viper) {
	v.SetDefault("runtime.channel_size", DefaultChannelSize)
	v.SetDefault("runtime.health_interval", DefaultHealthInterval)
	v.SetDefault("output.type", string(OutputStdout))
	v.SetDefault("output.protocol", ProtocolUDP)
	v.SetDefault("output.address", "")
	v.SetDefault("output.format", FormatRFC3164)
	v.SetDefault("output.hostname", "")
	v.SetDefault("output.app_name", "")
	v.SetDefault("output.facility", DefaultFacility)
	v.SetDefault("output.severity_from_level", false)
	v.SetDefault("output.path", "")
	v.SetDefault("output.retention_days", 0)
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.addr", DefaultAPIAddr)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the config file at path (yaml, toml or json by extension) and
// applies environment overrides. An empty path means DefaultPath, which may
// be absent; an explicitly named file must exist. Load does not validate.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if explicit || !missing {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.Path); err != nil {
		cfg.Path = ""
	}
	return &cfg, nil
}
