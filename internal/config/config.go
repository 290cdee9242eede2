// Package config loads WaveConfig, the set of options recognized by the
// controller runtime and its CLI, from a config file and WAVE_-prefixed
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"
)

// WaveConfig is the full set of configuration options the core consumes,
// per spec.md section 6. web_ui/web_ui_host/web_ui_port are accepted so the
// same config file works for the external launcher, but the core never
// reads them.
type WaveConfig struct {
	DBURL                       string `mapstructure:"db_url"`
	MetricBufferSizeKB          int    `mapstructure:"metric_buffer_size_kb"`
	Host                        string `mapstructure:"host"`
	Port                        uint16 `mapstructure:"port"`
	AutoscalingHistoryRetention string `mapstructure:"autoscaling_history_retention"`
	ResetDefinitionsOnStartup   bool   `mapstructure:"reset_definitions_on_startup"`
	WatchDefinitionDuration     int    `mapstructure:"watch_definition_duration"`

	WebUI     bool   `mapstructure:"web_ui"`
	WebUIHost string `mapstructure:"web_ui_host"`
	WebUIPort uint16 `mapstructure:"web_ui_port"`

	Quiet bool `mapstructure:"quiet"`
	Debug bool `mapstructure:"debug"`
}

// Default returns the configuration baseline the original CLI shipped:
// a local file-backed data layer, a 500 KiB metric buffer, and metrics
// received on port 3024 of every interface (0.0.0.0).
func Default() WaveConfig {
	return WaveConfig{
		DBURL:                   "sqlite://./wave.db",
		MetricBufferSizeKB:      500,
		Host:                    "0.0.0.0",
		Port:                    3024,
		WatchDefinitionDuration: 5,
	}
}

// Load reads configFile (if non-empty) or the standard search path, then
// overlays WAVE_-prefixed environment variables, mirroring the teacher's
// OLLAMA_-prefixed viper setup. A config file that does not exist is not
// an error: the defaults (plus any environment overrides) are used.
func Load(configFile string) (WaveConfig, error) {
	def := Default()

	v := viper.New()
	v.SetDefault("db_url", def.DBURL)
	v.SetDefault("metric_buffer_size_kb", def.MetricBufferSizeKB)
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("watch_definition_duration", def.WatchDefinitionDuration)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("wave-config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.wave-autoscale")
		v.AddConfigPath("/etc/wave-autoscale")
	}

	v.SetEnvPrefix("WAVE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return WaveConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg WaveConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return WaveConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
