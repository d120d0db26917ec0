// Package config loads the nql CLI's settings through
// github.com/spf13/viper, the way kubekattle-ktl binds its command
// flags to a YAML config file: flags take precedence over file values,
// file values take precedence over the defaults set here.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config mirrors the `nql run` flag surface of SPEC_FULL.md §6.
type Config struct {
	LogsPath     string `mapstructure:"logs"`
	NetworkIface string `mapstructure:"network"`
	SyslogAddr   string `mapstructure:"syslog"`
	Filter       string `mapstructure:"filter"`
	Output       string `mapstructure:"output"`
	OutputPath   string `mapstructure:"output_path"`
	LogLevel     string `mapstructure:"log_level"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
	CorrelateWithinMs int64 `mapstructure:"correlate_within_ms"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("output", "stdout")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("correlate_within_ms", 100)
}

// Load reads configFile (if non-empty) and layers flags on top, per
// spec's "flags take precedence over file values."
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	defaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config %s: %w", configFile, err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
