package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".jseries"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for jseries settings.
const envPrefix = "JSERIES"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	v := New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return Decode(v)
}

// New returns a viper instance with defaults and environment binding, for
// callers that bind command-line flags before decoding.
func New() *viper.Viper {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	v.AutomaticEnv()

	return v
}

// Decode unmarshals and validates the settings held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("build.concurrency", DefaultBuildConcurrency)
	v.SetDefault("build.class_workers", DefaultBuildClassWorkers)
	v.SetDefault("build.include_inner_classes", DefaultBuildIncludeInnerClasses)
	v.SetDefault("build.include", []string{})
	v.SetDefault("build.exclude", []string{})

	v.SetDefault("cache.enabled", DefaultCacheEnabled)
	v.SetDefault("cache.dir", DefaultCacheDir)

	v.SetDefault("store.path", DefaultStorePath)

	v.SetDefault("logging.level", DefaultLoggingLevel)
	v.SetDefault("logging.json", DefaultLoggingJSON)

	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.otlp_insecure", DefaultOTLPInsecure)
	v.SetDefault("observability.sample_ratio", DefaultSampleRatio)
	v.SetDefault("observability.trace_verbose", false)
	v.SetDefault("observability.metrics_addr", DefaultMetricsAddr)
}
