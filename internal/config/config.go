// Package config loads jseries settings from YAML files and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Sumatoshi-tech/jseries/pkg/archive"
)

// Config is the top-level configuration struct for jseries.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Build         BuildConfig         `mapstructure:"build"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Store         StoreConfig         `mapstructure:"store"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// BuildConfig holds history build knobs.
type BuildConfig struct {
	// Concurrency is the number of versions extracted at once. Zero picks a
	// CPU-derived default.
	Concurrency int `mapstructure:"concurrency"`
	// ClassWorkers is the per-version decode fan-out. Zero picks a default.
	ClassWorkers        int      `mapstructure:"class_workers"`
	IncludeInnerClasses bool     `mapstructure:"include_inner_classes"`
	Include             []string `mapstructure:"include"`
	Exclude             []string `mapstructure:"exclude"`
}

// CacheConfig holds snapshot cache settings.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Dir defaults to the user cache directory when empty.
	Dir string `mapstructure:"dir"`
}

// StoreConfig holds history store settings. An empty path disables it.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// ObservabilityConfig holds tracing and metrics export settings.
type ObservabilityConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	TraceVerbose bool    `mapstructure:"trace_verbose"`
	// MetricsAddr serves Prometheus /metrics when set.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Sentinel errors for configuration validation.
var (
	// ErrInvalidConcurrency indicates a negative build.concurrency.
	ErrInvalidConcurrency = errors.New("build.concurrency must be non-negative")
	// ErrInvalidClassWorkers indicates a negative build.class_workers.
	ErrInvalidClassWorkers = errors.New("build.class_workers must be non-negative")
	// ErrInvalidPattern indicates an include or exclude glob that does not compile.
	ErrInvalidPattern = errors.New("build.include and build.exclude must be valid globs")
	// ErrInvalidLogLevel indicates an unknown logging.level.
	ErrInvalidLogLevel = errors.New("logging.level must be debug, info, warn or error")
	// ErrInvalidSampleRatio indicates observability.sample_ratio outside [0, 1].
	ErrInvalidSampleRatio = errors.New("observability.sample_ratio must be between 0 and 1")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	if c.Build.Concurrency < 0 {
		return ErrInvalidConcurrency
	}

	if c.Build.ClassWorkers < 0 {
		return ErrInvalidClassWorkers
	}

	if _, err := archive.NewFilter(c.ArchiveOptions()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}

	if c.Logging.Level != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
			return ErrInvalidLogLevel
		}
	}

	if c.Observability.SampleRatio < 0 || c.Observability.SampleRatio > 1 {
		return ErrInvalidSampleRatio
	}

	return nil
}

// ArchiveOptions returns the entry selection settings for archive.Open.
func (c *Config) ArchiveOptions() archive.Options {
	return archive.Options{
		IncludeInner: c.Build.IncludeInnerClasses,
		Include:      c.Build.Include,
		Exclude:      c.Build.Exclude,
	}
}

// ExtractionKey describes every setting that changes extraction output. It
// is part of the snapshot cache fingerprint.
func (c *Config) ExtractionKey() string {
	include := append([]string(nil), c.Build.Include...)
	exclude := append([]string(nil), c.Build.Exclude...)

	sort.Strings(include)
	sort.Strings(exclude)

	return fmt.Sprintf("inner=%t;include=%s;exclude=%s",
		c.Build.IncludeInnerClasses, strings.Join(include, ","), strings.Join(exclude, ","))
}
