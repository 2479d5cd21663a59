// Package config loads orchestration defaults from gridpilot.yaml and
// GRIDPILOT_* environment variables. The resulting Options value is passed
// per orchestration call and never mutated during one.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Options is the flat per-call configuration recognized by the orchestrator.
type Options struct {
	Streaming         bool   `mapstructure:"streaming"`
	Parallel          bool   `mapstructure:"parallel"`
	MaxConcurrency    int    `mapstructure:"max_concurrency"`
	EnableRecovery    bool   `mapstructure:"enable_recovery"`
	EnableTracing     bool   `mapstructure:"enable_tracing"`
	EnableOTel        bool   `mapstructure:"enable_otel"`
	ContinueOnFailure bool   `mapstructure:"continue_on_failure"`
	SessionID         string `mapstructure:"session_id"`

	// Cancel requests a cooperative stop at the next polling point.
	Cancel <-chan struct{} `mapstructure:"-"`
	// OnProgress receives phase transitions; may be nil.
	OnProgress func(phase string, current, total int, message string) `mapstructure:"-"`
}

// Defaults returns the built-in option values.
func Defaults() Options {
	return Options{
		Parallel:          true,
		MaxConcurrency:    5,
		EnableRecovery:    true,
		EnableTracing:     true,
		ContinueOnFailure: true,
	}
}

// Load reads gridpilot.yaml from the given paths (falling back to the
// working directory) merged with GRIDPILOT_* env vars over Defaults. A
// missing config file is not an error.
func Load(paths ...string) (Options, error) {
	v := viper.New()
	v.SetConfigName("gridpilot")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, path := range paths {
		v.AddConfigPath(path)
	}
	v.SetEnvPrefix("GRIDPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Defaults()
	v.SetDefault("streaming", defaults.Streaming)
	v.SetDefault("parallel", defaults.Parallel)
	v.SetDefault("max_concurrency", defaults.MaxConcurrency)
	v.SetDefault("enable_recovery", defaults.EnableRecovery)
	v.SetDefault("enable_tracing", defaults.EnableTracing)
	v.SetDefault("enable_otel", defaults.EnableOTel)
	v.SetDefault("continue_on_failure", defaults.ContinueOnFailure)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return defaults, fmt.Errorf("read config: %w", err)
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return defaults, fmt.Errorf("decode config: %w", err)
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaults.MaxConcurrency
	}
	return opts, nil
}
