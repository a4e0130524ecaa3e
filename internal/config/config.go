// Package config loads the engine's runtime configuration via viper: a
// YAML file plus STCORE_-prefixed environment variable overrides, the
// conventional viper wiring named in the ambient stack.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// RegisterSizes mirrors register.Sizes without importing that package,
// keeping config dependency-free of the runtime types it configures.
type RegisterSizes struct {
	Holding  int `mapstructure:"holding"`
	Input    int `mapstructure:"input"`
	Coils    int `mapstructure:"coils"`
	Discrete int `mapstructure:"discrete"`
}

// EngineConfig is the engine's full runtime configuration.
type EngineConfig struct {
	ExecutionIntervalMs uint32        `mapstructure:"execution_interval_ms"`
	MaxRequestsPerCycle int           `mapstructure:"max_requests_per_cycle"`
	Register            RegisterSizes `mapstructure:"register"`
	LogLevel            string        `mapstructure:"log_level"`
}

// defaults matches the data model's invariants: execution_interval_ms
// within [1, 60000], a sane default register address space, and the
// built-ins package's default remote-request budget.
func defaults() EngineConfig {
	return EngineConfig{
		ExecutionIntervalMs: 10,
		MaxRequestsPerCycle: 5,
		Register:            RegisterSizes{Holding: 256, Input: 256, Coils: 256, Discrete: 256},
		LogLevel:            "info",
	}
}

// Load reads configPath (may be empty, meaning "defaults plus environment
// only") and overlays STCORE_ environment variables, e.g.
// STCORE_EXECUTION_INTERVAL_MS=20.
func Load(configPath string) (EngineConfig, error) {
	v := viper.New()
	d := defaults()
	v.SetDefault("execution_interval_ms", d.ExecutionIntervalMs)
	v.SetDefault("max_requests_per_cycle", d.MaxRequestsPerCycle)
	v.SetDefault("register.holding", d.Register.Holding)
	v.SetDefault("register.input", d.Register.Input)
	v.SetDefault("register.coils", d.Register.Coils)
	v.SetDefault("register.discrete", d.Register.Discrete)
	v.SetDefault("log_level", d.LogLevel)

	v.SetEnvPrefix("STCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return EngineConfig{}, errors.Wrapf(err, "config: reading %s", configPath)
		}
	}

	var cfg EngineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return EngineConfig{}, errors.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the data model places on engine
// configuration.
func (c EngineConfig) Validate() error {
	if c.ExecutionIntervalMs < 1 || c.ExecutionIntervalMs > 60000 {
		return errors.Errorf("config: execution_interval_ms must be in [1,60000], got %d", c.ExecutionIntervalMs)
	}
	if c.MaxRequestsPerCycle < 1 {
		return errors.New("config: max_requests_per_cycle must be >= 1")
	}
	return nil
}
