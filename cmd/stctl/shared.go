package main

import (
	"go.uber.org/zap"

	"stcore/internal/clock"
	"stcore/internal/config"
	"stcore/internal/engine"
	"stcore/internal/register"
)

// newEngineFromConfig builds a fresh Engine with an in-memory register
// file and a real monotonic clock, used by every subcommand that runs the
// engine standalone (this CLI has no daemon/persistence layer of its own;
// each invocation starts from a clean slate).
func newEngineFromConfig(cfg config.EngineConfig, logger *zap.Logger) *engine.Engine {
	reg := register.NewMemory(register.Sizes{
		Holding:  cfg.Register.Holding,
		Input:    cfg.Register.Input,
		Coils:    cfg.Register.Coils,
		Discrete: cfg.Register.Discrete,
	})
	return engine.New(engine.Config{
		ExecutionIntervalMs: cfg.ExecutionIntervalMs,
		MaxRequestsPerCycle: cfg.MaxRequestsPerCycle,
		Register:            reg,
		Clock:               clock.NewMonotonic(),
		Logger:              logger,
	})
}
