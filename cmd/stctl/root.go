package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stcore/internal/config"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stctl",
		Short: "Control and exercise the Structured Text execution core",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML engine config file")

	root.AddCommand(newUploadCmd())
	root.AddCommand(newTickCmd())
	root.AddCommand(newSnapshotCmd())
	root.AddCommand(newDebugCmd())
	return root
}

func loadConfig() (config.EngineConfig, error) {
	return config.Load(configPath)
}

func newLogger(levelName string) (*zap.Logger, error) {
	var level zap.AtomicLevel
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	return cfg.Build()
}
