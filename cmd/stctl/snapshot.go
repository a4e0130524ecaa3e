package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newSnapshotCmd() *cobra.Command {
	var slot int
	cmd := &cobra.Command{
		Use:   "snapshot <source-file>",
		Short: "Compile and run a program once, printing its statistics and variables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			eng := newEngineFromConfig(cfg, logger)
			if err := eng.Upload(slot, string(src)); err != nil {
				return err
			}
			if err := eng.SetEnabled(slot, true); err != nil {
				return err
			}
			eng.TickNow()

			snap, err := eng.Snapshot(slot)
			if err != nil {
				return err
			}
			printSnapshot(snap)
			return nil
		},
	}
	cmd.Flags().IntVar(&slot, "slot", 0, "program slot index [0,4)")
	return cmd
}
