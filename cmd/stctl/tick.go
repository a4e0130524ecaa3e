package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"stcore/internal/engine"
)

func newTickCmd() *cobra.Command {
	var slot int
	var count int
	cmd := &cobra.Command{
		Use:   "tick <source-file>",
		Short: "Upload a program and run it for a number of scheduler ticks",
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

			for i := 0; i < count; i++ {
				eng.TickNow()
				time.Sleep(time.Duration(cfg.ExecutionIntervalMs) * time.Millisecond)
			}

			snap, err := eng.Snapshot(slot)
			if err != nil {
				return err
			}
			printSnapshot(snap)
			return nil
		},
	}
	cmd.Flags().IntVar(&slot, "slot", 0, "program slot index [0,4)")
	cmd.Flags().IntVar(&count, "count", 1, "number of ticks to run")
	return cmd
}

func printSnapshot(snap engine.Snapshot) {
	fmt.Printf("slot %d: %s (enabled=%v compiled=%v)\n", snap.SlotIndex, snap.Name, snap.Enabled, snap.Compiled)
	fmt.Printf("  executions=%d errors=%d overruns=%d last_error=%q\n",
		snap.Stats.ExecutionCount, snap.Stats.ErrorCount, snap.Stats.OverrunCount, snap.Stats.LastError)
	for _, v := range snap.Vars {
		fmt.Printf("  %s = %v\n", v.Name, v.Value)
	}
}
