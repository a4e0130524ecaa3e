package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newUploadCmd() *cobra.Command {
	var slot int
	cmd := &cobra.Command{
		Use:   "upload <source-file>",
		Short: "Compile a Structured Text source file into a program slot",
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
			fmt.Printf("slot %d: compiled ok\n", slot)
			return nil
		},
	}
	cmd.Flags().IntVar(&slot, "slot", 0, "program slot index [0,4)")
	return cmd
}
