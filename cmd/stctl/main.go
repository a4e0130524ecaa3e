// Command stctl is the CLI entry point around the engine: a cobra command
// tree (upload, tick, snapshot, debug) replacing the teacher's bare
// flag-parsed main.go with a conventional subcommand structure, wired to
// viper configuration and a zap logger.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
