package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"stcore/internal/builtins"
	"stcore/internal/compiler"
	"stcore/internal/parser"
	"stcore/internal/vm"
)

// newDebugCmd reimplements the teacher's RunProgramDebugMode loop
// (vm/run.go) over this VM's bytecode program counter instead of the
// teacher's register-machine instruction addresses: single-step, run,
// and toggleable breakpoints on pc.
func newDebugCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug <source-file>",
		Short: "Single-step a compiled program with breakpoints, REPL-style",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			prog, perr := parser.New(string(src)).Parse()
			if perr != nil {
				return perr
			}
			bp, storage, cerr := compiler.Compile(prog, 10)
			if cerr != nil {
				return cerr
			}

			ctx := builtins.NewCallContext(nil, nil, builtins.MaxRequestsDefault)
			machine := vm.New(bp, storage, ctx, 0)
			machine.Reset()
			runDebugRepl(machine)
			return nil
		},
	}
	return cmd
}

func runDebugRepl(machine *vm.VM) {
	fmt.Println("Commands:\n\tn or next: execute next instruction\n\tr or run: run to completion\n\tb or break <pc>: toggle breakpoint\n\tq or quit: exit")

	reader := bufio.NewReader(os.Stdin)
	breakpoints := make(map[int]struct{})
	waitForInput := true
	lastBreakPC := -1

	printState := func() {
		fmt.Printf("pc=%d stack_depth=%d\n", machine.PC(), machine.StackDepth())
	}
	printState()

	for {
		if waitForInput {
			fmt.Print("-> ")
			line, _ := reader.ReadString('\n')
			line = strings.ToLower(strings.TrimSpace(line))

			switch {
			case line == "n" || line == "next":
				lastBreakPC = -1
				halted, err := machine.Step()
				printState()
				if halted {
					fmt.Println("halted:", err)
					return
				}
			case line == "r" || line == "run":
				waitForInput = false
			case line == "q" || line == "quit":
				return
			case strings.HasPrefix(line, "b"):
				fields := strings.Fields(line)
				if len(fields) < 2 {
					continue
				}
				pc, err := strconv.Atoi(fields[1])
				if err != nil {
					fmt.Println("unknown pc:", err)
					continue
				}
				if _, ok := breakpoints[pc]; ok {
					delete(breakpoints, pc)
				} else {
					breakpoints[pc] = struct{}{}
				}
			default:
				fmt.Println("unrecognised command")
			}
			continue
		}

		if _, ok := breakpoints[machine.PC()]; ok && lastBreakPC != machine.PC() {
			fmt.Println("breakpoint")
			printState()
			waitForInput = true
			lastBreakPC = machine.PC()
			continue
		}

		halted, err := machine.Step()
		if halted {
			printState()
			fmt.Println("halted:", err)
			return
		}
	}
}
