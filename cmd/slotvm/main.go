// cmd/slotvm/main.go
package main

import (
	"fmt"
	"log"
	"os"

	"slotvm/internal/builtin"
	"slotvm/internal/diag"
	"slotvm/internal/image"
	"slotvm/internal/vmcore"
)

const version = "0.1.0"

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	var (
		imagePath    string
		disasm       bool
		forceColor   bool
		forceNoColor bool
		maxCallDepth = vmcore.DefaultMaxCallDepth
	)

	for i := 0; i < len(args); i++ {
		switch a := args[i]; a {
		case "--version", "-version":
			showVersion()
			return
		case "--help", "-h", "help":
			showUsage()
			return
		case "-disasm":
			disasm = true
		case "-color":
			forceColor = true
		case "-no-color":
			forceNoColor = true
		case "-max-call-depth":
			if i+1 >= len(args) {
				log.Fatalf("-max-call-depth requires a value")
			}
			i++
			n, err := parsePositiveInt(args[i])
			if err != nil {
				log.Fatalf("-max-call-depth: %v", err)
			}
			maxCallDepth = n
		default:
			if imagePath != "" {
				log.Fatalf("unexpected extra argument %q", a)
			}
			imagePath = a
		}
	}

	if imagePath == "" {
		showUsage()
		os.Exit(1)
	}

	prog, err := image.LoadFile(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load error: %v\n", err)
		os.Exit(1)
	}

	if disasm {
		color := diag.ColorEnabled(forceColor, forceNoColor, os.Stdout)
		if err := diag.Stats(os.Stdout, prog.Code, prog.Consts); err != nil {
			log.Fatalf("disasm: %v", err)
		}
		fmt.Println()
		if err := diag.Disassemble(os.Stdout, prog.Code, color); err != nil {
			log.Fatalf("disasm: %v", err)
		}
		return
	}

	vm := vmcore.New(prog.Code, prog.Consts, prog.VTable, maxCallDepth)
	builtin.Install(vm.Globals, os.Stdout)

	if err := vm.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "image %s: %v\n", prog.ID, err)
		os.Exit(1)
	}
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%q is not a positive integer", s)
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return 0, fmt.Errorf("%q must be greater than zero", s)
	}
	return n, nil
}

func showUsage() {
	fmt.Println("slotvm - register-based bytecode VM")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  slotvm [flags] <image.json>")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -disasm             print a disassembly and constant-pool summary instead of running")
	fmt.Println("  -color              force colored disassembly output")
	fmt.Println("  -no-color           force plain disassembly output")
	fmt.Println("  -max-call-depth N   bound the call stack (default 2000)")
	fmt.Println("  --version           print version information")
	fmt.Println("  --help              show this message")
}

func showVersion() {
	fmt.Printf("slotvm %s\n", version)
}
