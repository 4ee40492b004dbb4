// Package diag renders diagnostics for a loaded program image: a
// disassembly listing and summary statistics. Nothing here participates
// in execution — it exists for the -disasm CLI flag.
package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"slotvm/internal/bytecode"
	"slotvm/internal/vmcore"
)

// ANSI codes used when color is enabled. Kept to two roles — opcode
// mnemonic, operand — rather than one color per opcode class, since a
// bytecode listing is read by code index, not by opcode family.
const (
	colorOp    = "\x1b[36m"
	colorOperd = "\x1b[33m"
	colorReset = "\x1b[0m"
)

// ColorEnabled decides whether disassembly output should carry ANSI color,
// honoring explicit -color/-no-color overrides before falling back to
// whether out is a terminal.
func ColorEnabled(forceColor, forceNoColor bool, out *os.File) bool {
	if forceNoColor {
		return false
	}
	if forceColor {
		return true
	}
	return isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())
}

// Disassemble writes one line per instruction: its flat code index,
// mnemonic, and decoded operands.
func Disassemble(w io.Writer, code []bytecode.Instruction, color bool) error {
	width := len(fmt.Sprintf("%d", len(code)))
	for i, instr := range code {
		op := instr.OpCode()
		line := formatOperands(instr)
		if color {
			_, err := fmt.Fprintf(w, "%*d  %s%-10s%s %s\n", width, i, colorOp, op, colorReset, colorizeOperands(line))
			if err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%*d  %-10s %s\n", width, i, op, line); err != nil {
			return err
		}
	}
	return nil
}

func formatOperands(instr bytecode.Instruction) string {
	if instr.OpCode().Class() == bytecode.TyABC {
		return fmt.Sprintf("a=%d b=%d c=%d", instr.A(), instr.B(), instr.C())
	}
	return fmt.Sprintf("a=%d d=%d", instr.A(), instr.D())
}

func colorizeOperands(s string) string {
	return colorOperd + s + colorReset
}

// Stats summarizes a loaded program's size: instruction count, constant
// pool sizes, and the code vector's footprint in bytes (every instruction
// is a fixed 4-byte word, so this is exact, not an estimate).
func Stats(w io.Writer, code []bytecode.Instruction, consts vmcore.ConstPool) error {
	_, err := fmt.Fprintf(w,
		"instructions: %s (%s)\nconstants: %s ints, %s floats, %s strings, %s keywords\ntypes: %s\n",
		humanize.Comma(int64(len(code))),
		humanize.Bytes(uint64(len(code))*4),
		humanize.Comma(int64(len(consts.Ints))),
		humanize.Comma(int64(len(consts.Floats))),
		humanize.Comma(int64(len(consts.Strs))),
		humanize.Comma(int64(len(consts.Keys))),
		humanize.Comma(int64(len(consts.Types))),
	)
	return err
}
