package diag

import (
	"bytes"
	"strings"
	"testing"

	"slotvm/internal/bytecode"
	"slotvm/internal/vmcore"
)

func TestDisassembleOneLinePerInstruction(t *testing.T) {
	code := []bytecode.Instruction{
		bytecode.EncodeAD(bytecode.CSHORT, 0, 42),
		bytecode.EncodeABC(bytecode.ADDVV, 0, 1, 2),
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),
	}

	var out bytes.Buffer
	if err := Disassemble(&out, code, false); err != nil {
		t.Fatalf("Disassemble: %v", err)
	}

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "CSHORT") || !strings.Contains(lines[0], "d=42") {
		t.Errorf("line 0 = %q, want CSHORT with its AD operands", lines[0])
	}
	if !strings.Contains(lines[1], "ADDVV") || !strings.Contains(lines[1], "b=1") || !strings.Contains(lines[1], "c=2") {
		t.Errorf("line 1 = %q, want ADDVV with its ABC operands", lines[1])
	}
	if strings.Contains(out.String(), "\x1b[") {
		t.Error("plain output must carry no ANSI escapes")
	}
}

func TestDisassembleColorCarriesANSI(t *testing.T) {
	code := []bytecode.Instruction{bytecode.EncodeAD(bytecode.EXIT, 0, 0)}

	var out bytes.Buffer
	if err := Disassemble(&out, code, true); err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if !strings.Contains(out.String(), "\x1b[") {
		t.Error("colored output should carry ANSI escapes")
	}
}

func TestStats(t *testing.T) {
	code := make([]bytecode.Instruction, 1500)
	consts := vmcore.ConstPool{
		Ints: []int64{1, 2},
		Strs: []string{"a"},
	}

	var out bytes.Buffer
	if err := Stats(&out, code, consts); err != nil {
		t.Fatalf("Stats: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "1,500") {
		t.Errorf("Stats output %q should humanize the instruction count", got)
	}
	if !strings.Contains(got, "2 ints") || !strings.Contains(got, "1 strings") {
		t.Errorf("Stats output %q should report constant pool sizes", got)
	}
}

func TestColorEnabledOverrides(t *testing.T) {
	if ColorEnabled(false, true, nil) {
		t.Error("-no-color must win")
	}
	if !ColorEnabled(true, false, nil) {
		t.Error("-color must force color on")
	}
}
