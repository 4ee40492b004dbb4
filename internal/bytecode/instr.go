// Package bytecode defines the 32-bit packed instruction word used by the
// slot VM: opcode ordinals, the ABC/AD layout split, and the pack/unpack
// functions that are the only binding contract between an encoder and this
// decoder.
package bytecode

import "fmt"

// OpCode is the low byte of every instruction word. Order is part of the
// wire contract with the compiler that emits bytecode: any reorder is a
// breaking change.
type OpCode uint8

const (
	CSTR OpCode = iota
	CKEY
	CINT
	CSHORT
	CFLOAT
	CBOOL
	CNIL
	CTYPE
	NSSETS
	NSGETS
	ADDVV
	SUBVV
	MULVV
	DIVVV
	MODVV
	POWVV
	ISLT
	ISGE
	ISLE
	ISGT
	ISEQ
	ISNEQ
	MOV
	NOT
	NEG
	JUMP
	JUMPF
	JUMPT
	CALL
	RET
	APPLY
	FNEW
	VFNEW
	DROP
	TRANC
	UCLO
	GETFREEVAR
	LOOP
	BULKMOV
	NEWARRAY
	GETARRAY
	SETARRAY
	ALLOC
	SETFIELD
	GETFIELD
	FUNCF
	FUNCV
	EXIT

	numOpCodes
)

var opNames = [...]string{
	CSTR: "CSTR", CKEY: "CKEY", CINT: "CINT", CSHORT: "CSHORT",
	CFLOAT: "CFLOAT", CBOOL: "CBOOL", CNIL: "CNIL", CTYPE: "CTYPE",
	NSSETS: "NSSETS", NSGETS: "NSGETS",
	ADDVV: "ADDVV", SUBVV: "SUBVV", MULVV: "MULVV", DIVVV: "DIVVV",
	MODVV: "MODVV", POWVV: "POWVV",
	ISLT: "ISLT", ISGE: "ISGE", ISLE: "ISLE", ISGT: "ISGT",
	ISEQ: "ISEQ", ISNEQ: "ISNEQ",
	MOV: "MOV", NOT: "NOT", NEG: "NEG",
	JUMP: "JUMP", JUMPF: "JUMPF", JUMPT: "JUMPT",
	CALL: "CALL", RET: "RET", APPLY: "APPLY",
	FNEW: "FNEW", VFNEW: "VFNEW",
	DROP: "DROP", TRANC: "TRANC", UCLO: "UCLO", GETFREEVAR: "GETFREEVAR",
	LOOP: "LOOP", BULKMOV: "BULKMOV",
	NEWARRAY: "NEWARRAY", GETARRAY: "GETARRAY", SETARRAY: "SETARRAY",
	ALLOC: "ALLOC", SETFIELD: "SETFIELD", GETFIELD: "GETFIELD",
	FUNCF: "FUNCF", FUNCV: "FUNCV",
	EXIT: "EXIT",
}

func (op OpCode) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("OP(%d)", uint8(op))
}

// Valid reports whether op is a defined ordinal. The loader calls this
// while validating an image; the decoder treats an invalid ordinal as
// fatal regardless.
func (op OpCode) Valid() bool {
	return op < numOpCodes
}

var opByName map[string]OpCode

func init() {
	opByName = make(map[string]OpCode, len(opNames))
	for i, name := range opNames {
		if name != "" {
			opByName[name] = OpCode(i)
		}
	}
}

// ParseOpCode resolves a mnemonic (as it appears in a program image's JSON
// form) to its ordinal. Used by internal/image's loader, which accepts
// opcodes spelled out by name rather than by raw ordinal.
func ParseOpCode(name string) (OpCode, bool) {
	op, ok := opByName[name]
	return op, ok
}

// Class distinguishes the two instruction layouts.
type Class uint8

const (
	TyABC Class = iota
	TyAD
)

// abcOpcodes is the set of opcodes using the 3-register ABC layout; every
// other defined opcode uses AD. This partition is part of the wire
// contract with the compiler, not inferred from usage.
var abcOpcodes = map[OpCode]bool{
	NSSETS:   true,
	ADDVV:    true,
	SUBVV:    true,
	MULVV:    true,
	DIVVV:    true,
	MODVV:    true,
	POWVV:    true,
	ISLT:     true,
	ISGE:     true,
	ISLE:     true,
	ISGT:     true,
	ISEQ:     true,
	ISNEQ:    true,
	APPLY:    true,
	LOOP:     true,
	BULKMOV:  true,
	NEWARRAY: true,
	GETARRAY: true,
	SETARRAY: true,
	SETFIELD: true,
	GETFIELD: true,
}

// Class reports whether op is encoded/decoded as ABC or AD.
func (op OpCode) Class() Class {
	if abcOpcodes[op] {
		return TyABC
	}
	return TyAD
}

// Instruction is the 32-bit packed word. Byte 0 is always the opcode; the
// remaining three bytes are interpreted per Class(): byte 1 = A, byte 2 = C,
// byte 3 = B for ABC; byte 1 = A, bytes 2-3 (little-endian) = D for AD.
// This layout is the only thing an encoder and this decoder must agree on.
type Instruction uint32

// EncodeABC packs a 3-register instruction.
func EncodeABC(op OpCode, a, b, c uint8) Instruction {
	return Instruction(op) |
		Instruction(a)<<8 |
		Instruction(c)<<16 |
		Instruction(b)<<24
}

// EncodeAD packs an A/D instruction. d is accepted as a raw 16-bit pattern;
// callers that need a signed offset convert with int16(d) on decode.
func EncodeAD(op OpCode, a uint8, d uint16) Instruction {
	return Instruction(op) |
		Instruction(a)<<8 |
		Instruction(d)<<16
}

// EncodeASD packs an AD instruction from a signed D, for jump-style opcodes.
func EncodeASD(op OpCode, a uint8, d int16) Instruction {
	return EncodeAD(op, a, uint16(d))
}

// OpCode extracts the opcode byte.
func (i Instruction) OpCode() OpCode {
	return OpCode(i & 0xFF)
}

// A extracts the A field, present in both layouts.
func (i Instruction) A() uint8 {
	return uint8(i >> 8 & 0xFF)
}

// B extracts the B field of an ABC instruction.
func (i Instruction) B() uint8 {
	return uint8(i >> 24 & 0xFF)
}

// C extracts the C field of an ABC instruction.
func (i Instruction) C() uint8 {
	return uint8(i >> 16 & 0xFF)
}

// D extracts the unsigned D field of an AD instruction.
func (i Instruction) D() uint16 {
	return uint16(i >> 16 & 0xFFFF)
}

// SD extracts D as a signed 16-bit offset, for jump-style opcodes.
func (i Instruction) SD() int16 {
	return int16(i.D())
}

func (i Instruction) String() string {
	op := i.OpCode()
	if op.Class() == TyABC {
		return fmt.Sprintf("%s(a:%d,b:%d,c:%d)", op, i.A(), i.B(), i.C())
	}
	return fmt.Sprintf("%s(a:%d,d:%d)", op, i.A(), i.D())
}
