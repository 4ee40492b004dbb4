// Package image loads a serialized program image into the constant pools,
// flat code vector, and virtual dispatch table internal/vmcore's VM needs
// to run. The wire format is the compiler's JSON serialization: a CFUNC
// map of function id to instruction list, the CINT/CFLOAT/CSTR/CKEY
// constant tables, a type table, and a vtable. The loader reduces the
// per-function lists to the single ordered instruction vector the VM
// indexes directly.
package image

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"slotvm/internal/bytecode"
	"slotvm/internal/vmcore"
)

// Program is a fully loaded, ready-to-run image: the flat code vector, the
// constant pools, and the virtual dispatch table. ID is assigned at load
// time purely for diagnostics (cmd/slotvm names it in runtime error
// messages) — it plays no role in execution.
type Program struct {
	ID     uuid.UUID
	Code   []bytecode.Instruction
	Consts vmcore.ConstPool
	VTable *vmcore.VTable
}

// jsonInstr is one serialized instruction: an opcode mnemonic plus up to
// four optional operand fields, present or absent depending on the
// opcode's ABC/AD class.
type jsonInstr struct {
	Op string  `json:"op"`
	A  *uint8  `json:"a,omitempty"`
	B  *uint8  `json:"b,omitempty"`
	C  *uint8  `json:"c,omitempty"`
	D  *uint16 `json:"d,omitempty"`
}

func u8(p *uint8) uint8 {
	if p == nil {
		return 0
	}
	return *p
}

func u16(p *uint16) uint16 {
	if p == nil {
		return 0
	}
	return *p
}

func (ji jsonInstr) decode() (bytecode.Instruction, error) {
	op, ok := bytecode.ParseOpCode(ji.Op)
	if !ok {
		return 0, errors.Errorf("unknown opcode mnemonic %q", ji.Op)
	}
	if op.Class() == bytecode.TyABC {
		return bytecode.EncodeABC(op, u8(ji.A), u8(ji.B), u8(ji.C)), nil
	}
	return bytecode.EncodeAD(op, u8(ji.A), u16(ji.D)), nil
}

type jsonField struct {
	Name    string `json:"name"`
	Offset  int    `json:"offset"`
	Mutable bool   `json:"mutable"`
}

type jsonType struct {
	Name   string      `json:"name"`
	Nr     uint32      `json:"nr"`
	Size   int         `json:"size"`
	Fields []jsonField `json:"fields"`
}

// jsonImage is the top-level wire shape. CFUNC/CINT/CFLOAT/CSTR/CKEY
// carry the compiler's all-caps names since they are the wire contract,
// not Go identifiers a reader would choose.
type jsonImage struct {
	CFUNC  map[string][]jsonInstr    `json:"CFUNC"`
	CINT   []int64                   `json:"CINT"`
	CFLOAT []float64                 `json:"CFLOAT"`
	CSTR   []string                  `json:"CSTR"`
	CKEY   []string                  `json:"CKEY"`
	Types  []jsonType                `json:"types"`
	VTable map[string]map[string]int `json:"vtable"`
}

// Load decodes a program image from r. Every failure here is a load
// error, reported before execution begins: malformed JSON, an unknown
// opcode mnemonic, or a vtable entry naming an id that doesn't parse.
func Load(r io.Reader) (*Program, error) {
	var raw jsonImage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode program image")
	}

	code, err := flattenCode(raw.CFUNC)
	if err != nil {
		return nil, err
	}
	if err := vmcore.ValidateCode(code); err != nil {
		return nil, err
	}
	// The loader guarantees a trailing EXIT, so a top-level RET with no
	// enclosing CALL falls through to a halt instead of running off the
	// end of the code vector.
	if n := len(code); n == 0 || code[n-1].OpCode() != bytecode.EXIT {
		code = append(code, bytecode.EncodeAD(bytecode.EXIT, 0, 0))
	}

	types := make([]vmcore.TypeDescriptor, len(raw.Types))
	for i, jt := range raw.Types {
		fields := make([]vmcore.Field, len(jt.Fields))
		for j, jf := range jt.Fields {
			fields[j] = vmcore.Field{Name: jf.Name, Offset: jf.Offset, Mutable: jf.Mutable}
		}
		types[i] = vmcore.TypeDescriptor{Name: jt.Name, Nr: jt.Nr, Size: jt.Size, Fields: fields}
	}

	vtable, err := buildVTable(raw.VTable)
	if err != nil {
		return nil, err
	}

	return &Program{
		ID:   uuid.New(),
		Code: code,
		Consts: vmcore.ConstPool{
			Ints:   raw.CINT,
			Floats: raw.CFLOAT,
			Strs:   raw.CSTR,
			Keys:   raw.CKEY,
			Types:  types,
		},
		VTable: vtable,
	}, nil
}

// LoadFile opens path and loads it as a program image.
func LoadFile(path string) (*Program, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open program image")
	}
	defer file.Close()
	return Load(file)
}

// flattenCode concatenates CFUNC's per-function instruction lists, in
// ascending numeric key order, into the single flat code vector the VM
// indexes directly. The compiler that emits an image is responsible for
// computing FNEW/CALL targets as offsets into exactly this flattening —
// the loader does not (and cannot, without re-deriving compiler state)
// rewrite those offsets itself.
func flattenCode(funcs map[string][]jsonInstr) ([]bytecode.Instruction, error) {
	ids := make([]int, 0, len(funcs))
	for k := range funcs {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, errors.Wrapf(err, "CFUNC key %q is not a function index", k)
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var code []bytecode.Instruction
	for _, id := range ids {
		instrs := funcs[strconv.Itoa(id)]
		for _, ji := range instrs {
			instr, err := ji.decode()
			if err != nil {
				return nil, errors.Wrapf(err, "function %d", id)
			}
			code = append(code, instr)
		}
	}
	return code, nil
}

func buildVTable(raw map[string]map[string]int) (*vmcore.VTable, error) {
	vt := vmcore.NewVTable()
	for vfuncKey, byType := range raw {
		vfunc, err := strconv.ParseUint(vfuncKey, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "vtable vfunc id %q", vfuncKey)
		}
		for typeKey, codeIndex := range byType {
			typ, err := strconv.ParseUint(typeKey, 10, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "vtable type id %q", typeKey)
			}
			vt.Register(uint32(vfunc), uint32(typ), codeIndex)
		}
	}
	return vt, nil
}
