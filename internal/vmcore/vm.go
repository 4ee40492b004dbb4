package vmcore

import "slotvm/internal/bytecode"

// DefaultMaxCallDepth bounds the call stack when a caller does not
// override it (cmd/slotvm's -max-call-depth flag does).
const DefaultMaxCallDepth = 2000

// VM owns everything the execution engine needs: the code vector, the
// constant pools, the slot frame, the call stack, the global symbol
// table, and the virtual dispatch table. It is a single owned value —
// there is no process-wide singleton, so multiple VMs coexist without
// interference.
type VM struct {
	Code    []bytecode.Instruction
	Consts  ConstPool
	Frame   *SlotFrame
	Stack   *CallStack
	Globals *SymbolTable
	VTable  *VTable

	ip int
}

// New creates a VM over an already-validated code vector, constant pool,
// and dispatch table. Callers typically get these from internal/image's
// loader; New itself performs no validation, since image inconsistencies
// are the loader's to report before execution begins.
func New(code []bytecode.Instruction, consts ConstPool, vtable *VTable, maxCallDepth int) *VM {
	if maxCallDepth <= 0 {
		maxCallDepth = DefaultMaxCallDepth
	}
	return &VM{
		Code:    code,
		Consts:  consts,
		Frame:   NewSlotFrame(),
		Stack:   NewCallStack(maxCallDepth),
		Globals: NewSymbolTable(),
		VTable:  vtable,
	}
}

// IP reports the current instruction pointer, for diagnostics.
func (vm *VM) IP() int { return vm.ip }

// ValidateCode checks every instruction's opcode ordinal before
// execution begins. An unknown ordinal is a load error, not a runtime
// one — the dispatch loop would reject it anyway, but image
// inconsistencies are reported up front.
func ValidateCode(code []bytecode.Instruction) error {
	for i, instr := range code {
		if !instr.OpCode().Valid() {
			return loadErrorf("instruction %d carries unknown opcode ordinal %d", i, uint8(instr.OpCode()))
		}
	}
	return nil
}

// fetch advances ip by offset and returns the instruction now at ip. An
// out-of-range ip is an image/programmer error with no recovery path —
// it surfaces as a FatalError rather than a Go panic, so the caller
// still gets a clean exit.
func (vm *VM) fetch(offset int) (bytecode.Instruction, error) {
	vm.ip += offset
	if vm.ip < 0 || vm.ip >= len(vm.Code) {
		return 0, fatalf(bytecode.EXIT, vm.ip, "instruction pointer %d out of range [0,%d)", nil, vm.ip, len(vm.Code))
	}
	return vm.Code[vm.ip], nil
}

func (vm *VM) fetchNext() (bytecode.Instruction, error) {
	return vm.fetch(1)
}

// Run executes the fetch-decode-execute loop until EXIT or a
// fatal/host error. It installs no builtins of its own — callers
// populate vm.Globals (internal/builtin does this for the minimal host
// contract) before calling Run.
func (vm *VM) Run() error {
	instr, err := vm.fetch(0)
	if err != nil {
		return err
	}
	for instr.OpCode() != bytecode.EXIT {
		next, err := vm.step(instr)
		if err != nil {
			return err
		}
		instr = next
	}
	return nil
}
