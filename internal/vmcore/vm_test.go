package vmcore

import (
	"testing"

	"github.com/kr/pretty"

	"slotvm/internal/bytecode"
)

func mustRun(t *testing.T, vm *VM) {
	t.Helper()
	if err := vm.Run(); err != nil {
		t.Fatalf("Run() returned an error: %v\n%s", err, pretty.Sprint(err))
	}
}

// TestConstantReturn runs a bare CSHORT/RET pair with no
// surrounding CALL, halting on the trailing EXIT.
func TestConstantReturn(t *testing.T) {
	code := []bytecode.Instruction{
		bytecode.EncodeAD(bytecode.CSHORT, 0, 42),
		bytecode.EncodeAD(bytecode.RET, 0, 0),
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),
	}
	vm := New(code, ConstPool{}, NewVTable(), 0)
	mustRun(t, vm)

	if got := vm.Frame.Load(0); got.Tag() != TagInt || got.AsInt() != 42 {
		t.Errorf("R[0] = %s, want Int(42)", got)
	}
}

// TestArithmeticPromotion checks that Int + Float widens to
// Float.
func TestArithmeticPromotion(t *testing.T) {
	code := []bytecode.Instruction{
		bytecode.EncodeAD(bytecode.CSHORT, 2, 3),
		bytecode.EncodeAD(bytecode.CFLOAT, 3, 0),
		bytecode.EncodeABC(bytecode.ADDVV, 0, 2, 3),
		bytecode.EncodeAD(bytecode.RET, 0, 0),
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),
	}
	consts := ConstPool{Floats: []float64{1.5}}
	vm := New(code, consts, NewVTable(), 0)
	mustRun(t, vm)

	got := vm.Frame.Load(0)
	if got.Tag() != TagFloat || got.AsFloat() != 4.5 {
		t.Errorf("R[0] = %s, want Float(4.5)", got)
	}
}

// TestConditionalBranch checks that JUMPF skips the next
// instruction when its operand is falsy.
func TestConditionalBranch(t *testing.T) {
	code := []bytecode.Instruction{
		bytecode.EncodeAD(bytecode.CBOOL, 2, 0),
		bytecode.EncodeASD(bytecode.JUMPF, 2, 2),
		bytecode.EncodeAD(bytecode.CSHORT, 0, 1),
		bytecode.EncodeAD(bytecode.CSHORT, 0, 2),
		bytecode.EncodeAD(bytecode.RET, 0, 0),
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),
	}
	vm := New(code, ConstPool{}, NewVTable(), 0)
	mustRun(t, vm)

	got := vm.Frame.Load(0)
	if got.Tag() != TagInt || got.AsInt() != 2 {
		t.Errorf("R[0] = %s, want Int(2)", got)
	}
}

// TestCallAndReturn checks that FNEW followed by CALL enters the
// callee's entry point and its return value lands in the caller's A slot.
func TestCallAndReturn(t *testing.T) {
	code := []bytecode.Instruction{
		bytecode.EncodeAD(bytecode.CSHORT, 4, 7), // 0
		bytecode.EncodeAD(bytecode.FNEW, 3, 10),  // 1: absolute entry 10
		bytecode.EncodeAD(bytecode.CALL, 2, 0),   // 2
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),   // 3: halts once the call unwinds
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),   // 4 (padding up to index 10)
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),   // 5
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),   // 6
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),   // 7
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),   // 8
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),   // 9
		bytecode.EncodeABC(bytecode.ADDVV, 0, 2, 2), // 10
		bytecode.EncodeAD(bytecode.RET, 0, 0),       // 11
	}
	vm := New(code, ConstPool{}, NewVTable(), 0)
	mustRun(t, vm)

	got := vm.Frame.Load(2)
	if got.Tag() != TagInt || got.AsInt() != 14 {
		t.Errorf("caller's R[2] = %s, want Int(14)", got)
	}
}

// TestRecordField checks that ALLOC/SETFIELD/GETFIELD round
// trip a value through a record's field vector.
func TestRecordField(t *testing.T) {
	code := []bytecode.Instruction{
		bytecode.EncodeAD(bytecode.CTYPE, 2, 0),
		bytecode.EncodeAD(bytecode.ALLOC, 3, 2),
		bytecode.EncodeAD(bytecode.CSHORT, 4, 9),
		bytecode.EncodeABC(bytecode.SETFIELD, 3, 0, 4),
		bytecode.EncodeABC(bytecode.GETFIELD, 0, 3, 0),
		bytecode.EncodeAD(bytecode.RET, 0, 0),
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),
	}
	consts := ConstPool{Types: []TypeDescriptor{{Name: "T", Nr: 1, Size: 1}}}
	vm := New(code, consts, NewVTable(), 0)
	mustRun(t, vm)

	got := vm.Frame.Load(0)
	if got.Tag() != TagInt || got.AsInt() != 9 {
		t.Errorf("R[0] = %s, want Int(9)", got)
	}
}

// TestVirtualDispatch checks that CALL on a VFunc resolves
// through the vtable by the receiver's concrete type.
func TestVirtualDispatch(t *testing.T) {
	code := []bytecode.Instruction{
		bytecode.EncodeAD(bytecode.CTYPE, 5, 0),  // 0: slot5 = CType(T.Nr=1)
		bytecode.EncodeAD(bytecode.ALLOC, 4, 5),  // 1: slot4 = Obj(T)   (base+2)
		bytecode.EncodeAD(bytecode.VFNEW, 3, 0),  // 2: slot3 = VFunc(0) (base+1)
		bytecode.EncodeAD(bytecode.CALL, 2, 0),   // 3: base=2
		bytecode.EncodeAD(bytecode.RET, 2, 0),    // 4: top-level return of slot2
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),   // 5
		bytecode.EncodeAD(bytecode.CSHORT, 0, 99), // 6: code_m entry
		bytecode.EncodeAD(bytecode.RET, 0, 0),     // 7
	}
	consts := ConstPool{Types: []TypeDescriptor{{Name: "T", Nr: 1, Size: 0}}}
	vt := NewVTable()
	vt.Register(0, 1, 6)
	vm := New(code, consts, vt, 0)
	mustRun(t, vm)

	got := vm.Frame.Load(0)
	if got.Tag() != TagInt || got.AsInt() != 99 {
		t.Errorf("R[0] = %s, want Int(99)", got)
	}
}

func TestJumpBoundaryCases(t *testing.T) {
	// JUMP with D=0 falls through to the next instruction.
	code := []bytecode.Instruction{
		bytecode.EncodeASD(bytecode.JUMP, 0, 0),
		bytecode.EncodeAD(bytecode.CSHORT, 0, 5),
		bytecode.EncodeAD(bytecode.RET, 0, 0),
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),
	}
	vm := New(code, ConstPool{}, NewVTable(), 0)
	mustRun(t, vm)
	if got := vm.Frame.Load(0); got.AsInt() != 5 {
		t.Errorf("R[0] = %s, want Int(5)", got)
	}
}

func TestDivisionByZeroWidensToFloat(t *testing.T) {
	code := []bytecode.Instruction{
		bytecode.EncodeAD(bytecode.CSHORT, 0, 1),
		bytecode.EncodeAD(bytecode.CSHORT, 1, 0),
		bytecode.EncodeABC(bytecode.DIVVV, 2, 0, 1),
		bytecode.EncodeAD(bytecode.RET, 2, 0),
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),
	}
	vm := New(code, ConstPool{}, NewVTable(), 0)
	mustRun(t, vm)
	got := vm.Frame.Load(0)
	if got.Tag() != TagFloat {
		t.Errorf("1/0 should widen to Float, got %s", got.Tag())
	}
}

func TestNotIsInvolutionOnBool(t *testing.T) {
	code := []bytecode.Instruction{
		bytecode.EncodeAD(bytecode.CBOOL, 0, 1),
		bytecode.EncodeAD(bytecode.NOT, 1, 0),
		bytecode.EncodeAD(bytecode.NOT, 2, 1),
		bytecode.EncodeAD(bytecode.RET, 2, 0),
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),
	}
	vm := New(code, ConstPool{}, NewVTable(), 0)
	mustRun(t, vm)
	got := vm.Frame.Load(0)
	if got.Tag() != TagBool || !got.AsBool() {
		t.Errorf("NOT(NOT(true)) = %s, want Bool(true)", got)
	}
}

func TestCallStackOverflowIsFatal(t *testing.T) {
	// FNEW targeting its own CALL site — infinite recursion should trip
	// the configured call-depth bound rather than overflow the Go stack.
	code := []bytecode.Instruction{
		bytecode.EncodeAD(bytecode.FNEW, 1, 0),
		bytecode.EncodeAD(bytecode.CALL, 0, 0),
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),
	}
	vm := New(code, ConstPool{}, NewVTable(), 4)
	if err := vm.Run(); err == nil {
		t.Fatal("expected a fatal error on call-stack exhaustion")
	}
}

func TestUnboundGlobalIsFatal(t *testing.T) {
	code := []bytecode.Instruction{
		bytecode.EncodeAD(bytecode.NSGETS, 0, 0),
		bytecode.EncodeAD(bytecode.RET, 0, 0),
		bytecode.EncodeAD(bytecode.EXIT, 0, 0),
	}
	consts := ConstPool{Strs: []string{"undefined-name"}}
	vm := New(code, consts, NewVTable(), 0)
	if err := vm.Run(); err == nil {
		t.Fatal("expected a fatal error looking up an unbound global")
	}
}

func TestValidateCodeRejectsUnknownOrdinal(t *testing.T) {
	code := []bytecode.Instruction{
		bytecode.EncodeAD(bytecode.CSHORT, 0, 1),
		bytecode.Instruction(0xFF), // no such ordinal
	}
	err := ValidateCode(code)
	if err == nil {
		t.Fatal("expected a load error for an unknown opcode ordinal")
	}
	vmErr, ok := err.(*VMError)
	if !ok || vmErr.Kind != LoadKind {
		t.Errorf("error = %v (%T), want a LoadError VMError", err, err)
	}
}

func TestValidateCodeAcceptsEveryDefinedOpcode(t *testing.T) {
	var code []bytecode.Instruction
	for op := bytecode.CSTR; op <= bytecode.EXIT; op++ {
		code = append(code, bytecode.Instruction(op))
	}
	if err := ValidateCode(code); err != nil {
		t.Errorf("ValidateCode: %v", err)
	}
}
