package vmcore

import (
	"math"

	"slotvm/internal/bytecode"
)

// binArith evaluates a two-operand arithmetic opcode. Both operands Int
// keeps the result Int unless forceFloat is set (DIVVV and POWVV always
// widen); any other numeric mix widens to Float.
func binArith(op bytecode.OpCode, ip int, x, y Slot, intOp func(a, b int64) int64, floatOp func(a, b float64) float64, forceFloat bool) (Slot, error) {
	if !x.IsNumeric() || !y.IsNumeric() {
		return Slot{}, fatalf(op, ip, "%s requires numeric operands", []Slot{x, y}, op)
	}
	if !forceFloat && x.Tag() == TagInt && y.Tag() == TagInt {
		return IntSlot(intOp(x.AsInt(), y.AsInt())), nil
	}
	return FloatSlot(floatOp(x.NumericValue(), y.NumericValue())), nil
}

// cmpNumeric evaluates ISLT/ISGE/ISLE/ISGT, which stay strictly numeric —
// unlike ISEQ/ISNEQ they raise a FatalError on a non-numeric operand rather
// than falling back to structural comparison.
func cmpNumeric(op bytecode.OpCode, ip int, x, y Slot, cmp func(a, b float64) bool) (Slot, error) {
	if !x.IsNumeric() || !y.IsNumeric() {
		return Slot{}, fatalf(op, ip, "%s requires numeric operands", []Slot{x, y}, op)
	}
	return BoolSlot(cmp(x.NumericValue(), y.NumericValue())), nil
}

// step decodes and executes instr, returning the next instruction word
// already fetched. Each handler owns its own fetch/fetchNext/jump, so
// the main loop re-enters on the returned word rather than performing a
// redundant fetch for the common fall-through case.
func (vm *VM) step(instr bytecode.Instruction) (bytecode.Instruction, error) {
	op := instr.OpCode()
	f := vm.Frame
	ip := vm.ip
	a, b, c, d := instr.A(), instr.B(), instr.C(), instr.D()

	switch op {

	// ---- constant loads -------------------------------------------------
	case bytecode.CSTR:
		if int(d) >= len(vm.Consts.Strs) {
			return 0, fatalf(op, ip, "string constant index %d out of range", nil, d)
		}
		f.Store(int(a), StrSlot(vm.Consts.Strs[d]))
		return vm.fetchNext()

	case bytecode.CKEY:
		if int(d) >= len(vm.Consts.Keys) {
			return 0, fatalf(op, ip, "keyword constant index %d out of range", nil, d)
		}
		f.Store(int(a), KeySlot(vm.Consts.Keys[d]))
		return vm.fetchNext()

	case bytecode.CINT:
		if int(d) >= len(vm.Consts.Ints) {
			return 0, fatalf(op, ip, "int constant index %d out of range", nil, d)
		}
		f.Store(int(a), IntSlot(vm.Consts.Ints[d]))
		return vm.fetchNext()

	case bytecode.CSHORT:
		// D is unsigned here: CSHORT D=65535 stores Int(65535). Negative
		// short literals go through CINT instead.
		f.Store(int(a), IntSlot(int64(d)))
		return vm.fetchNext()

	case bytecode.CFLOAT:
		if int(d) >= len(vm.Consts.Floats) {
			return 0, fatalf(op, ip, "float constant index %d out of range", nil, d)
		}
		f.Store(int(a), FloatSlot(vm.Consts.Floats[d]))
		return vm.fetchNext()

	case bytecode.CBOOL:
		f.Store(int(a), BoolSlot(d == 1))
		return vm.fetchNext()

	case bytecode.CNIL:
		f.Store(int(a), NilSlot())
		return vm.fetchNext()

	case bytecode.CTYPE:
		if int(d) >= len(vm.Consts.Types) {
			return 0, fatalf(op, ip, "type constant index %d out of range", nil, d)
		}
		f.Store(int(a), CTypeSlot(vm.Consts.Types[d].Nr))
		return vm.fetchNext()

	// ---- global namespace -----------------------------------------------
	case bytecode.NSSETS:
		if int(b) >= len(vm.Consts.Strs) {
			return 0, fatalf(op, ip, "global name index %d out of range", nil, b)
		}
		name := vm.Consts.Strs[b]
		vm.Globals.Insert(name, Binding{Val: f.Load(int(a)), Dynamic: c == 1})
		return vm.fetchNext()

	case bytecode.NSGETS:
		if int(d) >= len(vm.Consts.Strs) {
			return 0, fatalf(op, ip, "global name index %d out of range", nil, d)
		}
		name := vm.Consts.Strs[d]
		bind, ok := vm.Globals.Lookup(name)
		if !ok {
			return 0, fatalf(op, ip, "unbound global %q", nil, name)
		}
		f.Store(int(a), bind.Val.Clone())
		return vm.fetchNext()

	// ---- arithmetic -------------------------------------------------------
	case bytecode.ADDVV:
		x, y := f.Load(int(b)), f.Load(int(c))
		r, err := binArith(op, ip, x, y, func(p, q int64) int64 { return p + q }, func(p, q float64) float64 { return p + q }, false)
		if err != nil {
			return 0, err
		}
		f.Store(int(a), r)
		return vm.fetchNext()

	case bytecode.SUBVV:
		x, y := f.Load(int(b)), f.Load(int(c))
		r, err := binArith(op, ip, x, y, func(p, q int64) int64 { return p - q }, func(p, q float64) float64 { return p - q }, false)
		if err != nil {
			return 0, err
		}
		f.Store(int(a), r)
		return vm.fetchNext()

	case bytecode.MULVV:
		x, y := f.Load(int(b)), f.Load(int(c))
		r, err := binArith(op, ip, x, y, func(p, q int64) int64 { return p * q }, func(p, q float64) float64 { return p * q }, false)
		if err != nil {
			return 0, err
		}
		f.Store(int(a), r)
		return vm.fetchNext()

	case bytecode.DIVVV:
		x, y := f.Load(int(b)), f.Load(int(c))
		// Always widens to Float, even for two Int operands — a
		// truncating integer divide would silently disagree with the
		// source language's arithmetic for the common a/b case, and
		// division by zero needs a Float result.
		r, err := binArith(op, ip, x, y, nil, func(p, q float64) float64 { return p / q }, true)
		if err != nil {
			return 0, err
		}
		f.Store(int(a), r)
		return vm.fetchNext()

	case bytecode.MODVV:
		x, y := f.Load(int(b)), f.Load(int(c))
		if !x.IsNumeric() || !y.IsNumeric() {
			return 0, fatalf(op, ip, "MODVV requires numeric operands", []Slot{x, y})
		}
		if x.Tag() == TagInt && y.Tag() == TagInt {
			if y.AsInt() == 0 {
				return 0, fatalf(op, ip, "integer modulo by zero", []Slot{x, y})
			}
			f.Store(int(a), IntSlot(x.AsInt()%y.AsInt()))
			return vm.fetchNext()
		}
		f.Store(int(a), FloatSlot(math.Mod(x.NumericValue(), y.NumericValue())))
		return vm.fetchNext()

	case bytecode.POWVV:
		x, y := f.Load(int(b)), f.Load(int(c))
		r, err := binArith(op, ip, x, y, nil, math.Pow, true)
		if err != nil {
			return 0, err
		}
		f.Store(int(a), r)
		return vm.fetchNext()

	// ---- comparisons --------------------------------------------------
	case bytecode.ISLT:
		r, err := cmpNumeric(op, ip, f.Load(int(b)), f.Load(int(c)), func(p, q float64) bool { return p < q })
		if err != nil {
			return 0, err
		}
		f.Store(int(a), r)
		return vm.fetchNext()

	case bytecode.ISGE:
		r, err := cmpNumeric(op, ip, f.Load(int(b)), f.Load(int(c)), func(p, q float64) bool { return p >= q })
		if err != nil {
			return 0, err
		}
		f.Store(int(a), r)
		return vm.fetchNext()

	case bytecode.ISLE:
		r, err := cmpNumeric(op, ip, f.Load(int(b)), f.Load(int(c)), func(p, q float64) bool { return p <= q })
		if err != nil {
			return 0, err
		}
		f.Store(int(a), r)
		return vm.fetchNext()

	case bytecode.ISGT:
		r, err := cmpNumeric(op, ip, f.Load(int(b)), f.Load(int(c)), func(p, q float64) bool { return p > q })
		if err != nil {
			return 0, err
		}
		f.Store(int(a), r)
		return vm.fetchNext()

	case bytecode.ISEQ:
		f.Store(int(a), BoolSlot(f.Load(int(b)).Equal(f.Load(int(c)))))
		return vm.fetchNext()

	case bytecode.ISNEQ:
		f.Store(int(a), BoolSlot(!f.Load(int(b)).Equal(f.Load(int(c)))))
		return vm.fetchNext()

	// ---- moves, unary ops -----------------------------------------------
	case bytecode.MOV:
		f.Store(int(a), f.Load(int(d)))
		return vm.fetchNext()

	case bytecode.NOT:
		f.Store(int(a), BoolSlot(!f.Load(int(d)).Truthy()))
		return vm.fetchNext()

	case bytecode.NEG:
		x := f.Load(int(d))
		if !x.IsNumeric() {
			return 0, fatalf(op, ip, "NEG requires a numeric operand", []Slot{x})
		}
		if x.Tag() == TagInt {
			f.Store(int(a), IntSlot(-x.AsInt()))
		} else {
			f.Store(int(a), FloatSlot(-x.AsFloat()))
		}
		return vm.fetchNext()

	// ---- control flow ---------------------------------------------------
	case bytecode.JUMP:
		// D=0 falls through to the next instruction instead of
		// re-fetching this JUMP forever.
		if instr.SD() == 0 {
			return vm.fetchNext()
		}
		return vm.fetch(int(instr.SD()))

	case bytecode.JUMPF:
		if !f.Load(int(a)).Truthy() {
			return vm.fetch(int(instr.SD()))
		}
		return vm.fetchNext()

	case bytecode.JUMPT:
		if f.Load(int(a)).Truthy() {
			return vm.fetch(int(instr.SD()))
		}
		return vm.fetchNext()

	// ---- calls ------------------------------------------------------------
	case bytecode.CALL:
		return vm.execCall(instr)

	case bytecode.RET:
		return vm.execRet(instr)

	// ---- closures -----------------------------------------------------
	case bytecode.FNEW:
		// D is an absolute code index, not a PC-relative offset: the
		// function value outlives this frame, so its entry point cannot
		// depend on where FNEW executed.
		cur := f.Load(1)
		if cur.Tag() == TagSCC {
			// Load already cloned the enclosing closure, so its free
			// vars are ours to hand to the new one.
			f.Store(int(a), SCCSlot(&Closure{Entry: int(d), FreeVars: cur.AsClosure().FreeVars}))
		} else {
			f.Store(int(a), FuncSlot(int(d)))
		}
		return vm.fetchNext()

	case bytecode.VFNEW:
		f.Store(int(a), VFuncSlot(int(d)))
		return vm.fetchNext()

	case bytecode.UCLO:
		lo, hi := int(a), int(d)
		if hi < lo {
			return 0, fatalf(op, ip, "UCLO range [%d,%d] is empty or inverted", nil, lo, hi)
		}
		captured := make([]Slot, hi-lo+1)
		for i := range captured {
			captured[i] = f.Load(lo + i)
		}
		target := hi + 1
		cur := f.Load(target)
		switch cur.Tag() {
		case TagFunc:
			f.Store(target, SCCSlot(&Closure{Entry: cur.AsFuncIndex(), FreeVars: captured}))
		case TagSCC:
			// Append to the loaded clone and store it back.
			cl := cur.AsClosure()
			cl.FreeVars = append(cl.FreeVars, captured...)
			f.Store(target, cur)
		default:
			return 0, fatalf(op, ip, "UCLO target slot %d holds %s, not Func or SCC", []Slot{cur}, target, cur.Tag())
		}
		return vm.fetchNext()

	case bytecode.GETFREEVAR:
		cur := f.Load(1)
		if cur.Tag() != TagSCC {
			return 0, fatalf(op, ip, "GETFREEVAR: slot 1 holds %s, not an active closure", []Slot{cur}, cur.Tag())
		}
		cl := cur.AsClosure()
		if int(d) >= len(cl.FreeVars) {
			return 0, fatalf(op, ip, "free variable index %d out of range (closure has %d)", nil, d, len(cl.FreeVars))
		}
		f.Store(int(a), cl.FreeVars[d])
		return vm.fetchNext()

	// ---- frame bookkeeping ----------------------------------------------
	case bytecode.DROP:
		f.Clear(int(a), int(d))
		return vm.fetchNext()

	case bytecode.TRANC:
		f.ClearAbsoluteToEnd(int(d))
		return vm.fetchNext()

	case bytecode.LOOP:
		return vm.fetchNext()

	case bytecode.BULKMOV:
		n := int(c)
		vals := make([]Slot, n)
		for i := 0; i < n; i++ {
			vals[i] = f.Load(int(b) + i)
		}
		for i := 0; i < n; i++ {
			f.Store(int(a)+i, vals[i])
		}
		return vm.fetchNext()

	// ---- records ----------------------------------------------------------
	case bytecode.ALLOC:
		typeSlot := f.Load(int(d))
		if typeSlot.Tag() != TagCType {
			return 0, fatalf(op, ip, "ALLOC operand is %s, not a type", []Slot{typeSlot}, typeSlot.Tag())
		}
		t, ok := vm.Consts.TypeByNr(typeSlot.AsTypeID())
		if !ok {
			return 0, fatalf(op, ip, "unknown type id %d", nil, typeSlot.AsTypeID())
		}
		f.Store(int(a), ObjSlot(t.Alloc()))
		return vm.fetchNext()

	case bytecode.SETFIELD:
		// Writes go through the owning slot: load a clone, set the
		// field, store the clone back. Other slots holding a copy of
		// the same record are unaffected.
		objSlot := f.Load(int(a))
		if objSlot.Tag() != TagObj {
			return 0, fatalf(op, ip, "SETFIELD target is %s, not a record", []Slot{objSlot}, objSlot.Tag())
		}
		rec := objSlot.AsObj()
		if int(b) >= len(rec.Fields) {
			return 0, fatalf(op, ip, "field index %d out of range (type has %d fields)", nil, b, len(rec.Fields))
		}
		rec.Fields[b] = f.Load(int(c))
		f.Store(int(a), objSlot)
		return vm.fetchNext()

	case bytecode.GETFIELD:
		objSlot := f.Load(int(b))
		if objSlot.Tag() != TagObj {
			return 0, fatalf(op, ip, "GETFIELD source is %s, not a record", []Slot{objSlot}, objSlot.Tag())
		}
		rec := objSlot.AsObj()
		if int(c) >= len(rec.Fields) {
			return 0, fatalf(op, ip, "field index %d out of range (type has %d fields)", nil, c, len(rec.Fields))
		}
		f.Store(int(a), rec.Fields[c])
		return vm.fetchNext()

	// ---- no-op markers ----------------------------------------------------
	case bytecode.FUNCF, bytecode.FUNCV:
		return vm.fetchNext()

	// ---- decoded but unsupported: no Slot variant backs an array ---------
	case bytecode.APPLY, bytecode.NEWARRAY, bytecode.GETARRAY, bytecode.SETARRAY:
		return 0, fatalf(op, ip, "%s is not implemented by this execution engine", nil, op)

	default:
		return 0, fatalf(op, ip, "unknown opcode", nil)
	}
}

// execCall implements CALL: stash the argument count literal, dispatch
// on the callee's tag (Func, SCC, VFunc via the dispatch table, or a
// host Builtin invoked synchronously), and either jump into the callee's
// entry point or, for a builtin, run it in place and fall through.
func (vm *VM) execCall(instr bytecode.Instruction) (bytecode.Instruction, error) {
	op := instr.OpCode()
	f := vm.Frame
	ip := vm.ip
	base := int(instr.A())
	argc := int64(instr.D())

	f.Store(base, IntSlot(argc))
	callee := f.Load(base + 1)

	var entry int
	switch callee.Tag() {
	case TagFunc:
		entry = callee.AsFuncIndex()

	case TagSCC:
		entry = callee.AsClosure().Entry

	case TagVFunc:
		recvSlot := f.Load(base + 2)
		if recvSlot.Tag() != TagObj {
			return 0, fatalf(op, ip, "virtual call receiver is %s, not a record", []Slot{recvSlot}, recvSlot.Tag())
		}
		vfunc := uint32(callee.AsFuncIndex())
		idx, ok := vm.VTable.Resolve(vfunc, recvSlot.AsObj().TypeID)
		if !ok {
			return 0, fatalf(op, ip, "no vtable entry for vfunc %d on type %d", nil, vfunc, recvSlot.AsObj().TypeID)
		}
		entry = idx

	case TagBuiltin:
		return vm.execBuiltinCall(instr, callee.AsBuiltin(), base)

	default:
		return 0, fatalf(op, ip, "CALL target is %s, not callable", []Slot{callee}, callee.Tag())
	}

	if err := vm.Stack.Push(Context{Base: f.Base, IP: vm.ip}); err != nil {
		return 0, fatalf(op, ip, "%v", nil, err)
	}
	f.Base += base
	vm.ip = entry
	return vm.fetch(0)
}

// execBuiltinCall runs a host builtin synchronously in the callee's frame,
// then restores the caller's context itself — there is no code entry for a
// builtin to jump into, so CALL's usual push/jump split collapses into a
// single step.
func (vm *VM) execBuiltinCall(instr bytecode.Instruction, fn Builtin, base int) (bytecode.Instruction, error) {
	op := instr.OpCode()
	ip := vm.ip
	f := vm.Frame

	caller := Context{Base: f.Base, IP: vm.ip}
	if err := vm.Stack.Push(caller); err != nil {
		return 0, fatalf(op, ip, "%v", nil, err)
	}
	f.Base += base

	if err := fn(vm); err != nil {
		return 0, hostErrorf(op, ip, err)
	}

	// Clearing bound mirrors RET's own [2, A+10) window rather than
	// inventing a second magic number for the builtin path.
	f.Clear(2, base+9)

	restored, ok := vm.Stack.Pop()
	if !ok {
		return 0, fatalf(op, ip, "call stack underflow returning from builtin", nil)
	}
	f.Base = restored.Base
	vm.ip = restored.IP
	return vm.fetchNext()
}

// execRet implements RET: the return value travels in the callee's slot
// 0, which is — by construction of how CALL computed the new base — the
// same absolute slot as the caller's own A register, so no explicit copy
// back into the caller's frame is needed beyond this store.
//
// A RET with nothing on the call stack is the top-level program
// returning from its implicit outermost frame — not an error: base and
// ip are left alone and execution falls through toward the image's
// trailing EXIT.
func (vm *VM) execRet(instr bytecode.Instruction) (bytecode.Instruction, error) {
	f := vm.Frame
	a := int(instr.A())

	retVal := f.Load(a)
	f.Store(0, retVal)
	f.Clear(2, a+9)

	if caller, ok := vm.Stack.Pop(); ok {
		f.Base = caller.Base
		vm.ip = caller.IP
	}
	return vm.fetchNext()
}
