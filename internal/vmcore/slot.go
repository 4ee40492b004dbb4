// Package vmcore implements the execution engine: the tagged Slot value,
// the base-relative register window, the call stack, the global symbol
// table, the virtual dispatch table, and the fetch-decode-execute loop
// that ties them together.
package vmcore

import "fmt"

// Tag discriminates the Slot sum type. Every arithmetic opcode needs a fast
// discriminator, so Slot is a flat struct switched on Tag rather than an
// interface with per-variant dynamic dispatch.
type Tag uint8

const (
	TagNil Tag = iota
	TagInt
	TagFloat
	TagBool
	TagStr
	TagKey
	TagFunc
	TagVFunc
	TagObj
	TagCType
	TagSCC
	TagBuiltin
)

func (t Tag) String() string {
	switch t {
	case TagNil:
		return "nil"
	case TagInt:
		return "int"
	case TagFloat:
		return "float"
	case TagBool:
		return "bool"
	case TagStr:
		return "str"
	case TagKey:
		return "key"
	case TagFunc:
		return "func"
	case TagVFunc:
		return "vfunc"
	case TagObj:
		return "obj"
	case TagCType:
		return "ctype"
	case TagSCC:
		return "closure"
	case TagBuiltin:
		return "builtin"
	default:
		return "unknown"
	}
}

// Record is a heap-allocated instance of a user-defined type: a type id
// and a fixed-arity vector of field slots. A Record never leaves the
// slot that owns it except as a clone — copying a Slot copies the whole
// record, so mutating one copy never shows through another.
type Record struct {
	TypeID uint32
	Fields []Slot
}

// Clone returns a deep copy: the field vector and everything reachable
// from it.
func (r *Record) Clone() *Record {
	fields := make([]Slot, len(r.Fields))
	for i := range r.Fields {
		fields[i] = r.Fields[i].Clone()
	}
	return &Record{TypeID: r.TypeID, Fields: fields}
}

// Closure pairs an entry point with its captured free variables.
type Closure struct {
	Entry    int
	FreeVars []Slot
}

// Clone returns a deep copy of the closure and its captured slots.
func (c *Closure) Clone() *Closure {
	fv := make([]Slot, len(c.FreeVars))
	for i := range c.FreeVars {
		fv[i] = c.FreeVars[i].Clone()
	}
	return &Closure{Entry: c.Entry, FreeVars: fv}
}

// Builtin is the host-function ABI: a native callable taking the VM as
// its sole argument. A builtin reads its arguments from base-relative
// slots starting at 2 and leaves its result in slot 0.
type Builtin func(vm *VM) error

// Slot is the tagged runtime value. The zero Slot is Nil.
type Slot struct {
	tag     Tag
	i       int64
	f       float64
	b       bool
	s       string
	obj     *Record
	closure *Closure
	builtin Builtin
}

// Nil is the zero value's tag, so a zero Slot{} already reads as Nil; this
// constructor exists for readability at call sites.
func NilSlot() Slot { return Slot{tag: TagNil} }

func IntSlot(v int64) Slot      { return Slot{tag: TagInt, i: v} }
func FloatSlot(v float64) Slot  { return Slot{tag: TagFloat, f: v} }
func BoolSlot(v bool) Slot      { return Slot{tag: TagBool, b: v} }
func StrSlot(v string) Slot     { return Slot{tag: TagStr, s: v} }
func KeySlot(v string) Slot     { return Slot{tag: TagKey, s: v} }
func FuncSlot(idx int) Slot     { return Slot{tag: TagFunc, i: int64(idx)} }
func VFuncSlot(idx int) Slot    { return Slot{tag: TagVFunc, i: int64(idx)} }
func CTypeSlot(id uint32) Slot  { return Slot{tag: TagCType, i: int64(id)} }
func ObjSlot(r *Record) Slot    { return Slot{tag: TagObj, obj: r} }
func SCCSlot(c *Closure) Slot   { return Slot{tag: TagSCC, closure: c} }
func BuiltinSlot(b Builtin) Slot {
	return Slot{tag: TagBuiltin, builtin: b}
}

func (s Slot) Tag() Tag { return s.tag }

func (s Slot) IsNil() bool  { return s.tag == TagNil }
func (s Slot) IsInt() bool  { return s.tag == TagInt }
func (s Slot) IsFloat() bool { return s.tag == TagFloat }
func (s Slot) IsBool() bool { return s.tag == TagBool }
func (s Slot) IsNumeric() bool {
	return s.tag == TagInt || s.tag == TagFloat
}

// AsInt returns the Int payload; callers must check Tag() first.
func (s Slot) AsInt() int64 { return s.i }

// AsFloat returns the Float payload.
func (s Slot) AsFloat() float64 { return s.f }

// AsBool returns the Bool payload.
func (s Slot) AsBool() bool { return s.b }

// AsStr returns the Str or Key payload.
func (s Slot) AsStr() string { return s.s }

// AsFuncIndex returns the Func/VFunc code or vtable index.
func (s Slot) AsFuncIndex() int { return int(s.i) }

// AsTypeID returns the CType payload.
func (s Slot) AsTypeID() uint32 { return uint32(s.i) }

// AsObj returns the Obj payload.
func (s Slot) AsObj() *Record { return s.obj }

// AsClosure returns the SCC payload.
func (s Slot) AsClosure() *Closure { return s.closure }

// AsBuiltin returns the Builtin payload.
func (s Slot) AsBuiltin() Builtin { return s.builtin }

// Clone returns a copy sharing no mutable state with s. The scalar
// variants copy trivially with the struct; Obj and SCC deep-copy their
// heap payloads, which is what makes Slot a value type rather than a
// reference wrapped in one.
func (s Slot) Clone() Slot {
	switch s.tag {
	case TagObj:
		if s.obj != nil {
			s.obj = s.obj.Clone()
		}
	case TagSCC:
		if s.closure != nil {
			s.closure = s.closure.Clone()
		}
	}
	return s
}

// Truthy implements the VM's truthiness rule: Nil and Bool(false) are
// false, everything else — including 0, 0.0, and the empty string — is
// true.
func (s Slot) Truthy() bool {
	switch s.tag {
	case TagNil:
		return false
	case TagBool:
		return s.b
	default:
		return true
	}
}

// NumericValue widens an Int/Float Slot to float64, for the arithmetic
// paths where both operands must share a type before combining.
func (s Slot) NumericValue() float64 {
	if s.tag == TagInt {
		return float64(s.i)
	}
	return s.f
}

// Equal implements the ISEQ/ISNEQ structural-equality fallback: numeric
// promotion when both sides are numeric, payload comparison for
// Nil/Bool/Str/Key, index equality for Func/VFunc/CType, recursive
// structural comparison for Obj/SCC (clone-on-copy makes pointer
// identity meaningless — two loads of the same slot yield distinct
// pointers), and false for anything involving a Builtin (Go function
// values are not comparable).
func (s Slot) Equal(other Slot) bool {
	if s.IsNumeric() && other.IsNumeric() {
		return s.NumericValue() == other.NumericValue()
	}
	if s.tag != other.tag {
		return false
	}
	switch s.tag {
	case TagNil:
		return true
	case TagBool:
		return s.b == other.b
	case TagStr, TagKey:
		return s.s == other.s
	case TagFunc, TagVFunc, TagCType:
		return s.i == other.i
	case TagObj:
		return s.obj.equalRecord(other.obj)
	case TagSCC:
		return s.closure.equalClosure(other.closure)
	default:
		return false
	}
}

func (r *Record) equalRecord(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.TypeID != other.TypeID || len(r.Fields) != len(other.Fields) {
		return false
	}
	for i := range r.Fields {
		if !r.Fields[i].Equal(other.Fields[i]) {
			return false
		}
	}
	return true
}

func (c *Closure) equalClosure(other *Closure) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.Entry != other.Entry || len(c.FreeVars) != len(other.FreeVars) {
		return false
	}
	for i := range c.FreeVars {
		if !c.FreeVars[i].Equal(other.FreeVars[i]) {
			return false
		}
	}
	return true
}

// String renders a Slot for diagnostics (error messages, disassembly,
// debug dumps) — not a source-language stringification, since that is
// the front-end compiler's concern.
func (s Slot) String() string {
	switch s.tag {
	case TagNil:
		return "nil"
	case TagInt:
		return fmt.Sprintf("%d", s.i)
	case TagFloat:
		return fmt.Sprintf("%g", s.f)
	case TagBool:
		return fmt.Sprintf("%t", s.b)
	case TagStr:
		return fmt.Sprintf("%q", s.s)
	case TagKey:
		return fmt.Sprintf(":%s", s.s)
	case TagFunc:
		return fmt.Sprintf("<func %d>", s.i)
	case TagVFunc:
		return fmt.Sprintf("<vfunc %d>", s.i)
	case TagObj:
		if s.obj == nil {
			return "<obj nil>"
		}
		return fmt.Sprintf("<obj type=%d fields=%d>", s.obj.TypeID, len(s.obj.Fields))
	case TagCType:
		return fmt.Sprintf("<type %d>", s.i)
	case TagSCC:
		if s.closure == nil {
			return "<closure nil>"
		}
		return fmt.Sprintf("<closure entry=%d free=%d>", s.closure.Entry, len(s.closure.FreeVars))
	case TagBuiltin:
		return "<builtin>"
	default:
		return "<unknown>"
	}
}
