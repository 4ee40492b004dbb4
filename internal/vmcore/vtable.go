package vmcore

// VTable is the virtual dispatch table: (vfunc_id, type_id) -> code_index.
// It is total over the pairs the compiler's image populates; a miss is a
// fatal program error. The two-level vfunc->type->entry mapping is
// flattened into a single map keyed on the pair, which keeps lookup
// O(1) expected without an extra map indirection per call.
type VTable struct {
	table map[vfuncKey]int
}

type vfuncKey struct {
	vfunc uint32
	typ   uint32
}

// NewVTable creates an empty virtual dispatch table.
func NewVTable() *VTable {
	return &VTable{table: make(map[vfuncKey]int)}
}

// Register binds (vfunc, typ) to the entry instruction codeIndex.
func (vt *VTable) Register(vfunc, typ uint32, codeIndex int) {
	vt.table[vfuncKey{vfunc, typ}] = codeIndex
}

// Resolve looks up the code index for (vfunc, typ). ok is false on a
// miss, which CALL treats as fatal.
func (vt *VTable) Resolve(vfunc, typ uint32) (int, bool) {
	idx, ok := vt.table[vfuncKey{vfunc, typ}]
	return idx, ok
}
