package vmcore

// Binding is a top-level value plus its dynamic-rebinding flag. The flag
// is carried but not enforced here — dynamic-scope semantics are the
// compiler's concern.
type Binding struct {
	Val     Slot
	Dynamic bool
}

// SymbolTable is the global namespace: String -> Binding, keys unique.
// Reads are non-blocking and writes are non-transactional, since the VM
// is strictly single-threaded.
type SymbolTable struct {
	table map[string]Binding
}

// NewSymbolTable creates an empty global symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{table: make(map[string]Binding)}
}

// Insert binds name to b, replacing any prior binding.
func (t *SymbolTable) Insert(name string, b Binding) {
	t.table[name] = b
}

// Lookup returns the binding for name, or ok=false if unbound. NSGETS
// treats a miss as fatal; Lookup itself just reports it.
func (t *SymbolTable) Lookup(name string) (Binding, bool) {
	b, ok := t.table[name]
	return b, ok
}
