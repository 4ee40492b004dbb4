package vmcore

// Field describes one named field of a record type.
type Field struct {
	Name    string
	Offset  int
	Mutable bool
}

// TypeDescriptor describes a record type: its name, its stable
// identifier (Nr), its field count (Size), and the field table.
// Nr is the identifier threaded through CType slots, Obj.TypeID, and the
// virtual dispatch table — it is not necessarily the type's position in
// the constant pool, since a compiler is free to assign ids however it
// likes.
type TypeDescriptor struct {
	Name   string
	Nr     uint32
	Size   int
	Fields []Field
}

// Alloc instantiates a Record of this type with every field set to Nil.
func (t *TypeDescriptor) Alloc() *Record {
	fields := make([]Slot, t.Size)
	for i := range fields {
		fields[i] = NilSlot()
	}
	return &Record{TypeID: t.Nr, Fields: fields}
}

// ConstPool holds the four indexed immutable primitive tables plus the
// type table, all populated once at load and never mutated afterward.
type ConstPool struct {
	Ints   []int64
	Floats []float64
	Strs   []string
	Keys   []string
	Types  []TypeDescriptor

	typeIndex map[uint32]*TypeDescriptor
}

// TypeByNr returns the type descriptor with the given stable id, building
// a lookup index lazily on first use.
func (c *ConstPool) TypeByNr(nr uint32) (*TypeDescriptor, bool) {
	if c.typeIndex == nil {
		c.typeIndex = make(map[uint32]*TypeDescriptor, len(c.Types))
		for i := range c.Types {
			c.typeIndex[c.Types[i].Nr] = &c.Types[i]
		}
	}
	t, ok := c.typeIndex[nr]
	return t, ok
}
