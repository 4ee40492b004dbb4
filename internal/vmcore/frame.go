package vmcore

// MaxSlots is the preallocated slot-frame capacity. An embedder that
// needs deeper recursion than this affords would have to grow it or
// switch to a resizable backing store; fixed preallocation keeps
// indexing branch-free.
const MaxSlots = 64000

// SlotFrame is the windowed register file. All per-instruction slot
// indices are base-relative: slot index i resolves to absolute Base+i.
// The frame never grows storage on access; it is preallocated once.
type SlotFrame struct {
	Base int
	slot []Slot
}

// NewSlotFrame allocates a frame with MaxSlots backing storage, every
// slot defaulting to Nil.
func NewSlotFrame() *SlotFrame {
	return &SlotFrame{slot: make([]Slot, MaxSlots)}
}

// Load returns a clone of the base-relative slot at i. Record and
// closure payloads are deep-copied, so a loaded value never shares
// mutable state with the slot it came from; opcodes that mutate a
// record or closure (SETFIELD, UCLO) store the updated value back.
func (f *SlotFrame) Load(i int) Slot {
	return f.slot[f.Base+i].Clone()
}

// Store overwrites the base-relative slot at i.
func (f *SlotFrame) Store(i int, v Slot) {
	f.slot[f.Base+i] = v
}

// Clear resets base-relative slots [from, to] (inclusive) to Nil.
func (f *SlotFrame) Clear(from, to int) {
	for i := from; i <= to; i++ {
		f.slot[f.Base+i] = Slot{}
	}
}

// ClearAbsoluteToEnd resets every slot from the absolute index abs to the
// end of the backing storage — TRANC's semantics, which operate on
// absolute rather than base-relative indices.
func (f *SlotFrame) ClearAbsoluteToEnd(abs int) {
	for i := abs; i < len(f.slot); i++ {
		f.slot[i] = Slot{}
	}
}

// Slice returns clones of the base-relative range [from, to) — the same
// copy discipline as Load, applied to a run of slots.
func (f *SlotFrame) Slice(from, to int) []Slot {
	out := make([]Slot, to-from)
	for i := range out {
		out[i] = f.slot[f.Base+from+i].Clone()
	}
	return out
}

// Cap reports the total backing storage size, for diagnostics.
func (f *SlotFrame) Cap() int {
	return len(f.slot)
}
