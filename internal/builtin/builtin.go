// Package builtin installs the host functions available to compiled
// programs. The surface is deliberately minimal — no I/O library, no
// collections, no runtime reflection — just enough for a program image
// to observe its own output.
package builtin

import (
	"fmt"
	"io"

	"slotvm/internal/vmcore"
)

// Install registers the host builtins into globals, bound under the
// symbol "println" per the embedder contract: a one-argument builtin that
// writes its argument's diagnostic rendering to w and returns Nil.
func Install(globals *vmcore.SymbolTable, w io.Writer) {
	globals.Insert("println", vmcore.Binding{
		Val: vmcore.BuiltinSlot(printlnBuiltin(w)),
	})
}

// printlnBuiltin reads its sole argument from base-relative slot 2
// (slot 0 is the return value, slot 1 the callee itself) and leaves Nil
// in slot 0.
func printlnBuiltin(w io.Writer) vmcore.Builtin {
	return func(vm *vmcore.VM) error {
		arg := vm.Frame.Load(2)
		if _, err := fmt.Fprintln(w, arg.String()); err != nil {
			return err
		}
		vm.Frame.Store(0, vmcore.NilSlot())
		return nil
	}
}
