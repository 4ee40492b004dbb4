package vmcore

import (
	"fmt"

	"github.com/pkg/errors"

	"slotvm/internal/bytecode"
)

// Kind classifies a VMError. LoadKind errors are reported before
// execution begins; FatalKind and HostKind both occur mid-execution,
// but only HostKind originates inside a builtin rather than the
// dispatch loop itself.
type Kind uint8

const (
	LoadKind Kind = iota
	FatalKind
	HostKind
)

func (k Kind) String() string {
	switch k {
	case LoadKind:
		return "LoadError"
	case FatalKind:
		return "FatalError"
	case HostKind:
		return "HostError"
	default:
		return "UnknownError"
	}
}

// VMError is the diagnostic the engine raises on any error kind. It
// names the opcode and instruction pointer in play, and, for runtime
// errors, the offending slot contents. The engine never recovers; the
// diagnostic is all a program gets.
type VMError struct {
	Kind    Kind
	Op      bytecode.OpCode
	IP      int
	Message string
	Slots   []Slot
	cause   error
}

func (e *VMError) Error() string {
	msg := fmt.Sprintf("%s: %s (op=%s ip=%d)", e.Kind, e.Message, e.Op, e.IP)
	for _, s := range e.Slots {
		msg += fmt.Sprintf(" slot=%s", s)
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/errors.As.
func (e *VMError) Unwrap() error {
	return e.cause
}

// fatalf builds a FatalKind VMError naming the current opcode, ip, and
// the slots implicated in the violation.
func fatalf(op bytecode.OpCode, ip int, format string, slots []Slot, args ...interface{}) *VMError {
	return &VMError{
		Kind:    FatalKind,
		Op:      op,
		IP:      ip,
		Message: fmt.Sprintf(format, args...),
		Slots:   slots,
	}
}

// loadErrorf builds a LoadKind VMError — an image inconsistency
// discovered before or during execution start.
func loadErrorf(format string, args ...interface{}) *VMError {
	return &VMError{Kind: LoadKind, Message: fmt.Sprintf(format, args...)}
}

// hostErrorf wraps an error raised inside a host builtin. The VM does
// not attempt recovery, only attribution (which call site, at which ip).
func hostErrorf(op bytecode.OpCode, ip int, cause error) *VMError {
	return &VMError{
		Kind:    HostKind,
		Op:      op,
		IP:      ip,
		Message: "host builtin returned an error",
		cause:   errors.WithStack(cause),
	}
}
