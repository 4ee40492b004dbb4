package vmcore

import "github.com/pkg/errors"

// Context is a saved (base, ip) pair — what CALL pushes and RET restores.
type Context struct {
	Base int
	IP   int
}

// ErrStackOverflow is the cause wrapped into a FatalError when the call
// stack exceeds its configured bound. The stack could grow without
// limit, but runaway recursion should fail with a diagnostic rather
// than exhaust the host, so CallStack takes the bound as a constructor
// argument.
var ErrStackOverflow = errors.New("call stack exhausted")

// CallStack is the ordered sequence of saved contexts pushed by CALL and
// popped by RET.
type CallStack struct {
	contexts []Context
	max      int
}

// NewCallStack creates a call stack bounded at max saved contexts.
func NewCallStack(max int) *CallStack {
	return &CallStack{max: max}
}

// Push saves a context, returning ErrStackOverflow if the configured
// bound would be exceeded.
func (s *CallStack) Push(c Context) error {
	if len(s.contexts) >= s.max {
		return errors.WithStack(ErrStackOverflow)
	}
	s.contexts = append(s.contexts, c)
	return nil
}

// Pop restores and removes the most recently pushed context. ok is false
// if the stack is empty; RET treats that as the top-level program
// returning from its implicit outermost frame.
func (s *CallStack) Pop() (c Context, ok bool) {
	n := len(s.contexts)
	if n == 0 {
		return Context{}, false
	}
	c = s.contexts[n-1]
	s.contexts = s.contexts[:n-1]
	return c, true
}

// Depth reports the number of currently saved contexts — equal to the
// number of CALLs minus matching RETs since program start.
func (s *CallStack) Depth() int {
	return len(s.contexts)
}
