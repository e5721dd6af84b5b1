package trampoline

import (
	"sync/atomic"
)

// State is a binding's resolution state.
type State int32

const (
	StateUnresolved State = iota
	StateResolving
	StateResolvedCompiled
	StateResolvedFallback
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateResolving:
		return "resolving"
	case StateResolvedCompiled:
		return "resolved-compiled"
	case StateResolvedFallback:
		return "resolved-fallback"
	default:
		return "unknown"
	}
}

// Resolved reports whether the state is terminal.
func (s State) Resolved() bool {
	return s == StateResolvedCompiled || s == StateResolvedFallback
}

// Binding holds the active strategy for one guest. It starts on the fallback
// and is resolved at most once; reads never block.
type Binding struct {
	current  atomic.Pointer[boundStrategy]
	fallback Strategy
	state    atomic.Int32
}

// atomic.Pointer needs a concrete type
type boundStrategy struct {
	s Strategy
}

// NewBinding creates an unresolved binding that dispatches to fallback.
func NewBinding(fallback Strategy) *Binding {
	b := &Binding{fallback: fallback}
	b.current.Store(&boundStrategy{s: fallback})
	return b
}

// Strategy returns the strategy calls go through right now.
func (b *Binding) Strategy() Strategy {
	return b.current.Load().s
}

// Fallback returns the default strategy.
func (b *Binding) Fallback() Strategy {
	return b.fallback
}

// State returns the resolution state.
func (b *Binding) State() State {
	return State(b.state.Load())
}

// Begin moves the binding from unresolved to resolving. Only the first
// caller succeeds; later callers get ErrAlreadyResolved.
func (b *Binding) Begin() error {
	if !b.state.CompareAndSwap(int32(StateUnresolved), int32(StateResolving)) {
		return ErrAlreadyResolved
	}
	return nil
}

// Resolve publishes the final strategy. A nil strategy keeps the fallback.
// It must follow a successful Begin.
func (b *Binding) Resolve(s Strategy) error {
	final := StateResolvedFallback
	if s == nil {
		s = b.fallback
	}
	if s.Kind() == KindCompiled {
		final = StateResolvedCompiled
	}
	if !b.state.CompareAndSwap(int32(StateResolving), int32(final)) {
		return ErrAlreadyResolved
	}
	b.current.Store(&boundStrategy{s: s})
	return nil
}
