package trampoline

import (
	"github.com/wippyai/wasm-trampoline/errors"
)

// MaxArity is the number of arguments every call carries. Targets may
// declare fewer; targets declaring more are rejected.
const MaxArity = 3

// CallArguments is a call through the indirect table: a slot index and
// exactly three opaque wasm32 values (typically guest pointers).
type CallArguments struct {
	Target uint32
	Arg1   uint32
	Arg2   uint32
	Arg3   uint32
}

// Args builds CallArguments for target.
func Args(target, a1, a2, a3 uint32) CallArguments {
	return CallArguments{Target: target, Arg1: a1, Arg2: a2, Arg3: a3}
}

// params returns the first n arguments as raw wasm values.
func (a CallArguments) params(n int) []uint64 {
	all := [MaxArity]uint64{uint64(a.Arg1), uint64(a.Arg2), uint64(a.Arg3)}
	return all[:n]
}

var (
	// ErrUnsupportedSignature is returned when the target declares more
	// parameters than a call carries. The call has no effect.
	ErrUnsupportedSignature = errors.New(errors.PhaseDispatch, errors.KindUnsupportedSignature).
				Detail("handler takes too many arguments").
				Build()

	// ErrHostFault matches faults raised by the host's invocation mechanism,
	// such as empty slots, signature mismatches and traps in the target.
	ErrHostFault = errors.New(errors.PhaseDispatch, errors.KindHostFault).Build()

	// ErrInvalidTable matches element segments that do not fit the table
	// they initialize.
	ErrInvalidTable = errors.New(errors.PhaseLoad, errors.KindInvalidData).Build()

	// ErrAlreadyResolved is returned when negotiation runs a second time.
	ErrAlreadyResolved = errors.New(errors.PhaseNegotiate, errors.KindAlreadyResolved).
				Detail("binding is resolved once per guest").
				Build()
)

func unsupportedSignature(target uint32) error {
	return errors.New(errors.PhaseDispatch, errors.KindUnsupportedSignature).
		Target(target).
		Detail("handler takes too many arguments").
		Build()
}
