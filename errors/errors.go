package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad      Phase = "load"      // guest parsing and instantiation
	PhaseNegotiate Phase = "negotiate" // start-up strategy selection
	PhaseBuild     Phase = "build"     // compiled adapter construction
	PhaseDispatch  Phase = "dispatch"  // per-call invocation
	PhaseConfig    Phase = "config"    // configuration and rule files
)

// Kind categorizes the error
type Kind string

const (
	KindUnsupportedSignature Kind = "unsupported_signature"
	KindHostFault            Kind = "host_fault"
	KindMissingExport        Kind = "missing_export"
	KindInstantiation        Kind = "instantiation"
	KindAlreadyResolved      Kind = "already_resolved"
	KindInvalidInput         Kind = "invalid_input"
	KindInvalidData          Kind = "invalid_data"
	KindNotFound             Kind = "not_found"
	KindNotInitialized       Kind = "not_initialized"
	KindOutOfBounds          Kind = "out_of_bounds"
	KindUnsupported          Kind = "unsupported"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Export string
	Detail string
	Target *uint32
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Target != nil {
		fmt.Fprintf(&b, " at table slot %d", *e.Target)
	}
	if e.Export != "" {
		fmt.Fprintf(&b, " (export %q)", e.Export)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Is forwards to the standard library so callers importing this package
// under the name errors keep errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As forwards to the standard library errors.As.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Target sets the indirect table slot involved
func (b *Builder) Target(slot uint32) *Builder {
	b.err.Target = &slot
	return b
}

// Export sets the export name involved
func (b *Builder) Export(name string) *Builder {
	b.err.Export = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// HostFault wraps a failure raised by the host's own invocation mechanism
func HostFault(slot uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindHostFault,
		Target: &slot,
		Cause:  cause,
	}
}

// MissingExport creates a missing export error
func MissingExport(phase Phase, name, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMissingExport,
		Export: name,
		Detail: what + " not exported",
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, what string, offset, limit uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("%s at offset %d out of bounds (limit %d)", what, offset, limit),
		Value:  offset,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Load wraps a guest loading failure
func Load(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: what,
		Cause:  cause,
	}
}

// Config wraps a configuration failure
func Config(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidData,
		Detail: what,
		Cause:  cause,
	}
}
