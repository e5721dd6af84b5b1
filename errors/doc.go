// Package errors provides structured error types for the wasm-trampoline library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries the table slot or export involved and a
// cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDispatch, errors.KindUnsupportedSignature).
//		Target(7).
//		Detail("handler takes too many arguments").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.HostFault(7, cause)
//	err := errors.MissingExport(errors.PhaseBuild, "memory", "linear memory")
//
// Two errors match under errors.Is when Phase and Kind agree, so sentinel
// values built without a target or cause match every instance of their kind.
package errors
