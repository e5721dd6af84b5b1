// Package engine hosts WebAssembly guests on wazero and wires their
// function-pointer calls through the trampoline package.
//
// # Architecture
//
//	WazeroEngine - Owns the wazero runtime and the trampoline.call host module
//	Session      - One loaded guest with its negotiated binding
//
// # Guest Loading Flow
//
//  1. Parse the guest and index its indirect table
//  2. Rewrite the export section so the fallback can reach table entries
//  3. Instantiate trampoline.call (once per engine) and, if enabled, WASI
//  4. Instantiate the guest without running start functions
//  5. Negotiate the binding: denylist check, then one adapter build
//  6. Run start functions (_initialize by default)
//  7. Reserve success-flag cells through the guest's malloc
//
// The host module routes each trampoline.call to the session of the calling
// guest, so several guests can share one engine.
//
// # Calls
//
//	res, err := sess.Call(ctx, trampoline.Args(fn, a1, a2, a3))
//
// Session.Call picks a flag cell by nesting depth, carried in the context,
// so a host function may call back into the guest while an outer call is
// in flight.
//
// # Thread Safety
//
// WazeroEngine is safe for concurrent use. A Session is not: use
// Session.Dispatcher with per-goroutine flag cells instead.
//
// # Known Limitations
//
// Table slots populated at run time (table.set, table.grow) are not indexed
// and behave as empty slots. Memory64 guests always use the fallback.
package engine
