// Package trampoline calls guest function pointers from a wazero host.
//
// A function pointer in a wasm32 guest is an index into the guest's
// indirect function table. Calls carry the target and exactly three i32
// arguments (CallArguments). Targets that declare fewer parameters receive
// the leading ones; targets that declare more are never called. Instead the
// success flag, a 32-bit word in guest memory, is cleared and the Dispatcher
// reports ErrUnsupportedSignature.
//
// Two strategies implement the call:
//
//   - Compiled: an adapter module synthesized per guest (AdapterModule) that
//     imports the guest's table and memory and dispatches with
//     call_indirect.
//   - Fallback: wazero's generic call path against synthetic exports added
//     to the guest binary (FallbackExport).
//
// A Binding starts on the fallback and is resolved once by Negotiate, which
// consults a hostid.Denylist before attempting to build the adapter. Build
// failures are logged and leave the fallback in place.
//
//	binding := trampoline.NewBinding(trampoline.NewFallback(slots))
//	outcome, err := trampoline.Negotiate(ctx, binding, trampoline.Negotiation{
//	    Identity: hostid.Current(),
//	    Denylist: hostid.DefaultDenylist(),
//	    Build:    build,
//	})
//	d := trampoline.NewDispatcher(binding)
//	result, err := d.Call(ctx, guest, flagAddr, trampoline.Args(fn, a, b, c))
//
// Only slots populated by active element segments with constant offsets are
// known. Entries written at run time are treated as empty by both
// strategies.
package trampoline
