// Package wasmtrampoline calls function pointers inside WebAssembly guests
// from Go, on hosts where the guest's indirect table cannot be called
// directly.
//
// # Architecture Overview
//
//	wasmtrampoline/      Root package with Memory and Allocator interfaces
//	├── engine/          wazero integration: guest loading, sessions, WASI
//	├── trampoline/      Strategies, binding negotiation and the dispatcher
//	├── hostid/          Host identification and the adapter denylist
//	├── wasm/            Core WASM binary decoding, encoding and rewriting
//	├── errors/          Structured error types
//	└── cmd/trampctl/    Command line tool for loading and calling guests
//
// # Quick Start
//
//	eng, err := engine.NewWazeroEngine(ctx)
//	if err != nil {
//	    return err
//	}
//	defer eng.Close(ctx)
//
//	sess, err := eng.LoadGuest(ctx, wasmBytes, engine.GuestConfig{})
//	if err != nil {
//	    return err
//	}
//	result, err := sess.Call(ctx, trampoline.Args(fnPtr, a, b, c))
//	if errors.Is(err, trampoline.ErrUnsupportedSignature) {
//	    // the target takes more than three arguments
//	}
//
// Calls carry exactly three i32 arguments. The guest may also call back
// through the host import trampoline.call(success_ptr, fn, a1, a2, a3).
//
// # Strategies
//
// At load time each guest negotiates once between a compiled adapter module
// and a fallback that uses wazero's generic call path. Hosts matched by the
// hostid denylist never build the adapter; a failed build is logged and the
// fallback stays in place.
package wasmtrampoline
