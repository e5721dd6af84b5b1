// Package wasm reads and writes the parts of the WebAssembly core binary
// format needed to reason about, and call through, a module's indirect
// function table.
//
// # Parsing
//
//	module, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ft := module.FuncType(idx)
//
// Types, imports, functions, tables, memories, globals, exports and element
// segments are decoded structurally. Function bodies and data segments are
// kept as raw bytes so a decoded module re-encodes without loss.
//
// Only the function type form (0x60) is accepted in the type section; GC
// type definitions are rejected with ErrUnsupported.
//
// # Encoding
//
// Modules built in memory are encoded with Encode. Function bodies are
// written with Expr:
//
//	code := wasm.NewExpr().
//	    LocalGet(0).
//	    LocalGet(1).
//	    I32Add().
//	    End()
//	body := wasm.Body(nil, code)
//
// # Rewriting
//
// AddExports splices new entries into an existing binary's export section
// without decoding or re-encoding any other section.
package wasm
