// Package guesttest builds small guest modules for tests.
//
// The guest exports a one-page memory, a 16-entry funcref table and a bump
// allocator. Its table holds one function per call shape:
//
//	slot 0  empty
//	slot 1  add2(a, b)          = a + b
//	slot 2  sum3(a, b, c)       = a*100 + b*10 + c
//	slot 3  zero()              = 42
//	slot 4  one(a)              = a + 1
//	slot 5  four(a, b, c, d)    writes 1 to MarkerAddr, returns a
//	slot 6  wide(i64)           = 7
//	slot 7  void(i32)
//	slot 8  trap(a, b)          unreachable
//	slot 9  nest(fn, a, b)      calls trampoline.call(NestFlagAddr, fn, a, b, 0)
//
// Slot 9 exists only with Options.Nest.
//
// With Options.Swap the guest also exports swap_sub, which stores sub2(a, b)
// = a - b into slot 1, and swap_four, which stores four into slot 1.
package guesttest

import (
	"github.com/wippyai/wasm-trampoline/wasm"
)

// Table slots.
const (
	SlotEmpty uint32 = iota
	SlotAdd2
	SlotSum3
	SlotZero
	SlotOne
	SlotFour
	SlotWide
	SlotVoid
	SlotTrap
	SlotNest
)

// Memory addresses the guest writes.
const (
	MarkerAddr      uint32 = 0x100 // set by four
	InitializedAddr uint32 = 0x104 // set by _initialize
	NestFlagAddr    uint32 = 0x200 // success flag used by nest
	HeapBase        uint32 = 4096
)

// TableSize is the guest table's minimum size.
const TableSize = 16

// Options adjust the generated guest.
type Options struct {
	// Nest imports trampoline.call and adds the nest function at SlotNest.
	Nest bool
	// NoMemoryExport hides the memory, which breaks the compiled adapter.
	NoMemoryExport bool
	// NoMalloc omits the malloc export.
	NoMalloc bool
	// NoInitialize omits the _initialize export.
	NoInitialize bool
	// Swap adds the table-writing exports swap_sub and swap_four.
	Swap bool
}

const (
	tAdd2 uint32 = iota
	tSum3
	tZero
	tOne
	tFour
	tWide
	tVoid
	tHost
	tInit
)

// Build encodes the guest module.
func Build(opts Options) []byte {
	i32, i64 := wasm.ValI32, wasm.ValI64
	vt := func(v ...wasm.ValType) []wasm.ValType { return v }

	m := &wasm.Module{
		Types: []wasm.FuncType{
			tAdd2: {Params: vt(i32, i32), Results: vt(i32)},
			tSum3: {Params: vt(i32, i32, i32), Results: vt(i32)},
			tZero: {Results: vt(i32)},
			tOne:  {Params: vt(i32), Results: vt(i32)},
			tFour: {Params: vt(i32, i32, i32, i32), Results: vt(i32)},
			tWide: {Params: vt(i64), Results: vt(i32)},
			tVoid: {Params: vt(i32)},
			tHost: {Params: vt(i32, i32, i32, i32, i32), Results: vt(i32)},
			tInit: {},
		},
		Tables:   []wasm.TableType{{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: TableSize}}},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Globals: []wasm.Global{{
			Type: wasm.GlobalType{ValType: i32, Mutable: true},
			Init: wasm.I32ConstExpr(int32(HeapBase)),
		}},
	}

	var base uint32
	if opts.Nest {
		m.Imports = []wasm.Import{{
			Module: "trampoline",
			Name:   "call",
			Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: tHost},
		}}
		base = 1
	}

	define := func(typeIdx uint32, code *wasm.Expr) uint32 {
		m.Funcs = append(m.Funcs, typeIdx)
		m.Code = append(m.Code, wasm.Body(nil, code))
		return base + uint32(len(m.Funcs)-1)
	}
	export := func(name string, kind byte, idx uint32) {
		m.Exports = append(m.Exports, wasm.Export{Name: name, Kind: kind, Idx: idx})
	}

	add2 := define(tAdd2, wasm.NewExpr().LocalGet(0).LocalGet(1).I32Add().End())
	sum3 := define(tSum3, wasm.NewExpr().
		LocalGet(0).I32Const(100).I32Mul().
		LocalGet(1).I32Const(10).I32Mul().I32Add().
		LocalGet(2).I32Add().End())
	zero := define(tZero, wasm.NewExpr().I32Const(42).End())
	one := define(tOne, wasm.NewExpr().LocalGet(0).I32Const(1).I32Add().End())
	four := define(tFour, wasm.NewExpr().
		I32Const(int32(MarkerAddr)).I32Const(1).I32Store(0).
		LocalGet(0).End())
	wide := define(tWide, wasm.NewExpr().I32Const(7).End())
	void := define(tVoid, wasm.NewExpr().End())
	trap := define(tAdd2, wasm.NewExpr().Unreachable().End())

	// malloc(n): bump allocate n bytes rounded up to 4
	malloc := define(tOne, wasm.NewExpr().
		GlobalGet(0).
		GlobalGet(0).
		LocalGet(0).I32Const(3).I32Add().I32Const(-4).I32And().
		I32Add().
		GlobalSet(0).
		End())
	initialize := define(tInit, wasm.NewExpr().
		I32Const(int32(InitializedAddr)).I32Const(1).I32Store(0).End())

	table := []uint32{add2, sum3, zero, one, four, wide, void, trap}

	if opts.Nest {
		nest := define(tSum3, wasm.NewExpr().
			I32Const(int32(NestFlagAddr)).I32Const(1).I32Store(0).
			I32Const(int32(NestFlagAddr)).
			LocalGet(0).LocalGet(1).LocalGet(2).I32Const(0).
			Call(0).
			End())
		table = append(table, nest)
		export("nest", wasm.KindFunc, nest)
	}

	m.Elements = []wasm.Element{{Offset: wasm.I32ConstExpr(int32(SlotAdd2)), FuncIdxs: table}}

	if opts.Swap {
		sub2 := define(tAdd2, wasm.NewExpr().LocalGet(0).LocalGet(1).I32Sub().End())
		swapSub := define(tInit, wasm.NewExpr().
			I32Const(int32(SlotAdd2)).RefFunc(sub2).TableSet(0).End())
		swapFour := define(tInit, wasm.NewExpr().
			I32Const(int32(SlotAdd2)).RefFunc(four).TableSet(0).End())
		// ref.func in code needs a declared reference
		m.Elements = append(m.Elements, wasm.Element{Flags: 3, FuncIdxs: []uint32{sub2}})
		export("swap_sub", wasm.KindFunc, swapSub)
		export("swap_four", wasm.KindFunc, swapFour)
	}

	export("__indirect_function_table", wasm.KindTable, 0)
	if !opts.NoMemoryExport {
		export("memory", wasm.KindMemory, 0)
	}
	if !opts.NoMalloc {
		export("malloc", wasm.KindFunc, malloc)
	}
	if !opts.NoInitialize {
		export("_initialize", wasm.KindFunc, initialize)
	}
	export("add2", wasm.KindFunc, add2)

	return m.Encode()
}
