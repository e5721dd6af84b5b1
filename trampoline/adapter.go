package trampoline

import (
	"github.com/wippyai/wasm-trampoline/wasm"
)

// ExportTrampoline is the adapter's single export:
// (success_ptr, fn, a1, a2, a3) -> i32.
const ExportTrampoline = "trampoline_call"

// AdapterConfig names the guest items the adapter imports.
type AdapterConfig struct {
	Slots        *SlotIndex
	GuestModule  string
	TableExport  string
	MemoryExport string
	Memory       wasm.MemoryType
}

// adapter type indices
const (
	typeTrampoline uint32 = iota // (i32 i32 i32 i32 i32) -> i32
	typeArity0                   // () -> i32
)

// block depths from inside the innermost block; arity n branches to n
const (
	labelTooMany uint32 = MaxArity + 1
	labelFault   uint32 = MaxArity + 2
)

// AdapterModule synthesizes the call adapter for a guest.
//
// The adapter imports the guest's table and memory. Its body dispatches on
// the slot's static class with br_table: arity 0 to 3 land on a call_indirect
// with that signature, too-many-args slots clear the success flag and return
// 0, and every other slot traps.
func AdapterModule(cfg AdapterConfig) []byte {
	i32 := wasm.ValI32
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{i32, i32, i32, i32, i32}, Results: []wasm.ValType{i32}},
			{Results: []wasm.ValType{i32}},
			{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}},
			{Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}},
			{Params: []wasm.ValType{i32, i32, i32}, Results: []wasm.ValType{i32}},
		},
		Funcs:   []uint32{typeTrampoline},
		Exports: []wasm.Export{{Name: ExportTrampoline, Kind: wasm.KindFunc, Idx: 0}},
	}

	mem := cfg.Memory
	mem.Limits.Min = 0
	m.Imports = []wasm.Import{
		{
			Module: cfg.GuestModule,
			Name:   cfg.TableExport,
			Desc: wasm.ImportDesc{
				Kind:  wasm.KindTable,
				Table: &wasm.TableType{ElemType: wasm.ValFuncRef},
			},
		},
		{
			Module: cfg.GuestModule,
			Name:   cfg.MemoryExport,
			Desc:   wasm.ImportDesc{Kind: wasm.KindMemory, Memory: &mem},
		},
	}

	m.Code = []wasm.FuncBody{wasm.Body(nil, adapterCode(cfg.Slots))}
	return m.Encode()
}

// Locals: 0 success_ptr, 1 fn, 2 a1, 3 a2, 4 a3.
func adapterCode(slots *SlotIndex) *wasm.Expr {
	var labels []uint32
	if slots != nil {
		labels = make([]uint32, slots.Len())
		for i := range labels {
			labels[i] = slotLabel(slots.Lookup(uint32(i)))
		}
	}

	e := wasm.NewExpr()
	// $fault, $tooMany, then one block per arity, innermost first
	for i := uint32(0); i < labelFault+1; i++ {
		e.Block()
	}
	e.LocalGet(1).BrTable(labels, labelFault)

	for arity := uint32(0); arity <= MaxArity; arity++ {
		e.End()
		for a := uint32(0); a < arity; a++ {
			e.LocalGet(2 + a)
		}
		e.LocalGet(1).CallIndirect(typeArity0+arity, 0).Return()
	}

	e.End() // $tooMany
	e.LocalGet(0).I32Const(0).I32Store(0)
	e.I32Const(0).Return()

	e.End() // $fault
	e.Unreachable()
	return e.End()
}

func slotLabel(s Slot) uint32 {
	switch s.Class {
	case ClassCallable:
		return uint32(s.Params)
	case ClassTooMany:
		return labelTooMany
	default:
		return labelFault
	}
}
