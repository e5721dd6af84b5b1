package trampoline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental/table"

	"github.com/wippyai/wasm-trampoline/errors"
	"github.com/wippyai/wasm-trampoline/wasm"
)

// FallbackExportPrefix prefixes the synthetic exports the fallback calls
// through. The guest binary is rewritten to export every table-referenced
// function under FallbackExport(funcIdx).
const FallbackExportPrefix = "__trampoline_fn_"

// FallbackExport returns the synthetic export name of a guest function.
func FallbackExport(funcIdx uint32) string {
	return FallbackExportPrefix + strconv.FormatUint(uint64(funcIdx), 10)
}

// ParseFallbackExport is the inverse of FallbackExport.
func ParseFallbackExport(name string) (uint32, bool) {
	rest, ok := strings.CutPrefix(name, FallbackExportPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// FallbackExports lists the exports the fallback needs for the indexed slots.
func FallbackExports(slots *SlotIndex) []wasm.Export {
	funcs := slots.Funcs()
	out := make([]wasm.Export, len(funcs))
	for i, fn := range funcs {
		out[i] = wasm.Export{Name: FallbackExport(fn), Kind: wasm.KindFunc, Idx: fn}
	}
	return out
}

// Fallback calls table entries through wazero's generic call path. It needs
// no feature beyond plain function exports and is the binding's default.
type Fallback struct {
	slots *SlotIndex
}

// NewFallback creates a fallback strategy over the given slots.
func NewFallback(slots *SlotIndex) *Fallback {
	if slots == nil {
		slots = &SlotIndex{}
	}
	return &Fallback{slots: slots}
}

func (f *Fallback) Kind() StrategyKind { return KindFallback }

// Invoke looks up the slot and calls the function behind it with as many
// arguments as it declares.
func (f *Fallback) Invoke(ctx context.Context, mod api.Module, flag uint32, args CallArguments) (uint32, error) {
	slot := f.slots.Lookup(args.Target)

	switch slot.Class {
	case ClassTooMany:
		if mem := mod.Memory(); mem == nil || !mem.WriteUint32Le(flag, 0) {
			return 0, flagOutOfBounds(mod, flag)
		}
		return 0, nil
	case ClassCallable:
	case ClassEmpty:
		return 0, hostFault(args.Target, "table slot is empty", nil)
	default:
		return 0, hostFault(args.Target, fmt.Sprintf("function %d has an incompatible signature", slot.Func), nil)
	}

	fn, err := f.lookup(mod, args.Target, slot)
	if err != nil {
		return 0, err
	}

	results, err := fn.Call(ctx, args.params(slot.Params)...)
	if err != nil {
		return 0, hostFault(args.Target, "", err)
	}
	return api.DecodeU32(results[0]), nil
}

// lookup finds the function behind a callable slot. Static tables use the
// synthetic export; dynamic tables read the live entry, which must still have
// the slot's static signature, as call_indirect in the adapter requires.
func (f *Fallback) lookup(mod api.Module, target uint32, slot Slot) (fn api.Function, err error) {
	if !f.slots.Dynamic() {
		name := FallbackExport(slot.Func)
		if fn = mod.ExportedFunction(name); fn == nil {
			return nil, errors.New(errors.PhaseDispatch, errors.KindHostFault).
				Target(target).
				Export(name).
				Detail("guest was not prepared for fallback calls").
				Build()
		}
		return fn, nil
	}

	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			fn, err = nil, hostFault(target, "", cause)
		}
	}()
	params := make([]api.ValueType, slot.Params)
	for i := range params {
		params[i] = api.ValueTypeI32
	}
	return table.LookupFunction(mod, f.slots.Table(), target, params, []api.ValueType{api.ValueTypeI32}), nil
}

func hostFault(target uint32, detail string, cause error) error {
	e := errors.HostFault(target, cause)
	e.Detail = detail
	return e
}

func flagOutOfBounds(mod api.Module, flag uint32) error {
	var size uint32
	if mem := mod.Memory(); mem != nil {
		size = mem.Size()
	}
	return errors.OutOfBounds(errors.PhaseDispatch, "success flag", flag, size)
}
