package trampoline

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-trampoline/errors"
	"github.com/wippyai/wasm-trampoline/wasm"
)

// AdapterName is the module name the adapter for guest is instantiated under.
func AdapterName(guest string) string {
	return guest + ".trampoline"
}

// Default guest export names.
const (
	DefaultTableExport  = "__indirect_function_table"
	DefaultMemoryExport = "memory"
)

// Builder constructs the compiled strategy for one guest instance.
type Builder struct {
	Runtime wazero.Runtime
	// Module is the parsed guest binary.
	Module *wasm.Module
	Slots  *SlotIndex
	// TableExport and MemoryExport default to DefaultTableExport and
	// DefaultMemoryExport.
	TableExport  string
	MemoryExport string
}

// Build synthesizes the adapter for guest, then compiles and instantiates it
// against the guest's table and memory. Any failure is a build failure; the
// caller keeps the fallback.
func (b *Builder) Build(ctx context.Context, guest api.Module) (*Compiled, error) {
	tableName := b.TableExport
	if tableName == "" {
		tableName = DefaultTableExport
	}
	memName := b.MemoryExport
	if memName == "" {
		memName = DefaultMemoryExport
	}

	if b.Runtime == nil || b.Module == nil || guest == nil {
		return nil, errors.InvalidInput(errors.PhaseBuild, "builder needs a runtime, a parsed module and a guest instance")
	}

	tableExp, ok := b.Module.FindExport(tableName, wasm.KindTable)
	if !ok {
		return nil, errors.MissingExport(errors.PhaseBuild, tableName, "indirect function table")
	}
	if tt := b.Module.TableType(tableExp.Idx); tt == nil || tt.ElemType != wasm.ValFuncRef {
		return nil, errors.Unsupported(errors.PhaseBuild, "indirect table does not hold funcref entries")
	}

	memExp, ok := b.Module.FindExport(memName, wasm.KindMemory)
	if !ok {
		return nil, errors.MissingExport(errors.PhaseBuild, memName, "linear memory")
	}
	memType := memoryType(b.Module, memExp.Idx)
	if memType == nil {
		return nil, errors.InvalidInput(errors.PhaseBuild, "memory export refers to a missing memory")
	}
	if memType.Limits.Memory64 {
		return nil, errors.Unsupported(errors.PhaseBuild, "64-bit linear memory")
	}

	slots := b.Slots
	if slots == nil {
		var err error
		if slots, err = IndexTable(b.Module, tableExp.Idx); err != nil {
			return nil, errors.New(errors.PhaseBuild, errors.KindInvalidData).
				Detail("index table").
				Cause(err).
				Build()
		}
	}

	bin := AdapterModule(AdapterConfig{
		Slots:        slots,
		GuestModule:  guest.Name(),
		TableExport:  tableName,
		MemoryExport: memName,
		Memory:       *memType,
	})

	compiled, err := b.Runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.New(errors.PhaseBuild, errors.KindInstantiation).
			Detail("compile adapter").
			Cause(err).
			Build()
	}

	name := AdapterName(guest.Name())
	mod, err := b.Runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.New(errors.PhaseBuild, errors.KindInstantiation).
			Detail("instantiate adapter").
			Cause(err).
			Build()
	}
	if mod.ExportedFunction(ExportTrampoline) == nil {
		_ = mod.Close(ctx)
		_ = compiled.Close(ctx)
		return nil, errors.MissingExport(errors.PhaseBuild, ExportTrampoline, "adapter entry point")
	}

	Logger().Debug("adapter instantiated",
		zap.String("module", name),
		zap.Uint32("slots", slots.Len()),
		zap.Int("bytes", len(bin)))

	return &Compiled{mod: mod, compiled: compiled}, nil
}

func memoryType(m *wasm.Module, idx uint32) *wasm.MemoryType {
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindMemory {
			continue
		}
		if idx == 0 {
			return imp.Desc.Memory
		}
		idx--
	}
	if int(idx) >= len(m.Memories) {
		return nil
	}
	return &m.Memories[idx]
}

// Compiled calls through an instantiated adapter. The adapter shares the
// guest's table and memory, so the module passed to Invoke is not consulted.
type Compiled struct {
	mod      api.Module
	compiled wazero.CompiledModule
}

func (c *Compiled) Kind() StrategyKind { return KindCompiled }

// Invoke calls the adapter export. The function handle is fetched per call
// since api.Function is not safe for concurrent use.
func (c *Compiled) Invoke(ctx context.Context, _ api.Module, flag uint32, args CallArguments) (uint32, error) {
	fn := c.mod.ExportedFunction(ExportTrampoline)
	results, err := fn.Call(ctx,
		api.EncodeU32(flag),
		api.EncodeU32(args.Target),
		api.EncodeU32(args.Arg1),
		api.EncodeU32(args.Arg2),
		api.EncodeU32(args.Arg3))
	if err != nil {
		return 0, hostFault(args.Target, "", err)
	}
	return api.DecodeU32(results[0]), nil
}

// Module returns the adapter instance.
func (c *Compiled) Module() api.Module { return c.mod }

// Close releases the adapter instance.
func (c *Compiled) Close(ctx context.Context) error {
	err := c.mod.Close(ctx)
	if cerr := c.compiled.Close(ctx); err == nil {
		err = cerr
	}
	return err
}
