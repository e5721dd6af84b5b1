package trampoline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-trampoline/hostid"
	"github.com/wippyai/wasm-trampoline/internal/guesttest"
	"github.com/wippyai/wasm-trampoline/wasm"
)

const flagAddr uint32 = 0x300

type fixture struct {
	ctx     context.Context
	runtime wazero.Runtime
	module  *wasm.Module
	slots   *SlotIndex
	guest   api.Module
	binding *Binding
	d       *Dispatcher
}

func newFixture(t *testing.T, opts guesttest.Options) *fixture {
	t.Helper()
	ctx := context.Background()

	bin := guesttest.Build(opts)
	m, err := wasm.ParseModule(bin)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	slots, err := NewSlotIndex(m, DefaultTableExport)
	if err != nil {
		t.Fatalf("NewSlotIndex: %v", err)
	}
	prepared, err := wasm.AddExports(bin, FallbackExports(slots))
	if err != nil {
		t.Fatalf("AddExports: %v", err)
	}

	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = r.Close(ctx) })

	binding := NewBinding(NewFallback(slots))
	d := NewDispatcher(binding)

	if opts.Nest {
		if _, err := InstantiateHostModule(ctx, r, d.GoModuleFunc()); err != nil {
			t.Fatalf("InstantiateHostModule: %v", err)
		}
	}

	guest, err := r.InstantiateWithConfig(ctx, prepared,
		wazero.NewModuleConfig().WithName("main").WithStartFunctions())
	if err != nil {
		t.Fatalf("instantiate guest: %v", err)
	}

	return &fixture{
		ctx:     ctx,
		runtime: r,
		module:  m,
		slots:   slots,
		guest:   guest,
		binding: binding,
		d:       d,
	}
}

func (f *fixture) build(ctx context.Context) (Strategy, error) {
	b := &Builder{Runtime: f.runtime, Module: f.module, Slots: f.slots}
	c, err := b.Build(ctx, f.guest)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (f *fixture) resolve(t *testing.T, mode Mode) Outcome {
	t.Helper()
	out, err := Negotiate(f.ctx, f.binding, Negotiation{
		Mode:     mode,
		Identity: hostid.Identity{GOOS: "linux", UserAgent: "test"},
		Denylist: hostid.DefaultDenylist(),
		Build:    f.build,
	})
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	return out
}

func (f *fixture) read(t *testing.T, addr uint32) uint32 {
	t.Helper()
	v, ok := f.guest.Memory().ReadUint32Le(addr)
	if !ok {
		t.Fatalf("read %#x out of bounds", addr)
	}
	return v
}

func TestSlotIndex(t *testing.T) {
	f := newFixture(t, guesttest.Options{})

	tests := []struct {
		slot   uint32
		class  Class
		params int
	}{
		{guesttest.SlotEmpty, ClassEmpty, 0},
		{guesttest.SlotAdd2, ClassCallable, 2},
		{guesttest.SlotSum3, ClassCallable, 3},
		{guesttest.SlotZero, ClassCallable, 0},
		{guesttest.SlotOne, ClassCallable, 1},
		{guesttest.SlotFour, ClassTooMany, 4},
		{guesttest.SlotWide, ClassIncompatible, 1},
		{guesttest.SlotVoid, ClassIncompatible, 1},
		{guesttest.SlotTrap, ClassCallable, 2},
		{guesttest.TableSize + 5, ClassEmpty, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("slot %d", tt.slot), func(t *testing.T) {
			got := f.slots.Lookup(tt.slot)
			if got.Class != tt.class {
				t.Errorf("Class = %s, want %s", got.Class, tt.class)
			}
			if got.Params != tt.params {
				t.Errorf("Params = %d, want %d", got.Params, tt.params)
			}
		})
	}

	if f.slots.Len() != guesttest.SlotTrap+1 {
		t.Errorf("Len() = %d", f.slots.Len())
	}
	if n := len(f.slots.Funcs()); n != 8 {
		t.Errorf("Funcs() has %d entries, want 8", n)
	}
}

func TestClassifySignature(t *testing.T) {
	i32, i64 := wasm.ValI32, wasm.ValI64
	tests := []struct {
		name string
		ft   *wasm.FuncType
		want Class
	}{
		{"nil", nil, ClassEmpty},
		{"nullary", &wasm.FuncType{Results: []wasm.ValType{i32}}, ClassCallable},
		{"ternary", &wasm.FuncType{Params: []wasm.ValType{i32, i32, i32}, Results: []wasm.ValType{i32}}, ClassCallable},
		{"four params", &wasm.FuncType{Params: []wasm.ValType{i32, i32, i32, i32}, Results: []wasm.ValType{i32}}, ClassTooMany},
		{"four i64 params", &wasm.FuncType{Params: []wasm.ValType{i64, i64, i64, i64}}, ClassTooMany},
		{"i64 param", &wasm.FuncType{Params: []wasm.ValType{i64}, Results: []wasm.ValType{i32}}, ClassIncompatible},
		{"no result", &wasm.FuncType{Params: []wasm.ValType{i32}}, ClassIncompatible},
		{"two results", &wasm.FuncType{Results: []wasm.ValType{i32, i32}}, ClassIncompatible},
		{"i64 result", &wasm.FuncType{Results: []wasm.ValType{i64}}, ClassIncompatible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifySignature(tt.ft); got != tt.want {
				t.Errorf("ClassifySignature() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIndexTable_RefExprsAndNulls(t *testing.T) {
	i32 := wasm.ValI32
	m := &wasm.Module{
		Types:  []wasm.FuncType{{Results: []wasm.ValType{i32}}},
		Funcs:  []uint32{0},
		Tables: []wasm.TableType{{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 4}}},
		Elements: []wasm.Element{{
			Flags:  4,
			Offset: wasm.I32ConstExpr(2),
			Type:   wasm.ValFuncRef,
			Exprs: [][]byte{
				{wasm.OpRefNull, byte(wasm.ValFuncRef), wasm.OpEnd},
				{wasm.OpRefFunc, 0, wasm.OpEnd},
			},
		}},
	}
	idx, err := IndexTable(m, 0)
	if err != nil {
		t.Fatalf("IndexTable: %v", err)
	}
	if c := idx.Lookup(2).Class; c != ClassEmpty {
		t.Errorf("slot 2 = %s, want empty", c)
	}
	if c := idx.Lookup(3).Class; c != ClassCallable {
		t.Errorf("slot 3 = %s, want callable", c)
	}
}

func TestIndexTable_GlobalOffsets(t *testing.T) {
	i32 := wasm.ValI32
	newModule := func(offset []byte) *wasm.Module {
		return &wasm.Module{
			Imports: []wasm.Import{{
				Module: "env",
				Name:   "base",
				Desc:   wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: i32}},
			}},
			Types:  []wasm.FuncType{{Results: []wasm.ValType{i32}}},
			Funcs:  []uint32{0},
			Tables: []wasm.TableType{{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 8}}},
			Globals: []wasm.Global{
				{Type: wasm.GlobalType{ValType: i32}, Init: wasm.I32ConstExpr(5)},
				{Type: wasm.GlobalType{ValType: i32}, Init: wasm.NewExpr().GlobalGet(1).End().Bytes()},
				{Type: wasm.GlobalType{ValType: i32, Mutable: true}, Init: wasm.I32ConstExpr(6)},
			},
			Elements: []wasm.Element{{Offset: offset, FuncIdxs: []uint32{0}}},
		}
	}

	tests := []struct {
		name     string
		global   uint32
		wantSlot uint32
		resolved bool
	}{
		{"defined constant", 1, 5, true},
		{"chained constant", 2, 5, true},
		{"mutable", 3, 0, false},
		{"imported", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			prev := Logger()
			SetLogger(zap.New(core))
			defer SetLogger(prev)

			idx, err := IndexTable(newModule(wasm.NewExpr().GlobalGet(tt.global).End().Bytes()), 0)
			if err != nil {
				t.Fatalf("IndexTable: %v", err)
			}
			if !tt.resolved {
				if idx.Len() != 0 {
					t.Errorf("Len = %d, want 0", idx.Len())
				}
				if logs.Len() != 1 {
					t.Errorf("warnings = %d, want 1", logs.Len())
				}
				return
			}
			if c := idx.Lookup(tt.wantSlot).Class; c != ClassCallable {
				t.Errorf("slot %d = %s, want callable", tt.wantSlot, c)
			}
			if logs.Len() != 0 {
				t.Errorf("unexpected warnings: %v", logs.All())
			}
		})
	}
}

func TestIndexTable_Errors(t *testing.T) {
	m := &wasm.Module{Tables: []wasm.TableType{{ElemType: wasm.ValExtern}}}
	if _, err := IndexTable(m, 0); err == nil {
		t.Error("expected error for externref table")
	}
	if _, err := IndexTable(m, 3); err == nil {
		t.Error("expected error for missing table")
	}
	if _, err := NewSlotIndex(m, "nope"); err == nil {
		t.Error("expected error for missing export")
	}
}

func TestAdapterModule(t *testing.T) {
	f := newFixture(t, guesttest.Options{})
	bin := AdapterModule(AdapterConfig{
		Slots:        f.slots,
		GuestModule:  "main",
		TableExport:  DefaultTableExport,
		MemoryExport: DefaultMemoryExport,
	})

	m, err := wasm.ParseModule(bin)
	if err != nil {
		t.Fatalf("adapter does not decode: %v", err)
	}
	if len(m.Imports) != 2 {
		t.Fatalf("imports = %d, want 2", len(m.Imports))
	}
	if m.Imports[0].Desc.Kind != wasm.KindTable || m.Imports[1].Desc.Kind != wasm.KindMemory {
		t.Errorf("import kinds = %d, %d", m.Imports[0].Desc.Kind, m.Imports[1].Desc.Kind)
	}
	exp, ok := m.FindExport(ExportTrampoline, wasm.KindFunc)
	if !ok {
		t.Fatal("trampoline export missing")
	}
	ft := m.FuncType(exp.Idx)
	if ft == nil || len(ft.Params) != 5 || len(ft.Results) != 1 {
		t.Errorf("trampoline signature = %+v", ft)
	}
}

func TestFallbackExportNames(t *testing.T) {
	name := FallbackExport(17)
	if name != "__trampoline_fn_17" {
		t.Errorf("FallbackExport = %q", name)
	}
	if idx, ok := ParseFallbackExport(name); !ok || idx != 17 {
		t.Errorf("ParseFallbackExport = %d, %v", idx, ok)
	}
	for _, bad := range []string{"malloc", "__trampoline_fn_", "__trampoline_fn_x"} {
		if _, ok := ParseFallbackExport(bad); ok {
			t.Errorf("ParseFallbackExport(%q) should fail", bad)
		}
	}
}

func TestDispatcher_Call(t *testing.T) {
	tests := []struct {
		name    string
		args    CallArguments
		want    uint32
		wantErr error
	}{
		{"binary ignores third arg", Args(guesttest.SlotAdd2, 1, 2, 99), 3, nil},
		{"ternary", Args(guesttest.SlotSum3, 1, 2, 3), 123, nil},
		{"nullary", Args(guesttest.SlotZero, 7, 8, 9), 42, nil},
		{"unary", Args(guesttest.SlotOne, 5, 0, 0), 6, nil},
		{"too many args", Args(guesttest.SlotFour, 1, 2, 3), 0, ErrUnsupportedSignature},
		{"empty slot", Args(guesttest.SlotEmpty, 0, 0, 0), 0, ErrHostFault},
		{"past table end", Args(1000, 0, 0, 0), 0, ErrHostFault},
		{"i64 param", Args(guesttest.SlotWide, 0, 0, 0), 0, ErrHostFault},
		{"no result", Args(guesttest.SlotVoid, 0, 0, 0), 0, ErrHostFault},
		{"trapping target", Args(guesttest.SlotTrap, 0, 0, 0), 0, ErrHostFault},
	}

	for _, mode := range []Mode{ModeFallback, ModeCompiled} {
		t.Run(string(mode), func(t *testing.T) {
			f := newFixture(t, guesttest.Options{})
			out := f.resolve(t, mode)
			wantKind := KindFallback
			if mode == ModeCompiled {
				wantKind = KindCompiled
			}
			if out.Strategy != wantKind {
				t.Fatalf("Strategy = %s, want %s (build error: %v)", out.Strategy, wantKind, out.BuildErr)
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := f.d.Call(f.ctx, f.guest, flagAddr, tt.args)
					if tt.wantErr != nil {
						if !errors.Is(err, tt.wantErr) {
							t.Fatalf("err = %v, want %v", err, tt.wantErr)
						}
						return
					}
					if err != nil {
						t.Fatalf("Call: %v", err)
					}
					if got != tt.want {
						t.Errorf("Call() = %d, want %d", got, tt.want)
					}
					if flag := f.read(t, flagAddr); flag != 1 {
						t.Errorf("success flag = %d, want 1", flag)
					}
				})
			}
		})
	}
}

func TestDispatcher_TooManyArgsHasNoEffect(t *testing.T) {
	for _, mode := range []Mode{ModeFallback, ModeCompiled} {
		t.Run(string(mode), func(t *testing.T) {
			f := newFixture(t, guesttest.Options{})
			f.resolve(t, mode)

			_, err := f.d.Call(f.ctx, f.guest, flagAddr, Args(guesttest.SlotFour, 1, 2, 3))
			if !errors.Is(err, ErrUnsupportedSignature) {
				t.Fatalf("err = %v", err)
			}
			if err.Error() != "[dispatch] unsupported_signature at table slot 5: handler takes too many arguments" {
				t.Errorf("unexpected message: %s", err)
			}
			if flag := f.read(t, flagAddr); flag != 0 {
				t.Errorf("success flag = %d, want 0", flag)
			}
			if marker := f.read(t, guesttest.MarkerAddr); marker != 0 {
				t.Error("target ran despite arity mismatch")
			}

			got, err := f.d.Call(f.ctx, f.guest, flagAddr, Args(guesttest.SlotAdd2, 20, 22, 0))
			if err != nil || got != 42 {
				t.Errorf("next call = %d, %v; want 42, nil", got, err)
			}
		})
	}
}

func TestDispatcher_StrategiesAgree(t *testing.T) {
	fb := newFixture(t, guesttest.Options{})
	fb.resolve(t, ModeFallback)
	cp := newFixture(t, guesttest.Options{})
	cp.resolve(t, ModeCompiled)

	for slot := uint32(0); slot < guesttest.TableSize; slot++ {
		args := Args(slot, 3, 4, 5)
		r1, err1 := fb.d.Call(fb.ctx, fb.guest, flagAddr, args)
		r2, err2 := cp.d.Call(cp.ctx, cp.guest, flagAddr, args)
		if r1 != r2 {
			t.Errorf("slot %d: fallback = %d, compiled = %d", slot, r1, r2)
		}
		if (err1 == nil) != (err2 == nil) {
			t.Errorf("slot %d: fallback err = %v, compiled err = %v", slot, err1, err2)
			continue
		}
		if err1 != nil && errors.Is(err1, ErrUnsupportedSignature) != errors.Is(err2, ErrUnsupportedSignature) {
			t.Errorf("slot %d: error kinds differ: %v vs %v", slot, err1, err2)
		}
	}
}

func TestDispatcher_FlagOutOfBounds(t *testing.T) {
	f := newFixture(t, guesttest.Options{})
	f.resolve(t, ModeFallback)
	if _, err := f.d.Call(f.ctx, f.guest, 1<<20, Args(guesttest.SlotAdd2, 1, 2, 3)); err == nil {
		t.Error("expected error for flag outside memory")
	}
}

func TestDispatcher_UnresolvedUsesFallback(t *testing.T) {
	f := newFixture(t, guesttest.Options{})
	if f.binding.State() != StateUnresolved {
		t.Fatalf("State = %s", f.binding.State())
	}
	got, err := f.d.Call(f.ctx, f.guest, flagAddr, Args(guesttest.SlotOne, 1, 0, 0))
	if err != nil || got != 2 {
		t.Errorf("Call() = %d, %v", got, err)
	}
}

func TestDispatcher_Nested(t *testing.T) {
	for _, mode := range []Mode{ModeFallback, ModeCompiled} {
		t.Run(string(mode), func(t *testing.T) {
			f := newFixture(t, guesttest.Options{Nest: true})
			out := f.resolve(t, mode)
			if mode == ModeCompiled && out.Strategy != KindCompiled {
				t.Fatalf("build failed: %v", out.BuildErr)
			}

			got, err := f.d.Call(f.ctx, f.guest, flagAddr, Args(guesttest.SlotNest, guesttest.SlotAdd2, 4, 5))
			if err != nil || got != 9 {
				t.Fatalf("nested add2 = %d, %v; want 9", got, err)
			}
			if flag := f.read(t, guesttest.NestFlagAddr); flag != 1 {
				t.Errorf("inner flag = %d, want 1", flag)
			}

			// The inner arity failure is reported to the guest only.
			got, err = f.d.Call(f.ctx, f.guest, flagAddr, Args(guesttest.SlotNest, guesttest.SlotFour, 1, 2))
			if err != nil || got != 0 {
				t.Fatalf("nested four = %d, %v; want 0, nil", got, err)
			}
			if flag := f.read(t, guesttest.NestFlagAddr); flag != 0 {
				t.Errorf("inner flag = %d, want 0", flag)
			}

			_, err = f.d.Call(f.ctx, f.guest, flagAddr, Args(guesttest.SlotNest, guesttest.SlotEmpty, 0, 0))
			if !errors.Is(err, ErrHostFault) {
				t.Errorf("nested empty slot err = %v, want host fault", err)
			}
		})
	}
}

func TestDispatcher_Concurrent(t *testing.T) {
	for _, mode := range []Mode{ModeFallback, ModeCompiled} {
		t.Run(string(mode), func(t *testing.T) {
			f := newFixture(t, guesttest.Options{})
			f.resolve(t, mode)

			var wg sync.WaitGroup
			errs := make(chan error, 8)
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					flag := flagAddr + 4*uint32(g)
					for i := uint32(0); i < 50; i++ {
						got, err := f.d.Call(f.ctx, f.guest, flag, Args(guesttest.SlotAdd2, i, uint32(g), 0))
						if err != nil {
							errs <- err
							return
						}
						if got != i+uint32(g) {
							errs <- fmt.Errorf("goroutine %d: got %d, want %d", g, got, i+uint32(g))
							return
						}
					}
				}(g)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Error(err)
			}
		})
	}
}

func TestBuilder_Failures(t *testing.T) {
	f := newFixture(t, guesttest.Options{NoMemoryExport: true})
	if _, err := f.build(f.ctx); err == nil {
		t.Error("expected build failure without a memory export")
	}

	b := &Builder{}
	if _, err := b.Build(f.ctx, f.guest); err == nil {
		t.Error("expected build failure without a runtime")
	}

	b = &Builder{Runtime: f.runtime, Module: f.module, TableExport: "missing"}
	if _, err := b.Build(f.ctx, f.guest); err == nil {
		t.Error("expected build failure for a missing table")
	}
}

func TestIndexTable_SegmentBounds(t *testing.T) {
	// the default guest's segment holds 8 entries
	tests := []struct {
		name    string
		offset  int32
		wantErr bool
	}{
		{"at slot 1", 1, false},
		{"ends at table size", guesttest.TableSize - 8, false},
		{"one past table size", guesttest.TableSize - 7, true},
		{"negative offset", -1, true},
		{"far past table", 1 << 24, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := wasm.ParseModule(guesttest.Build(guesttest.Options{}))
			if err != nil {
				t.Fatalf("ParseModule: %v", err)
			}
			m.Elements[0].Offset = wasm.I32ConstExpr(tt.offset)

			idx, err := IndexTable(m, 0)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTable) {
					t.Fatalf("err = %v, want invalid table", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("IndexTable: %v", err)
			}
			if idx.Len() > guesttest.TableSize {
				t.Errorf("Len = %d exceeds the table", idx.Len())
			}
		})
	}
}

func TestIndexTable_LargeSegment(t *testing.T) {
	const n = 40000
	m, err := wasm.ParseModule(guesttest.Build(guesttest.Options{}))
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	add2 := m.Elements[0].FuncIdxs[0]
	m.Tables[0].Limits.Min = n
	m.Elements[0].Offset = wasm.I32ConstExpr(0)
	m.Elements[0].FuncIdxs = make([]uint32, n)
	for i := range m.Elements[0].FuncIdxs {
		m.Elements[0].FuncIdxs[i] = add2
	}

	idx, err := IndexTable(m, 0)
	if err != nil {
		t.Fatalf("IndexTable: %v", err)
	}
	if idx.Len() != n {
		t.Errorf("Len = %d, want %d", idx.Len(), n)
	}
	if c := idx.Lookup(n - 1).Class; c != ClassCallable {
		t.Errorf("last slot = %s", c)
	}
}

func TestIndexTable_Dynamic(t *testing.T) {
	static := newFixture(t, guesttest.Options{})
	if static.slots.Dynamic() || len(static.slots.Writers()) != 0 {
		t.Errorf("guest without table writes reported dynamic: %v", static.slots.Writers())
	}

	dynamic := newFixture(t, guesttest.Options{Swap: true})
	if !dynamic.slots.Dynamic() {
		t.Fatal("table.set not detected")
	}
	if n := len(dynamic.slots.Writers()); n != 2 {
		t.Errorf("writers = %d, want 2", n)
	}

	imported := &wasm.Module{
		Imports: []wasm.Import{{
			Module: "env",
			Name:   "table",
			Desc: wasm.ImportDesc{
				Kind:  wasm.KindTable,
				Table: &wasm.TableType{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 1}},
			},
		}},
	}
	idx, err := IndexTable(imported, 0)
	if err != nil {
		t.Fatalf("IndexTable: %v", err)
	}
	if !idx.Dynamic() {
		t.Error("imported table should be dynamic")
	}
}

func TestDispatcher_TableWrites(t *testing.T) {
	for _, mode := range []Mode{ModeFallback, ModeCompiled} {
		t.Run(string(mode), func(t *testing.T) {
			f := newFixture(t, guesttest.Options{Swap: true})
			f.resolve(t, mode)
			call := func() (uint32, error) {
				return f.d.Call(f.ctx, f.guest, flagAddr, Args(guesttest.SlotAdd2, 7, 3, 0))
			}
			swap := func(name string) {
				if _, err := f.guest.ExportedFunction(name).Call(f.ctx); err != nil {
					t.Fatalf("%s: %v", name, err)
				}
			}

			if got, err := call(); err != nil || got != 10 {
				t.Fatalf("before swap = %d, %v; want 10", got, err)
			}

			swap("swap_sub")
			if got, err := call(); err != nil || got != 4 {
				t.Errorf("after swap_sub = %d, %v; want 4 from the new entry", got, err)
			}

			swap("swap_four")
			if _, err := call(); !errors.Is(err, ErrHostFault) {
				t.Errorf("after swap_four err = %v, want host fault", err)
			}
			if marker := f.read(t, guesttest.MarkerAddr); marker != 0 {
				t.Error("four ran through a two-argument slot")
			}
		})
	}
}
