package engine

import (
	"context"
	"errors"
	"testing"

	errs "github.com/wippyai/wasm-trampoline/errors"
	"github.com/wippyai/wasm-trampoline/hostid"
	"github.com/wippyai/wasm-trampoline/internal/guesttest"
	"github.com/wippyai/wasm-trampoline/trampoline"
)

var linuxHost = &hostid.Identity{GOOS: "linux", GOARCH: "amd64"}

func newEngine(t *testing.T, cfg *Config) *WazeroEngine {
	t.Helper()
	ctx := context.Background()
	e, err := NewWazeroEngineWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("NewWazeroEngineWithConfig: %v", err)
	}
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func load(t *testing.T, e *WazeroEngine, opts guesttest.Options, cfg GuestConfig) *Session {
	t.Helper()
	if cfg.Identity == nil {
		cfg.Identity = linuxHost
	}
	s, err := e.LoadGuest(context.Background(), guesttest.Build(opts), cfg)
	if err != nil {
		t.Fatalf("LoadGuest: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{}
	if cfg.MemoryLimitPages != 0 || cfg.CacheDir != "" || cfg.EnableWASI {
		t.Errorf("unexpected zero config: %+v", cfg)
	}
}

func TestNewWazeroEngineWithConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		cfg  *Config
		name string
	}{
		{nil, "nil config"},
		{&Config{}, "default config"},
		{&Config{MemoryLimitPages: 256}, "16MB limit"},
		{&Config{EnableWASI: true}, "wasi"},
		{&Config{EnableThreads: true}, "threads"},
		{&Config{CacheDir: t.TempDir()}, "compilation cache"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := NewWazeroEngineWithConfig(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("NewWazeroEngineWithConfig failed: %v", err)
			}
			defer engine.Close(ctx)

			if engine.Runtime() == nil {
				t.Error("engine runtime should not be nil")
			}
		})
	}
}

func TestNewWazeroEngineWithConfig_Invalid(t *testing.T) {
	ctx := context.Background()
	engine, err := NewWazeroEngineWithConfig(ctx, &Config{MemoryLimitPages: 70000})
	if err == nil {
		_ = engine.Close(ctx)
		t.Fatal("expected error for memory limit above 65536 pages")
	}
	var werr *errs.Error
	if !errors.As(err, &werr) || werr.Phase != errs.PhaseConfig {
		t.Errorf("err = %v, want config error", err)
	}

	engine, err = NewWazeroEngineWithConfig(ctx, &Config{MemoryLimitPages: 65536})
	if err != nil {
		t.Fatalf("65536 pages should be accepted: %v", err)
	}
	_ = engine.Close(ctx)
}

func TestWazeroEngine_InitWASI(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := e.InitWASI(ctx); err != nil {
			t.Fatalf("InitWASI #%d: %v", i, err)
		}
	}
	if e.Runtime().Module("wasi_snapshot_preview1") == nil {
		t.Error("WASI module not instantiated")
	}
}

func TestLoadGuest_Modes(t *testing.T) {
	tests := []struct {
		mode      trampoline.Mode
		identity  *hostid.Identity
		want      trampoline.StrategyKind
		wantState trampoline.State
	}{
		{trampoline.ModeAuto, linuxHost, trampoline.KindCompiled, trampoline.StateResolvedCompiled},
		{trampoline.ModeCompiled, linuxHost, trampoline.KindCompiled, trampoline.StateResolvedCompiled},
		{trampoline.ModeFallback, linuxHost, trampoline.KindFallback, trampoline.StateResolvedFallback},
		{trampoline.ModeAuto, &hostid.Identity{GOOS: "ios"}, trampoline.KindFallback, trampoline.StateResolvedFallback},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode)+"/"+tt.identity.GOOS, func(t *testing.T) {
			e := newEngine(t, nil)
			s := load(t, e, guesttest.Options{}, GuestConfig{Mode: tt.mode, Identity: tt.identity})

			if got := s.Outcome().Strategy; got != tt.want {
				t.Fatalf("Strategy = %s, want %s (%s)", got, tt.want, s.Outcome())
			}
			if s.State() != tt.wantState {
				t.Errorf("State = %s, want %s", s.State(), tt.wantState)
			}

			v, err := s.Memory().ReadU32(guesttest.InitializedAddr)
			if err != nil || v != 1 {
				t.Errorf("_initialize did not run: %d, %v", v, err)
			}

			got, err := s.Call(context.Background(), trampoline.Args(guesttest.SlotSum3, 4, 5, 6))
			if err != nil || got != 456 {
				t.Errorf("Call(sum3) = %d, %v", got, err)
			}
		})
	}
}

func TestLoadGuest_VetoSkipsBuild(t *testing.T) {
	e := newEngine(t, nil)
	s := load(t, e, guesttest.Options{}, GuestConfig{
		Identity: &hostid.Identity{UserAgent: "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)"},
	})

	out := s.Outcome()
	if !out.Vetoed || out.Rule != "mobile-webkit" || out.Attempts != 0 {
		t.Errorf("outcome = %+v", out)
	}
	if e.Runtime().Module("main.trampoline") != nil {
		t.Error("adapter instantiated despite veto")
	}
}

func TestLoadGuest_VetoedHostCallsDirectly(t *testing.T) {
	e := newEngine(t, nil)
	s := load(t, e, guesttest.Options{}, GuestConfig{
		Identity: &hostid.Identity{UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15"},
	})

	if s.State() != trampoline.StateResolvedFallback || s.Outcome().Attempts != 0 {
		t.Fatalf("outcome = %+v, state %s", s.Outcome(), s.State())
	}
	got, err := s.Call(context.Background(), trampoline.Args(guesttest.SlotAdd2, 19, 23, 0))
	if err != nil || got != 42 {
		t.Errorf("Call(add2) = %d, %v", got, err)
	}
}

func TestLoadGuest_BuildFailureFallsBack(t *testing.T) {
	e := newEngine(t, nil)
	s := load(t, e, guesttest.Options{NoMemoryExport: true}, GuestConfig{})

	out := s.Outcome()
	if out.Strategy != trampoline.KindFallback || out.BuildErr == nil || out.Attempts != 1 {
		t.Fatalf("outcome = %+v", out)
	}

	got, err := s.Call(context.Background(), trampoline.Args(guesttest.SlotAdd2, 40, 2, 0))
	if err != nil || got != 42 {
		t.Errorf("Call(add2) = %d, %v", got, err)
	}
}

func TestSession_Call(t *testing.T) {
	e := newEngine(t, nil)
	s := load(t, e, guesttest.Options{}, GuestConfig{})
	ctx := context.Background()

	tests := []struct {
		name    string
		args    trampoline.CallArguments
		want    uint32
		wantErr error
	}{
		{"add2", trampoline.Args(guesttest.SlotAdd2, 1, 2, 3), 3, nil},
		{"zero", trampoline.Args(guesttest.SlotZero, 1, 2, 3), 42, nil},
		{"one", trampoline.Args(guesttest.SlotOne, 9, 0, 0), 10, nil},
		{"four", trampoline.Args(guesttest.SlotFour, 1, 2, 3), 0, trampoline.ErrUnsupportedSignature},
		{"empty", trampoline.Args(guesttest.SlotEmpty, 0, 0, 0), 0, trampoline.ErrHostFault},
		{"trap", trampoline.Args(guesttest.SlotTrap, 0, 0, 0), 0, trampoline.ErrHostFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Call(ctx, tt.args)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Call() = %d, %v; want %d", got, err, tt.want)
			}
		})
	}

	marker, _ := s.Memory().ReadU32(guesttest.MarkerAddr)
	if marker != 0 {
		t.Error("four ran despite the arity mismatch")
	}
}

func TestSession_DepthSelectsFlagCell(t *testing.T) {
	e := newEngine(t, nil)
	s := load(t, e, guesttest.Options{}, GuestConfig{FlagCells: 4})

	ctx := context.WithValue(context.Background(), depthKey{}, uint32(3))
	if _, err := s.Call(ctx, trampoline.Args(guesttest.SlotAdd2, 1, 1, 0)); err != nil {
		t.Fatalf("Call at depth 3: %v", err)
	}
	v, err := s.Memory().ReadU32(s.flagBase + 12)
	if err != nil || v != 1 {
		t.Errorf("flag cell 3 = %d, %v", v, err)
	}

	ctx = context.WithValue(context.Background(), depthKey{}, uint32(4))
	if _, err := s.Call(ctx, trampoline.Args(guesttest.SlotAdd2, 1, 1, 0)); err == nil {
		t.Error("expected error past the last flag cell")
	}
}

func TestSession_GuestCallsBack(t *testing.T) {
	e := newEngine(t, nil)
	a := load(t, e, guesttest.Options{Nest: true}, GuestConfig{Name: "a"})
	b := load(t, e, guesttest.Options{Nest: true}, GuestConfig{Name: "b", Mode: trampoline.ModeFallback})
	ctx := context.Background()

	for _, s := range []*Session{a, b} {
		got, err := s.Call(ctx, trampoline.Args(guesttest.SlotNest, guesttest.SlotAdd2, 20, 3))
		if err != nil || got != 23 {
			t.Errorf("%s: nest(add2) = %d, %v", s.Name(), got, err)
		}

		got, err = s.Call(ctx, trampoline.Args(guesttest.SlotNest, guesttest.SlotFour, 1, 2))
		if err != nil || got != 0 {
			t.Errorf("%s: nest(four) = %d, %v", s.Name(), got, err)
		}
		flag, _ := s.Memory().ReadU32(guesttest.NestFlagAddr)
		if flag != 0 {
			t.Errorf("%s: guest flag = %d, want 0", s.Name(), flag)
		}
	}

	res, err := a.CallExport(ctx, "nest", guesttest.SlotOne, 41, 0)
	if err != nil || len(res) != 1 || res[0] != 42 {
		t.Errorf("CallExport(nest) = %v, %v", res, err)
	}
}

func TestLoadGuest_Errors(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	if _, err := e.LoadGuest(ctx, []byte("not wasm"), GuestConfig{Identity: linuxHost}); err == nil {
		t.Error("expected error for invalid binary")
	}

	load(t, e, guesttest.Options{}, GuestConfig{Name: "dup"})
	if _, err := e.LoadGuest(ctx, guesttest.Build(guesttest.Options{}), GuestConfig{Name: "dup", Identity: linuxHost}); err == nil {
		t.Error("expected error for duplicate module name")
	}

	taken := load(t, e, guesttest.Options{}, GuestConfig{Name: "pair.trampoline"})
	if _, err := e.LoadGuest(ctx, guesttest.Build(guesttest.Options{}), GuestConfig{Name: "pair", Identity: linuxHost}); err == nil {
		t.Error("expected error when the adapter name belongs to another guest")
	}
	if _, ok := e.Session("pair"); ok {
		t.Error("rejected guest was registered")
	}
	if taken.State() != trampoline.StateResolvedCompiled {
		t.Errorf("existing guest state = %s", taken.State())
	}

	_, err := e.LoadGuest(ctx, guesttest.Build(guesttest.Options{}), GuestConfig{
		Name:           "badstart",
		Identity:       linuxHost,
		StartFunctions: []string{"add2"},
	})
	if err == nil {
		t.Error("expected error for failing start function")
	}
	if _, ok := e.Session("badstart"); ok {
		t.Error("failed session left registered")
	}
}

func TestLoadGuest_FlagCells(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	noMalloc := load(t, e, guesttest.Options{NoMalloc: true}, GuestConfig{Name: "nomalloc"})
	if _, err := noMalloc.Call(ctx, trampoline.Args(guesttest.SlotAdd2, 1, 2, 0)); err == nil {
		t.Error("expected error without flag cells")
	}

	scratch := load(t, e, guesttest.Options{NoMalloc: true}, GuestConfig{Name: "scratch", ScratchAddr: 0x800})
	got, err := scratch.Call(ctx, trampoline.Args(guesttest.SlotAdd2, 1, 2, 0))
	if err != nil || got != 3 {
		t.Errorf("Call with scratch cells = %d, %v", got, err)
	}

	withMalloc := load(t, e, guesttest.Options{}, GuestConfig{Name: "malloc"})
	if withMalloc.flagBase < guesttest.HeapBase {
		t.Errorf("flag cells at %#x, want heap allocation", withMalloc.flagBase)
	}
}

func TestSession_Close(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	s, err := e.LoadGuest(ctx, guesttest.Build(guesttest.Options{}), GuestConfig{Identity: linuxHost})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := s.Call(ctx, trampoline.Args(guesttest.SlotAdd2, 1, 2, 0)); err == nil {
		t.Error("expected error after Close")
	}

	again := load(t, e, guesttest.Options{}, GuestConfig{})
	if again.Name() != DefaultGuestName {
		t.Errorf("Name() = %q", again.Name())
	}
}

func TestGuestMemory(t *testing.T) {
	e := newEngine(t, nil)
	s := load(t, e, guesttest.Options{}, GuestConfig{})
	mem := s.Memory()

	if mem.Size() != 65536 {
		t.Errorf("Size() = %d", mem.Size())
	}
	if err := mem.Write(0x400, []byte("abc")); err != nil {
		t.Fatal(err)
	}
	data, err := mem.Read(0x400, 3)
	if err != nil || string(data) != "abc" {
		t.Errorf("Read = %q, %v", data, err)
	}
	if err := mem.WriteU32(0x410, 7); err != nil {
		t.Fatal(err)
	}
	if v, _ := mem.ReadU32(0x410); v != 7 {
		t.Errorf("ReadU32 = %d", v)
	}
	if _, err := mem.Read(65535, 4); err == nil {
		t.Error("expected out of bounds read")
	}
	if err := mem.WriteU32(65534, 1); err == nil {
		t.Error("expected out of bounds write")
	}

	p1, err := s.Alloc(5)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := s.Alloc(4)
	if err != nil {
		t.Fatal(err)
	}
	if p2-p1 != 8 {
		t.Errorf("allocations %#x, %#x not 4-aligned", p1, p2)
	}
}
