package engine

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-trampoline/errors"
	"github.com/wippyai/wasm-trampoline/hostid"
	"github.com/wippyai/wasm-trampoline/trampoline"
	"github.com/wippyai/wasm-trampoline/wasm"
)

// Defaults applied by LoadGuest.
const (
	DefaultGuestName     = "main"
	DefaultMallocExport  = "malloc"
	DefaultFlagCells     = 64
	DefaultStartFunction = "_initialize"
)

// GuestConfig holds configuration for loading one guest
type GuestConfig struct {
	// Identity describes the host to the denylist. nil uses hostid.Current().
	Identity *hostid.Identity
	// Denylist vetoes the compiled adapter. nil uses hostid.DefaultDenylist().
	Denylist *hostid.Denylist

	Stdout io.Writer
	Stderr io.Writer

	// Name is the guest's module name. Default "main".
	Name string
	// Mode selects the strategy negotiation. Default auto.
	Mode trampoline.Mode

	// TableExport and MemoryExport name the guest's indirect table and
	// memory. Defaults "__indirect_function_table" and "memory".
	TableExport  string
	MemoryExport string
	// MallocExport reserves success-flag cells. Default "malloc".
	MallocExport string

	// StartFunctions run after negotiation, in order. Missing exports are
	// skipped. nil means {"_initialize"}.
	StartFunctions []string
	Args           []string

	// FlagCells bounds the nesting depth of Session.Call. Default 64.
	FlagCells uint32
	// ScratchAddr, when set, is used for flag cells instead of malloc.
	ScratchAddr uint32
}

func (c *GuestConfig) withDefaults() GuestConfig {
	out := *c
	if out.Name == "" {
		out.Name = DefaultGuestName
	}
	if out.Mode == "" {
		out.Mode = trampoline.ModeAuto
	}
	if out.TableExport == "" {
		out.TableExport = trampoline.DefaultTableExport
	}
	if out.MemoryExport == "" {
		out.MemoryExport = trampoline.DefaultMemoryExport
	}
	if out.MallocExport == "" {
		out.MallocExport = DefaultMallocExport
	}
	if out.StartFunctions == nil {
		out.StartFunctions = []string{DefaultStartFunction}
	}
	if out.FlagCells == 0 {
		out.FlagCells = DefaultFlagCells
	}
	if out.Identity == nil {
		id := hostid.Current()
		out.Identity = &id
	}
	if out.Denylist == nil {
		out.Denylist = hostid.DefaultDenylist()
	}
	return out
}

// Session is a loaded guest with its resolved call binding.
//
// Session.Call may be nested through host functions but must not be used
// from several goroutines at once; concurrent callers use Dispatcher with
// their own flag cells.
type Session struct {
	engine     *WazeroEngine
	guest      api.Module
	compiled   wazero.CompiledModule
	adapter    *trampoline.Compiled
	module     *wasm.Module
	slots      *trampoline.SlotIndex
	binding    *trampoline.Binding
	dispatcher *trampoline.Dispatcher
	memory     *GuestMemory
	alloc      *guestAllocator
	hostFn     api.GoModuleFunc
	name       string
	outcome    trampoline.Outcome
	flagBase   uint32
	flagCells  uint32
	closed     atomic.Bool
}

type depthKey struct{}

// LoadGuest parses, instantiates and negotiates a guest module.
//
// The guest binary is rewritten to export every table-referenced function for
// the fallback strategy. Negotiation runs after instantiation and before any
// start function, so code in _initialize already calls through the resolved
// binding. A start section, if present, runs during instantiation on the
// fallback.
func (e *WazeroEngine) LoadGuest(ctx context.Context, wasmBytes []byte, cfg GuestConfig) (*Session, error) {
	cfg = cfg.withDefaults()
	log := Logger().With(zap.String("guest", cfg.Name))

	m, err := wasm.ParseModule(wasmBytes)
	if err != nil {
		return nil, errors.Load("parse guest", err)
	}

	var slots *trampoline.SlotIndex
	prepared := wasmBytes
	if idx, err := trampoline.NewSlotIndex(m, cfg.TableExport); err != nil {
		if errors.Is(err, trampoline.ErrInvalidTable) {
			return nil, err
		}
		log.Debug("no indirect table, all slots empty", zap.Error(err))
	} else {
		if idx.Dynamic() {
			log.Debug("guest writes its indirect table, fallback reads live entries",
				zap.Int("writers", len(idx.Writers())))
		}
		slots = idx
		prepared, err = wasm.AddExports(wasmBytes, trampoline.FallbackExports(slots))
		if err != nil {
			return nil, errors.Load("prepare fallback exports", err)
		}
	}

	if err := e.initHostModule(ctx); err != nil {
		return nil, err
	}
	if e.enableWASI {
		if err := e.InitWASI(ctx); err != nil {
			return nil, errors.Load("init WASI", err)
		}
	}

	compiled, err := e.runtime.CompileModule(ctx, prepared)
	if err != nil {
		return nil, errors.Load("compile guest", err)
	}

	binding := trampoline.NewBinding(trampoline.NewFallback(slots))
	dispatcher := trampoline.NewDispatcher(binding)
	s := &Session{
		engine:     e,
		compiled:   compiled,
		module:     m,
		slots:      slots,
		binding:    binding,
		dispatcher: dispatcher,
		hostFn:     dispatcher.GoModuleFunc(),
		name:       cfg.Name,
		flagCells:  cfg.FlagCells,
	}

	// registered before instantiation so a start section can call back
	if err := e.register(s); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	modCfg := wazero.NewModuleConfig().
		WithName(cfg.Name).
		WithStartFunctions()
	if cfg.Stdout != nil {
		modCfg = modCfg.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		modCfg = modCfg.WithStderr(cfg.Stderr)
	}
	if len(cfg.Args) > 0 {
		modCfg = modCfg.WithArgs(cfg.Args...)
	}

	guest, err := e.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		e.unregister(cfg.Name)
		_ = compiled.Close(ctx)
		return nil, errors.Load("instantiate guest", err)
	}
	s.guest = guest
	if mem := guest.Memory(); mem != nil {
		s.memory = &GuestMemory{mem: mem}
	}

	builder := &trampoline.Builder{
		Runtime:      e.runtime,
		Module:       m,
		Slots:        slots,
		TableExport:  cfg.TableExport,
		MemoryExport: cfg.MemoryExport,
	}
	s.outcome, err = trampoline.Negotiate(ctx, binding, trampoline.Negotiation{
		Mode:     cfg.Mode,
		Identity: *cfg.Identity,
		Denylist: cfg.Denylist,
		Build: func(ctx context.Context) (trampoline.Strategy, error) {
			c, err := builder.Build(ctx, guest)
			if err != nil {
				return nil, err
			}
			s.adapter = c
			return c, nil
		},
	})
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}

	for _, name := range cfg.StartFunctions {
		if err := s.runStart(ctx, name); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
	}

	if err := s.reserveFlags(ctx, cfg); err != nil {
		log.Debug("no flag cells reserved, Session.Call disabled", zap.Error(err))
	}

	log.Info("guest loaded",
		zap.Stringer("strategy", s.outcome.Strategy),
		zap.Bool("vetoed", s.outcome.Vetoed),
		zap.String("rule", s.outcome.Rule),
		zap.Uint32("slots", s.slotCount()))
	return s, nil
}

func (s *Session) runStart(ctx context.Context, name string) error {
	fn := s.guest.ExportedFunction(name)
	if fn == nil {
		return nil
	}
	if _, err := fn.Call(ctx); err != nil {
		if exitErr, ok := err.(*sys.ExitError); ok && exitErr.ExitCode() == 0 {
			return nil
		}
		return errors.New(errors.PhaseLoad, errors.KindInstantiation).
			Export(name).
			Detail("start function failed").
			Cause(err).
			Build()
	}
	return nil
}

func (s *Session) reserveFlags(ctx context.Context, cfg GuestConfig) error {
	if s.memory == nil {
		return errors.Unsupported(errors.PhaseLoad, "guest has no linear memory")
	}
	s.alloc = newGuestAllocator(ctx, s.guest, cfg.MallocExport)
	if cfg.ScratchAddr != 0 {
		end := uint64(cfg.ScratchAddr) + 4*uint64(cfg.FlagCells)
		if end > uint64(s.memory.Size()) {
			return errors.OutOfBounds(errors.PhaseLoad, "scratch flag cells", cfg.ScratchAddr, s.memory.Size())
		}
		s.flagBase = cfg.ScratchAddr
		return nil
	}
	if s.alloc == nil {
		return errors.MissingExport(errors.PhaseLoad, cfg.MallocExport, "allocator")
	}
	base, err := s.alloc.Alloc(4 * cfg.FlagCells)
	if err != nil {
		return err
	}
	s.flagBase = base
	return nil
}

func (s *Session) slotCount() uint32 {
	if s.slots == nil {
		return 0
	}
	return s.slots.Len()
}

// Call invokes the function pointer args.Target with three arguments.
//
// A target declaring more than three parameters is not run and Call returns
// trampoline.ErrUnsupportedSignature. Host faults, such as an empty slot or a
// trap in the target, are returned as errors matching trampoline.ErrHostFault.
func (s *Session) Call(ctx context.Context, args trampoline.CallArguments) (uint32, error) {
	if s.closed.Load() {
		return 0, errors.New(errors.PhaseDispatch, errors.KindNotInitialized).
			Detail("session %q is closed", s.name).
			Build()
	}
	if s.flagBase == 0 {
		return 0, errors.New(errors.PhaseDispatch, errors.KindNotInitialized).
			Detail("no success-flag cells reserved for %q", s.name).
			Build()
	}

	depth, _ := ctx.Value(depthKey{}).(uint32)
	if depth >= s.flagCells {
		return 0, errors.New(errors.PhaseDispatch, errors.KindOutOfBounds).
			Target(args.Target).
			Detail("call nesting exceeds %d levels", s.flagCells).
			Build()
	}
	flag := s.flagBase + 4*depth
	ctx = context.WithValue(ctx, depthKey{}, depth+1)
	return s.dispatcher.Call(ctx, s.guest, flag, args)
}

// CallExport calls a plain guest export with raw i32 arguments.
func (s *Session) CallExport(ctx context.Context, name string, params ...uint32) ([]uint64, error) {
	fn := s.guest.ExportedFunction(name)
	if fn == nil {
		return nil, errors.MissingExport(errors.PhaseDispatch, name, "function")
	}
	raw := make([]uint64, len(params))
	for i, p := range params {
		raw[i] = api.EncodeU32(p)
	}
	return fn.Call(ctx, raw...)
}

// Name returns the guest's module name.
func (s *Session) Name() string { return s.name }

// Outcome reports how the binding was negotiated.
func (s *Session) Outcome() trampoline.Outcome { return s.outcome }

// State returns the binding state.
func (s *Session) State() trampoline.State { return s.binding.State() }

// Slots returns the static view of the guest's indirect table. It is empty
// when the guest exports no table.
func (s *Session) Slots() *trampoline.SlotIndex {
	if s.slots == nil {
		return &trampoline.SlotIndex{}
	}
	return s.slots
}

// Dispatcher returns the session's dispatcher, for callers that manage their
// own success-flag cells.
func (s *Session) Dispatcher() *trampoline.Dispatcher { return s.dispatcher }

// Guest returns the guest instance.
func (s *Session) Guest() api.Module { return s.guest }

// Memory returns the guest's linear memory, or nil if it has none.
func (s *Session) Memory() *GuestMemory { return s.memory }

// Alloc allocates in guest memory through its malloc export.
func (s *Session) Alloc(size uint32) (uint32, error) {
	if s.alloc == nil {
		return 0, errors.MissingExport(errors.PhaseDispatch, DefaultMallocExport, "allocator")
	}
	return s.alloc.Alloc(size)
}

// Close releases the guest, its adapter and the compiled module.
func (s *Session) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	defer s.engine.unregister(s.name)

	var firstErr error
	if s.adapter != nil {
		if err := s.adapter.Close(ctx); err != nil {
			firstErr = err
		}
	}
	if s.guest != nil {
		if err := s.guest.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.compiled.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return fmt.Errorf("close session %q: %w", s.name, firstErr)
	}
	return nil
}

// Module returns the parsed guest binary, before export rewriting.
func (s *Session) Module() *wasm.Module { return s.module }
