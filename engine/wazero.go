package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"

	"github.com/wippyai/wasm-trampoline/errors"
	"github.com/wippyai/wasm-trampoline/trampoline"
)

// WazeroEngine hosts guests on a wazero runtime
type WazeroEngine struct {
	runtime      wazero.Runtime
	cache        wazero.CompilationCache
	sessions     map[string]*Session
	reserved     map[string]bool // guest and adapter module names
	hostMu       sync.Mutex
	sessionsMu   sync.RWMutex
	wasiInitMu   sync.Mutex
	hostDone     atomic.Bool
	wasiInitDone atomic.Bool
	enableWASI   bool
}

// Config holds configuration for engine creation
type Config struct {
	// CacheDir enables wazero's on-disk compilation cache. Empty disables it.
	CacheDir string `yaml:"cache_dir"`

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32 `yaml:"memory_limit_pages" validate:"lte=65536"`

	// EnableWASI instantiates wasi_snapshot_preview1 before the first guest.
	EnableWASI bool `yaml:"wasi"`

	// EnableThreads enables the WebAssembly threads proposal (experimental).
	EnableThreads bool `yaml:"threads"`
}

// validate checks engine configs supplied by library callers.
var validate = validator.New()

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	e := &WazeroEngine{
		sessions: make(map[string]*Session),
		reserved: make(map[string]bool),
	}

	if cfg != nil {
		if err := validate.Struct(cfg); err != nil {
			return nil, errors.Config("engine config", err)
		}
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.EnableThreads {
			runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
		}
		if cfg.CacheDir != "" {
			cache, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
			if err != nil {
				return nil, errors.Config("compilation cache", err)
			}
			runtimeCfg = runtimeCfg.WithCompilationCache(cache)
			e.cache = cache
		}
		e.enableWASI = cfg.EnableWASI
	}

	e.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return e, nil
}

// Runtime returns the underlying wazero runtime.
func (e *WazeroEngine) Runtime() wazero.Runtime {
	return e.runtime
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// InitWASI instantiates the WASI singleton for this engine's runtime.
// Safe for concurrent calls.
func (e *WazeroEngine) InitWASI(ctx context.Context) error {
	if e.wasiInitDone.Load() {
		return nil
	}

	e.wasiInitMu.Lock()
	defer e.wasiInitMu.Unlock()

	if e.wasiInitDone.Load() {
		return nil
	}

	if e.runtime.Module("wasi_snapshot_preview1") != nil {
		e.wasiInitDone.Store(true)
		return nil
	}

	if _, err := InstantiateWASI(ctx, e.runtime); err != nil {
		if e.runtime.Module("wasi_snapshot_preview1") == nil {
			return fmt.Errorf("instantiate WASI: %w", err)
		}
	}

	e.wasiInitDone.Store(true)
	return nil
}

// initHostModule instantiates trampoline.call once per runtime. Calls are
// routed to the session whose guest made them.
func (e *WazeroEngine) initHostModule(ctx context.Context) error {
	if e.hostDone.Load() {
		return nil
	}

	e.hostMu.Lock()
	defer e.hostMu.Unlock()

	if e.hostDone.Load() {
		return nil
	}

	if _, err := trampoline.InstantiateHostModule(ctx, e.runtime, e.route); err != nil {
		return errors.Load("instantiate host module "+trampoline.HostModule, err)
	}
	e.hostDone.Store(true)
	return nil
}

func (e *WazeroEngine) route(ctx context.Context, mod api.Module, stack []uint64) {
	e.sessionsMu.RLock()
	s := e.sessions[mod.Name()]
	e.sessionsMu.RUnlock()

	if s == nil {
		panic(errors.New(errors.PhaseDispatch, errors.KindNotFound).
			Detail("no session for caller module %q", mod.Name()).
			Build())
	}
	s.hostFn(ctx, mod, stack)
}

func (e *WazeroEngine) register(s *Session) error {
	e.sessionsMu.Lock()
	defer e.sessionsMu.Unlock()

	names := []string{s.name, trampoline.AdapterName(s.name)}
	for _, name := range names {
		if e.reserved[name] || e.runtime.Module(name) != nil {
			return errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("module name %q already in use", name))
		}
	}
	for _, name := range names {
		e.reserved[name] = true
	}
	e.sessions[s.name] = s
	return nil
}

func (e *WazeroEngine) unregister(name string) {
	e.sessionsMu.Lock()
	delete(e.sessions, name)
	delete(e.reserved, name)
	delete(e.reserved, trampoline.AdapterName(name))
	e.sessionsMu.Unlock()
}

// Session returns the loaded guest with the given module name.
func (e *WazeroEngine) Session(name string) (*Session, bool) {
	e.sessionsMu.RLock()
	defer e.sessionsMu.RUnlock()
	s, ok := e.sessions[name]
	return s, ok
}
