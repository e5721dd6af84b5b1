package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"

	wasmtrampoline "github.com/wippyai/wasm-trampoline"
	"github.com/wippyai/wasm-trampoline/errors"
)

// GuestMemory wraps wazero memory to implement wasmtrampoline.Memory
type GuestMemory struct {
	mem api.Memory
}

func (m *GuestMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseDispatch, "read", offset, m.Size())
	}
	return data, nil
}

func (m *GuestMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseDispatch, "write", offset, m.Size())
	}
	return nil
}

func (m *GuestMemory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseDispatch, "read", offset, m.Size())
	}
	return val, nil
}

func (m *GuestMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseDispatch, "write", offset, m.Size())
	}
	return nil
}

func (m *GuestMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// guestAllocator calls the guest's malloc export.
type guestAllocator struct {
	ctx      context.Context
	fn       api.Function
	stackBuf [1]uint64
	mu       sync.Mutex
}

func newGuestAllocator(ctx context.Context, guest api.Module, export string) *guestAllocator {
	fn := guest.ExportedFunction(export)
	if fn == nil {
		return nil
	}
	def := fn.Definition()
	if len(def.ParamTypes()) != 1 || len(def.ResultTypes()) != 1 {
		Logger().Sugar().Debugf("export %q is not malloc-shaped, ignored", export)
		return nil
	}
	return &guestAllocator{ctx: context.WithoutCancel(ctx), fn: fn}
}

func (a *guestAllocator) Alloc(size uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stackBuf[0] = api.EncodeU32(size)
	if err := a.fn.CallWithStack(a.ctx, a.stackBuf[:]); err != nil {
		return 0, errors.New(errors.PhaseLoad, errors.KindInstantiation).
			Detail("guest allocation of %d bytes", size).
			Cause(err).
			Build()
	}
	ptr := api.DecodeU32(a.stackBuf[0])
	if ptr == 0 {
		return 0, errors.New(errors.PhaseLoad, errors.KindOutOfBounds).
			Detail("guest allocator returned null for %d bytes", size).
			Build()
	}
	return ptr, nil
}

var _ wasmtrampoline.Memory = (*GuestMemory)(nil)
var _ wasmtrampoline.MemorySizer = (*GuestMemory)(nil)
var _ wasmtrampoline.Allocator = (*guestAllocator)(nil)
