package trampoline

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Host import the guest links against:
//
//	(import "trampoline" "call" (func (param i32 i32 i32 i32 i32) (result i32)))
const (
	HostModule   = "trampoline"
	HostFunction = "call"
)

var hostParams = []api.ValueType{
	api.ValueTypeI32, // success_ptr
	api.ValueTypeI32, // fn
	api.ValueTypeI32,
	api.ValueTypeI32,
	api.ValueTypeI32,
}

var hostResults = []api.ValueType{api.ValueTypeI32}

// Dispatcher is the single call surface for indirect calls. It invokes
// whichever strategy the binding holds at the time of the call.
type Dispatcher struct {
	binding *Binding
}

// NewDispatcher creates a dispatcher over binding.
func NewDispatcher(binding *Binding) *Dispatcher {
	return &Dispatcher{binding: binding}
}

// Binding returns the dispatcher's binding.
func (d *Dispatcher) Binding() *Binding { return d.binding }

// Call sets the success flag at flag to 1, invokes the bound strategy and
// reads the flag back. A cleared flag yields ErrUnsupportedSignature and the
// result is discarded. Host faults are returned as they are.
func (d *Dispatcher) Call(ctx context.Context, mod api.Module, flag uint32, args CallArguments) (uint32, error) {
	mem := mod.Memory()
	if mem == nil || !mem.WriteUint32Le(flag, 1) {
		return 0, flagOutOfBounds(mod, flag)
	}

	result, err := d.binding.Strategy().Invoke(ctx, mod, flag, args)
	if err != nil {
		return 0, err
	}

	ok, inBounds := mem.ReadUint32Le(flag)
	if !inBounds {
		return 0, flagOutOfBounds(mod, flag)
	}
	if ok == 0 {
		return 0, unsupportedSignature(args.Target)
	}
	return result, nil
}

// GoModuleFunc returns the host function the guest imports as
// trampoline.call. The guest owns the success flag: it sets it before the
// call and inspects it afterwards. Host faults panic so wazero unwinds the
// guest with an error.
func (d *Dispatcher) GoModuleFunc() api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		flag := api.DecodeU32(stack[0])
		args := Args(
			api.DecodeU32(stack[1]),
			api.DecodeU32(stack[2]),
			api.DecodeU32(stack[3]),
			api.DecodeU32(stack[4]),
		)
		result, err := d.binding.Strategy().Invoke(ctx, mod, flag, args)
		if err != nil {
			panic(err)
		}
		stack[0] = api.EncodeU32(result)
	}
}

// InstantiateHostModule registers fn as trampoline.call on the runtime.
// It is instantiated once per runtime; fn routes calls by caller module.
func InstantiateHostModule(ctx context.Context, r wazero.Runtime, fn api.GoModuleFunc) (api.Module, error) {
	return r.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(fn, hostParams, hostResults).
		WithParameterNames("success_ptr", "fn", "a1", "a2", "a3").
		Export(HostFunction).
		Instantiate(ctx)
}
