package trampoline

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// StrategyKind names an invocation strategy.
type StrategyKind uint8

const (
	KindFallback StrategyKind = iota
	KindCompiled
)

func (k StrategyKind) String() string {
	if k == KindCompiled {
		return "compiled"
	}
	return "fallback"
}

// Strategy performs one call through the guest's indirect table.
//
// flag is the guest address of the success flag. A strategy clears it (writes
// 0) when the target declares more than MaxArity parameters and then makes no
// call. Faults in the host's own invocation path are returned as errors.
type Strategy interface {
	Kind() StrategyKind
	Invoke(ctx context.Context, mod api.Module, flag uint32, args CallArguments) (uint32, error)
}
