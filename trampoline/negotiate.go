package trampoline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-trampoline/errors"
	"github.com/wippyai/wasm-trampoline/hostid"
)

// Mode selects how negotiation picks a strategy.
type Mode string

const (
	// ModeAuto consults the denylist, then tries to build the adapter.
	ModeAuto Mode = "auto"
	// ModeCompiled skips the denylist. A failed build still falls back.
	ModeCompiled Mode = "compiled"
	// ModeFallback never builds the adapter.
	ModeFallback Mode = "fallback"
)

// ParseMode parses a mode name. The empty string is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeCompiled, ModeFallback:
		return Mode(s), nil
	default:
		return "", errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown mode %q", s))
	}
}

// BuildFunc constructs the compiled strategy.
type BuildFunc func(ctx context.Context) (Strategy, error)

// Negotiation is the input to Negotiate.
type Negotiation struct {
	Build    BuildFunc
	Denylist *hostid.Denylist
	Mode     Mode
	Identity hostid.Identity
}

// Outcome records how a binding was resolved.
type Outcome struct {
	Strategy StrategyKind
	Rule     string // denylist rule that vetoed the adapter
	BuildErr error  // build failure, if the adapter was attempted and failed
	Attempts int    // adapter builds attempted: 0 or 1
	Vetoed   bool
}

func (o Outcome) String() string {
	switch {
	case o.Vetoed:
		return fmt.Sprintf("%s (vetoed by %s)", o.Strategy, o.Rule)
	case o.BuildErr != nil:
		return fmt.Sprintf("%s (build failed: %v)", o.Strategy, o.BuildErr)
	default:
		return o.Strategy.String()
	}
}

// Negotiate resolves binding exactly once: the denylist may veto the
// adapter, otherwise one build is attempted. A vetoed or failed build leaves
// the fallback in place; neither is returned as an error. The only error is
// ErrAlreadyResolved, for a binding that was already negotiated.
func Negotiate(ctx context.Context, binding *Binding, n Negotiation) (Outcome, error) {
	if err := binding.Begin(); err != nil {
		return Outcome{Strategy: binding.Strategy().Kind()}, err
	}

	mode := n.Mode
	if mode == "" {
		mode = ModeAuto
	}
	out := Outcome{Strategy: KindFallback}
	log := Logger().With(zap.String("mode", string(mode)))

	var chosen Strategy
	switch {
	case mode == ModeFallback:
		log.Debug("adapter disabled by mode")

	case mode == ModeAuto && vetoed(n, &out):
		log.Info("adapter vetoed for host",
			zap.String("rule", out.Rule),
			zap.String("user_agent", n.Identity.UserAgent),
			zap.String("goos", n.Identity.GOOS))

	case n.Build == nil:
		log.Debug("no adapter builder configured")

	default:
		out.Attempts = 1
		s, err := safeBuild(ctx, n.Build)
		switch {
		case err != nil:
			out.BuildErr = err
			log.Warn("adapter build failed, using fallback", zap.Error(err))
		case s == nil:
			out.BuildErr = errors.New(errors.PhaseBuild, errors.KindNotInitialized).
				Detail("builder returned no strategy").
				Build()
			log.Warn("adapter build failed, using fallback", zap.Error(out.BuildErr))
		default:
			chosen = s
		}
	}

	if err := binding.Resolve(chosen); err != nil {
		return out, err
	}
	out.Strategy = binding.Strategy().Kind()
	log.Debug("binding resolved", zap.Stringer("strategy", out.Strategy))
	return out, nil
}

func vetoed(n Negotiation, out *Outcome) bool {
	v := n.Denylist.Check(n.Identity)
	out.Vetoed, out.Rule = v.Vetoed, v.Rule
	return v.Vetoed
}

// safeBuild turns a panicking builder into a build failure.
func safeBuild(ctx context.Context, build BuildFunc) (s Strategy, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = errors.New(errors.PhaseBuild, errors.KindInstantiation).
				Detail("builder panicked: %v", r).
				Build()
		}
	}()
	return build(ctx)
}
