package main

import (
	"fmt"
	"strconv"
	"strings"

	wasmtrampoline "github.com/wippyai/wasm-trampoline"
	"github.com/wippyai/wasm-trampoline/trampoline"
)

// guestWriter places string arguments in guest memory.
type guestWriter interface {
	wasmtrampoline.Allocator
	Write(offset uint32, data []byte) error
}

// parseCallArgs parses up to three comma-separated arguments. Numbers accept
// Go literal syntax and negative values wrap to uint32. Quoted values are
// copied into guest memory as NUL-terminated strings and passed by address;
// commas inside quotes do not separate arguments. Missing arguments are 0.
func parseCallArgs(target uint32, s string, w guestWriter) (trampoline.CallArguments, error) {
	if strings.TrimSpace(s) == "" {
		return trampoline.Args(target, 0, 0, 0), nil
	}
	parts, err := splitArgs(s)
	if err != nil {
		return trampoline.CallArguments{}, err
	}
	return parseArgList(target, parts, w)
}

// parseArgList parses already separated arguments.
func parseArgList(target uint32, parts []string, w guestWriter) (trampoline.CallArguments, error) {
	var vals [trampoline.MaxArity]uint32
	if len(parts) > trampoline.MaxArity {
		return trampoline.CallArguments{}, fmt.Errorf("at most %d arguments, got %d", trampoline.MaxArity, len(parts))
	}
	for i, p := range parts {
		v, err := parseArg(strings.TrimSpace(p), w)
		if err != nil {
			return trampoline.CallArguments{}, fmt.Errorf("argument %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return trampoline.Args(target, vals[0], vals[1], vals[2]), nil
}

// splitArgs splits s on commas outside double-quoted strings.
func splitArgs(s string) ([]string, error) {
	var (
		parts   []string
		start   int
		quoted  bool
		escaped bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case quoted && c == '\\':
			escaped = true
		case c == '"':
			quoted = !quoted
		case c == ',' && !quoted:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if quoted {
		return nil, fmt.Errorf("unterminated string in %q", s)
	}
	return append(parts, s[start:]), nil
}

func parseArg(p string, w guestWriter) (uint32, error) {
	if len(p) >= 2 && p[0] == '"' && p[len(p)-1] == '"' {
		if w == nil {
			return 0, fmt.Errorf("string argument needs guest memory")
		}
		str, err := strconv.Unquote(p)
		if err != nil {
			return 0, err
		}
		data := append([]byte(str), 0)
		ptr, err := w.Alloc(uint32(len(data)))
		if err != nil {
			return 0, err
		}
		if err := w.Write(ptr, data); err != nil {
			return 0, err
		}
		return ptr, nil
	}
	if strings.HasPrefix(p, "-") {
		v, err := strconv.ParseInt(p, 0, 32)
		if err != nil {
			return 0, err
		}
		return uint32(int32(v)), nil
	}
	v, err := strconv.ParseUint(p, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
