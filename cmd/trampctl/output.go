package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/wasm-trampoline/engine"
	"github.com/wippyai/wasm-trampoline/trampoline"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD166"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// printer styles output only when writing to a terminal.
type printer struct {
	w      io.Writer
	styled bool
}

func newPrinter(f *os.File) *printer {
	return &printer{w: f, styled: term.IsTerminal(int(f.Fd()))}
}

func (p *printer) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) outcome(file string, s *engine.Session) {
	out := s.Outcome()
	p.printf("%s %s\n", p.render(titleStyle, "trampctl"), file)
	p.printf("%s %s\n", p.render(labelStyle, "module:  "), s.Name())
	p.printf("%s %s\n", p.render(labelStyle, "strategy:"), p.render(funcStyle, out.Strategy.String()))
	switch {
	case out.Vetoed:
		p.printf("%s %s\n", p.render(labelStyle, "vetoed:  "), p.render(warnStyle, out.Rule))
	case out.BuildErr != nil:
		p.printf("%s %s\n", p.render(labelStyle, "build:   "), p.render(warnStyle, out.BuildErr.Error()))
	}
	p.printf("%s %d\n", p.render(labelStyle, "slots:   "), s.Slots().Len())
}

func (p *printer) slots(s *engine.Session) {
	idx := s.Slots()
	p.printf("\n%s\n", p.render(labelStyle, "slot  func  params  class"))
	for i := uint32(0); i < idx.Len(); i++ {
		slot := idx.Lookup(i)
		if slot.Class == trampoline.ClassEmpty {
			continue
		}
		p.printf("%4d  %4d  %6d  %s\n", i, slot.Func, slot.Params, p.render(funcStyle, slot.Class.String()))
	}
}

func (p *printer) result(args trampoline.CallArguments, res uint32, err error) {
	call := fmt.Sprintf("slot %d(%d, %d, %d)", args.Target, args.Arg1, args.Arg2, args.Arg3)
	if err != nil {
		p.printf("%s %s\n", call, p.render(errorStyle, "error: "+err.Error()))
		return
	}
	p.printf("%s = %s\n", call, p.render(resultStyle, fmt.Sprintf("%d (%#x)", res, res)))
}

func formatSlot(i uint32, s trampoline.Slot) string {
	return fmt.Sprintf("slot %-3d func %-4d %d params  %s", i, s.Func, s.Params, s.Class)
}
