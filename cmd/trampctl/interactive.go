package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/wasm-trampoline/engine"
	"github.com/wippyai/wasm-trampoline/trampoline"
)

type interactiveModel struct {
	err      error
	eng      *engine.WazeroEngine
	sess     *engine.Session
	opts     options
	result   string
	slots    []slotInfo
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type slotInfo struct {
	slot  trampoline.Slot
	index uint32
}

type modelState int

const (
	stateSelectSlot modelState = iota
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(opts options) *interactiveModel {
	return &interactiveModel{
		opts:  opts,
		state: stateSelectSlot,
	}
}

type loadedMsg struct {
	err   error
	eng   *engine.WazeroEngine
	sess  *engine.Session
	slots []slotInfo
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadGuest
}

func (m *interactiveModel) loadGuest() tea.Msg {
	// guest output would corrupt the alternate screen
	opts := m.opts
	opts.quiet = true
	eng, sess, err := setup(context.Background(), opts)
	if err != nil {
		return loadedMsg{err: err}
	}

	idx := sess.Slots()
	var slots []slotInfo
	for i := uint32(0); i < idx.Len(); i++ {
		s := idx.Lookup(i)
		if s.Class == trampoline.ClassEmpty {
			continue
		}
		slots = append(slots, slotInfo{index: i, slot: s})
	}
	return loadedMsg{eng: eng, sess: sess, slots: slots}
}

func (m *interactiveModel) close() {
	ctx := context.Background()
	if m.sess != nil {
		_ = m.sess.Close(ctx)
	}
	if m.eng != nil {
		_ = m.eng.Close(ctx)
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectSlot && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectSlot && m.selected < len(m.slots)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectSlot:
				if len(m.slots) == 0 {
					return m, nil
				}
				m.prepareInputs()
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				return m, m.callSlot

			case stateShowResult:
				m.state = stateSelectSlot
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectSlot
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectSlot
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.eng = msg.eng
		m.sess = msg.sess
		m.slots = msg.slots

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	m.inputs = make([]textinput.Model, trampoline.MaxArity)
	for i := range m.inputs {
		ti := textinput.New()
		ti.Placeholder = "0"
		ti.Prompt = fmt.Sprintf("a%d: ", i+1)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callSlot() tea.Msg {
	if m.sess == nil {
		return callResultMsg{err: fmt.Errorf("guest not loaded")}
	}

	vals := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		v := strings.TrimSpace(input.Value())
		if v == "" {
			v = "0"
		}
		vals[i] = v
	}

	target := m.slots[m.selected].index
	args, err := parseArgList(target, vals, sessionWriter{m.sess})
	if err != nil {
		return callResultMsg{err: err}
	}
	res, err := m.sess.Call(context.Background(), args)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: fmt.Sprintf("%d (%#x)", res, res)}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.sess == nil {
		return "Loading guest..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("trampctl"))
	b.WriteString(" ")
	b.WriteString(m.opts.wasmFile)
	b.WriteString(" ")
	b.WriteString(labelStyle.Render(m.sess.Outcome().String()))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectSlot:
		if len(m.slots) == 0 {
			b.WriteString("The guest's indirect table has no populated slots.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a table slot to call:\n\n")
		for i, s := range m.slots {
			line := formatSlot(s.index, s.slot)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + funcStyle.Render(line))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		s := m.slots[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(formatSlot(s.index, s.slot))))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render(`numbers or "strings" • tab next field • enter call • esc back`))

	case stateShowResult:
		s := m.slots[m.selected]
		b.WriteString(fmt.Sprintf("Result of slot %s:\n\n", funcStyle.Render(fmt.Sprint(s.index))))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func runInteractive(opts options) error {
	p := tea.NewProgram(newInteractiveModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
