package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"github.com/modforge/scriptrt/manifest"
	"github.com/modforge/scriptrt/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	manifestPath string

	inst    *runtime.Instance
	mf      *manifest.Manifest
	watcher *fsnotify.Watcher

	exports  []string
	selected int
	state    modelState

	argsInput textinput.Model
	retInput  textinput.Model
	focusRet  bool

	logView  viewport.Model
	logLines []string

	result string
	err    error
}

type loadedMsg struct {
	err     error
	inst    *runtime.Instance
	mf      *manifest.Manifest
	exports []string
	caps    []string
}

type callResultMsg struct {
	err    error
	result string
}

type sourceChangedMsg struct{}

func newInteractiveModel(manifestPath string) *interactiveModel {
	args := textinput.New()
	args.Placeholder = "i32:2 i32:3"
	args.Prompt = "args: "
	args.Width = 48

	ret := textinput.New()
	ret.Placeholder = "i32"
	ret.Prompt = "ret:  "
	ret.Width = 16

	return &interactiveModel{
		manifestPath: manifestPath,
		argsInput:    args,
		retInput:     ret,
		logView:      viewport.New(72, 8),
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadUnit
}

func (m *interactiveModel) loadUnit() tea.Msg {
	ctx := context.Background()

	inst, _, mf, err := loadUnit(ctx, m.manifestPath)
	if err != nil {
		return loadedMsg{err: err}
	}
	exports, err := inst.Exports()
	if err != nil {
		inst.Close(ctx)
		return loadedMsg{err: err}
	}
	return loadedMsg{inst: inst, mf: mf, exports: exports, caps: mf.Capabilities}
}

// reload swaps the unit in place, keeping the same instance and registry.
func (m *interactiveModel) reload() tea.Msg {
	ctx := context.Background()

	source, err := m.mf.ReadSource()
	if err != nil {
		return loadedMsg{err: err}
	}
	_, err = m.inst.LoadScript(ctx, runtime.Source{
		Locator: m.mf.SourcePath(),
		Bytes:   source,
	}, m.mf.Capabilities)
	if err != nil {
		return loadedMsg{err: err}
	}
	exports, err := m.inst.Exports()
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{inst: m.inst, mf: m.mf, exports: exports, caps: m.mf.Capabilities}
}

func (m *interactiveModel) watchSource() tea.Cmd {
	if m.watcher != nil || m.mf == nil || !m.mf.Watch {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		m.appendLog("watch: " + err.Error())
		return nil
	}
	if err := w.Add(m.mf.SourcePath()); err != nil {
		m.appendLog("watch: " + err.Error())
		w.Close()
		return nil
	}
	m.watcher = w
	return m.waitForChange
}

func (m *interactiveModel) waitForChange() tea.Msg {
	for {
		select {
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
				return sourceChangedMsg{}
			}
		case _, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

func (m *interactiveModel) appendLog(line string) {
	m.logLines = append(m.logLines, line)
	if len(m.logLines) > 200 {
		m.logLines = m.logLines[len(m.logLines)-200:]
	}
	m.logView.SetContent(strings.Join(m.logLines, "\n"))
	m.logView.GotoBottom()
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.logView.Width = msg.Width - 4
		if msg.Height > 16 {
			m.logView.Height = msg.Height / 3
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateInputArgs && msg.String() == "q" {
				break
			}
			m.close()
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.exports)-1 {
				m.selected++
			}

		case "r":
			if m.state == stateSelectFunc && m.inst != nil {
				m.appendLog("reloading " + m.mf.SourcePath())
				return m, m.reload
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.exports) == 0 {
					break
				}
				m.argsInput.SetValue("")
				m.retInput.SetValue("")
				m.focusRet = false
				m.argsInput.Focus()
				m.retInput.Blur()
				m.state = stateInputArgs
			case stateInputArgs:
				return m, m.callFunction
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs {
				m.focusRet = !m.focusRet
				if m.focusRet {
					m.argsInput.Blur()
					m.retInput.Focus()
				} else {
					m.retInput.Blur()
					m.argsInput.Focus()
				}
			}

		case "esc":
			if m.state != stateSelectFunc {
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.appendLog(errorStyle.Render(msg.err.Error()))
			return m, nil
		}
		m.inst = msg.inst
		m.mf = msg.mf
		m.exports = msg.exports
		m.err = nil
		if m.selected >= len(m.exports) {
			m.selected = 0
		}
		m.appendLog(fmt.Sprintf("loaded %s (%d exports, caps %s)",
			m.mf.SourcePath(), len(m.exports), strings.Join(msg.caps, ",")))
		return m, m.watchSource()

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
		if msg.err != nil {
			m.appendLog(errorStyle.Render(msg.err.Error()))
		} else {
			m.appendLog(m.exports[m.selected] + " -> " + msg.result)
		}

	case sourceChangedMsg:
		m.appendLog("source changed, reloading")
		return m, tea.Batch(m.reload, m.waitForChange)
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		var cmd tea.Cmd
		m.argsInput, cmd = m.argsInput.Update(msg)
		cmds = append(cmds, cmd)
		m.retInput, cmd = m.retInput.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) callFunction() tea.Msg {
	ctx := context.Background()

	args, err := parseValues(m.argsInput.Value())
	if err != nil {
		return callResultMsg{err: err}
	}
	retStr := m.retInput.Value()
	if retStr == "" {
		retStr = "void"
	}
	ret, err := parseKind(retStr)
	if err != nil {
		return callResultMsg{err: err}
	}

	h, err := m.inst.CreateParams(len(args))
	if err != nil {
		return callResultMsg{err: err}
	}
	defer m.inst.DestroyParams(h)
	for _, v := range args {
		if err := m.inst.PushParam(h, v); err != nil {
			return callResultMsg{err: err}
		}
	}

	result, err := m.inst.Call(ctx, m.exports[m.selected], h, ret)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: result.String()}
}

func (m *interactiveModel) close() {
	if m.watcher != nil {
		m.watcher.Close()
	}
	if m.inst != nil {
		m.inst.Close(context.Background())
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.inst == nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.inst == nil {
		return "Loading unit..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("scriptrt"))
	b.WriteString(" ")
	b.WriteString(m.mf.SourcePath())
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a function to call:\n\n")
		for i, name := range m.exports {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + name))
			} else {
				b.WriteString("  " + funcStyle.Render(name))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • r reload • q quit"))

	case stateInputArgs:
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(m.exports[m.selected])))
		b.WriteString(m.argsInput.View())
		b.WriteString("\n")
		b.WriteString(m.retInput.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("tab switch field • enter call • esc back"))

	case stateShowResult:
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(m.exports[m.selected])))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("── log ──"))
	b.WriteString("\n")
	b.WriteString(m.logView.View())
	return b.String()
}

func runInteractive(manifestPath string) error {
	p := tea.NewProgram(newInteractiveModel(manifestPath), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
