package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rbql/pkg/rbqlio"
)

// model is the interactive REPL's Elm-architecture state, adapted from
// the teacher's pkg/ui.Model: a single-line textinput bubble in place of
// the teacher's multi-line textarea (RBQL queries here are one-liners),
// and a viewport in place of the teacher's result table, since output
// rows are pre-formatted delimited text rather than typed columns.
type model struct {
	input     textinput.Model
	result    viewport.Model
	spinner   spinner.Model
	executing bool

	inputPath string
	delim     string
	policy    rbqlio.Policy

	width, height int
	lastErr       *runResult
	lastElapsed   time.Duration
}

func newModel(inputPath, delim string, policy rbqlio.Policy) model {
	ti := textinput.New()
	ti.Placeholder = `SELECT a1 WHERE a2 == "x"`
	ti.Focus()
	ti.CharLimit = 2000
	ti.Width = 60

	vp := viewport.New(80, 15)
	vp.Style = resultPaneStyle

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return model{
		input:     ti,
		result:    vp,
		spinner:   sp,
		inputPath: inputPath,
		delim:     delim,
		policy:    policy,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

type queryDoneMsg struct {
	result  *runResult
	elapsed time.Duration
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = m.width - 10
		m.result.Width = m.width - 4
		m.result.Height = m.height - 10

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if m.executing {
				return m, nil
			}
			query := strings.TrimSpace(m.input.Value())
			if query == "" {
				return m, nil
			}
			m.executing = true
			return m, m.runCmd(query)
		}

	case queryDoneMsg:
		m.executing = false
		m.lastErr = nil
		m.lastElapsed = msg.elapsed
		if msg.result.failed() {
			m.lastErr = msg.result
		} else {
			m.result.SetContent(strings.Join(msg.result.rows, "\n"))
		}

	case spinner.TickMsg:
		if m.executing {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	if !m.executing {
		m.input, cmd = m.input.Update(msg)
	}
	var vpCmd tea.Cmd
	m.result, vpCmd = m.result.Update(msg)
	return m, tea.Batch(cmd, vpCmd)
}

func (m model) runCmd(query string) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		r := runQuery(query, m.inputPath, m.delim, m.policy)
		return queryDoneMsg{result: r, elapsed: time.Since(start)}
	}
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titlePaneStyle.Render("RBQL interactive demo") + "\n\n")
	b.WriteString(lipgloss.NewStyle().Foreground(textMuted).Render("source: "+m.inputPath) + "\n")
	b.WriteString(editorPaneStyle.Render(m.input.View()) + "\n")

	switch {
	case m.executing:
		b.WriteString(fmt.Sprintf("%s executing...\n", m.spinner.View()))
	case m.lastErr != nil:
		b.WriteString(errorPaneStyle.Render(fmt.Sprintf("[%s] %s", m.lastErr.errKind, m.lastErr.errMsg)) + "\n")
	default:
		b.WriteString(resultPaneStyle.Render(m.result.View()) + "\n")
	}

	if m.lastElapsed > 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(textMuted).Render(fmt.Sprintf("took %v", m.lastElapsed)))
	}

	return appPaneStyle.Render(b.String())
}
