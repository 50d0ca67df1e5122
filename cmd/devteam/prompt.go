package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// errCancelled is returned when the operator leaves a prompt with esc or
// ctrl+c.
var errCancelled = errors.New("prompt cancelled")

// prompter asks the operator for input.
type prompter interface {
	Text(title, detail, placeholder string) (string, error)
	Choose(title, detail string, options []choice) (string, error)
}

// choice is one selectable answer.
type choice struct {
	value string
	label string
	help  string
}

func (c choice) Title() string       { return c.label }
func (c choice) Description() string { return c.help }
func (c choice) FilterValue() string { return c.label }

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#6BCB77")).
			MarginBottom(1)
	detailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4D96FF")).
			Padding(0, 1)
	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1)
)

// textModel collects one line of text.
type textModel struct {
	title     string
	detail    string
	input     textinput.Model
	done      bool
	cancelled bool
}

func newTextModel(title, detail, placeholder string) textModel {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 2000
	ti.Width = 72
	ti.Focus()
	return textModel{title: title, detail: detail, input: ti}
}

func (m textModel) Init() tea.Cmd { return textinput.Blink }

func (m textModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		case tea.KeyEsc, tea.KeyCtrlC:
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m textModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	if m.detail != "" {
		b.WriteString(detailStyle.Render(m.detail))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString(hintStyle.Render("enter to submit, esc to cancel"))
	return b.String()
}

// choiceModel picks one of a fixed set of answers.
type choiceModel struct {
	title     string
	detail    string
	list      list.Model
	chosen    string
	cancelled bool
}

func newChoiceModel(title, detail string, options []choice) choiceModel {
	items := make([]list.Item, len(options))
	for i, o := range options {
		items[i] = o
	}
	delegate := list.NewDefaultDelegate()
	delegate.SetHeight(2)
	delegate.SetSpacing(0)
	l := list.New(items, delegate, 72, len(options)*2+4)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	return choiceModel{title: title, detail: detail, list: l}
}

func (m choiceModel) Init() tea.Cmd { return nil }

func (m choiceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			if c, ok := m.list.SelectedItem().(choice); ok {
				m.chosen = c.value
			}
			return m, tea.Quit
		case tea.KeyEsc, tea.KeyCtrlC:
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m choiceModel) View() string {
	if m.chosen != "" || m.cancelled {
		return ""
	}
	var b strings.Builder
	if m.detail != "" {
		b.WriteString(detailStyle.Render(m.detail))
		b.WriteString("\n")
	}
	b.WriteString(m.list.View())
	b.WriteString(hintStyle.Render("up/down to move, enter to choose, esc to cancel"))
	return b.String()
}

// teaPrompter runs each prompt as a small bubbletea program.
type teaPrompter struct {
	in  io.Reader
	out io.Writer
}

func (p teaPrompter) run(m tea.Model) (tea.Model, error) {
	final, err := tea.NewProgram(m, tea.WithInput(p.in), tea.WithOutput(p.out)).Run()
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	return final, nil
}

func (p teaPrompter) Text(title, detail, placeholder string) (string, error) {
	final, err := p.run(newTextModel(title, detail, placeholder))
	if err != nil {
		return "", err
	}
	m := final.(textModel)
	if m.cancelled {
		return "", errCancelled
	}
	return strings.TrimSpace(m.input.Value()), nil
}

func (p teaPrompter) Choose(title, detail string, options []choice) (string, error) {
	final, err := p.run(newChoiceModel(title, detail, options))
	if err != nil {
		return "", err
	}
	m := final.(choiceModel)
	if m.cancelled {
		return "", errCancelled
	}
	return m.chosen, nil
}
