package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ProgressSpinner shows a spinner while a long operation such as a portal lookup runs
type ProgressSpinner struct {
	out      io.Writer
	message  string
	animate  bool
	program  *tea.Program
	finished chan struct{}
}

// NewProgressSpinner creates a new progress spinner writing to out. Without
// animate it prints the message once instead.
func NewProgressSpinner(out io.Writer, message string, animate bool) *ProgressSpinner {
	return &ProgressSpinner{
		out:     out,
		message: message,
		animate: animate,
	}
}

// Start begins the spinner in a goroutine
func (p *ProgressSpinner) Start() {
	if !p.animate {
		fmt.Fprintf(p.out, "%s...\n", p.message)
		return
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	model := &spinnerModel{
		spinner: s,
		message: p.message,
		style:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}

	p.program = tea.NewProgram(model, tea.WithOutput(p.out), tea.WithInput(nil))
	p.finished = make(chan struct{})
	go func() {
		defer close(p.finished)
		_, _ = p.program.Run()
	}()
}

// Stop stops the spinner and waits for it to clear its line
func (p *ProgressSpinner) Stop() {
	if p.program == nil {
		return
	}
	p.program.Send(doneMsg{})
	<-p.finished
	p.program = nil
}

// WithSpinner runs fn while a spinner is shown
func WithSpinner(out io.Writer, message string, animate bool, fn func() error) error {
	p := NewProgressSpinner(out, message, animate)
	p.Start()
	defer p.Stop()
	return fn()
}

// spinnerModel implements the tea.Model interface for the spinner
type spinnerModel struct {
	spinner spinner.Model
	message string
	style   lipgloss.Style
	done    bool
}

type doneMsg struct{}

func (m *spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *spinnerModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), m.style.Render(m.message))
}
