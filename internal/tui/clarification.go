package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/loom/pkg/models"
)

// ClarificationPrompt asks the user to answer one clarification request.
type ClarificationPrompt struct {
	request   *models.ClarificationRequest
	input     textinput.Model
	width     int
	reply     string
	submitted bool
	cancelled bool
}

// NewClarificationPrompt creates a prompt for req.
func NewClarificationPrompt(req *models.ClarificationRequest) *ClarificationPrompt {
	ti := textinput.New()
	ti.Placeholder = "Type your answer and press Enter..."
	if len(req.Missing) > 0 {
		ti.Placeholder = req.Missing[0]
	}
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	return &ClarificationPrompt{
		request: req,
		input:   ti,
		width:   80,
	}
}

// Init implements tea.Model.
func (p *ClarificationPrompt) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (p *ClarificationPrompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.SetWidth(msg.Width)
		return p, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			text := strings.TrimSpace(p.input.Value())
			if text == "" {
				return p, nil
			}
			p.reply = text
			p.submitted = true
			return p, tea.Quit
		case tea.KeyEsc, tea.KeyCtrlC:
			p.cancelled = true
			return p, tea.Quit
		}
	}

	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

// View implements tea.Model.
func (p *ClarificationPrompt) View() string {
	if p.submitted || p.cancelled {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")). // Orange
		Bold(true)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("244")) // Gray

	promptStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(p.width - 2)

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Task %s needs input", p.request.TaskID)))
	b.WriteString("\n")
	b.WriteString(p.request.Prompt)
	b.WriteString("\n")
	if len(p.request.Missing) > 0 {
		b.WriteString(labelStyle.Render("missing: " + strings.Join(p.request.Missing, ", ")))
		b.WriteString("\n")
	}
	b.WriteString(promptStyle.Render("> "))
	b.WriteString(p.input.View())
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("enter to submit, esc to cancel"))

	return boxStyle.Render(b.String()) + "\n"
}

// SetWidth sets the width of the prompt box.
func (p *ClarificationPrompt) SetWidth(width int) {
	if width < 20 {
		width = 20
	}
	p.width = width
	p.input.Width = width - 8 // Account for border, padding and prompt
}

// Reply returns the submitted answer and whether one was submitted.
func (p *ClarificationPrompt) Reply() (string, bool) {
	return p.reply, p.submitted
}

// AskClarification runs the prompt as a full program and returns the reply.
// ok is false if the user cancelled.
func AskClarification(req *models.ClarificationRequest, opts ...tea.ProgramOption) (reply string, ok bool, err error) {
	prompt := NewClarificationPrompt(req)
	final, err := tea.NewProgram(prompt, opts...).Run()
	if err != nil {
		return "", false, fmt.Errorf("run clarification prompt: %w", err)
	}
	reply, ok = final.(*ClarificationPrompt).Reply()
	return reply, ok, nil
}
