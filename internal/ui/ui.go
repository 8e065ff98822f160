// Package ui renders command output for humans: styled metadata, download
// summaries and a progress spinner that only appears on a terminal.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"tubefetch/internal/media"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(11)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	spinStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

// RenderMetadata formats resolved metadata as a short block.
func RenderMetadata(md *media.VideoMetadata) string {
	qualities := make([]string, 0, len(md.Qualities))
	for _, q := range md.Qualities {
		qualities = append(qualities, q.Value)
	}

	lines := []string{
		titleStyle.Render(md.Title),
		row("id", md.ID),
		row("uploader", md.Uploader),
		row("duration", md.DurationString),
		row("views", humanize.Comma(md.ViewCount)),
		row("qualities", strings.Join(qualities, ", ")),
		row("url", md.URL),
	}
	return strings.Join(lines, "\n") + "\n"
}

// RenderResult summarises a finished download delivered to dest.
func RenderResult(res *media.DownloadResult, dest string) string {
	return fmt.Sprintf("%s %s\n%s\n%s\n",
		okStyle.Render("✓"),
		titleStyle.Render(res.Title),
		row("saved to", dest),
		row("size", fmt.Sprintf("%s (%s, %s)", humanize.IBytes(uint64(res.Size)), res.Ext, res.ContentType)),
	)
}

// RenderError formats an error line.
func RenderError(err error) string {
	return errStyle.Render("✗") + " " + err.Error() + "\n"
}

type doneMsg struct{}

type spinnerModel struct {
	spinner spinner.Model
	label   string
	done    bool
}

func newSpinnerModel(label string) spinnerModel {
	return spinnerModel{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinStyle)),
		label:   label,
	}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.done = true
		return m, tea.Quit
	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
}

func (m spinnerModel) View() string {
	if m.done {
		return ""
	}
	return m.spinner.View() + " " + m.label + "\n"
}

// RunWithSpinner runs fn while showing a spinner on out. When out is not a
// terminal fn runs without any decoration. Signals are left to the caller,
// which is expected to cancel fn through its context.
func RunWithSpinner(out *os.File, label string, fn func() error) error {
	if !IsTerminal(out) {
		return fn()
	}

	p := tea.NewProgram(newSpinnerModel(label),
		tea.WithOutput(out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
		p.Send(doneMsg{})
	}()

	// The spinner is cosmetic; a rendering failure must not hide fn's result.
	_, _ = p.Run()
	return <-errCh
}
