package check

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Semantic colors following nextest/vitest conventions.
var (
	colorPass   = lipgloss.Color("#10b981") // green-500
	colorFail   = lipgloss.Color("#ef4444") // red-500
	colorSkip   = lipgloss.Color("#eab308") // yellow-500
	colorDim    = lipgloss.Color("#6b7280") // gray-500
	colorAccent = lipgloss.Color("#3b82f6") // blue-500
)

// Styles holds the lipgloss styles used by the Reporter.
type Styles struct {
	Pass     lipgloss.Style
	Fail     lipgloss.Style
	Skip     lipgloss.Style
	Dim      lipgloss.Style
	Bold     lipgloss.Style
	Name     lipgloss.Style
	Duration lipgloss.Style

	SymbolPass    string
	SymbolFail    string
	SymbolSkip    string
	SymbolPointer string

	// Fixed width for status alignment
	StatusWidth int
}

// DefaultStyles returns colored styles rendered by r.
func DefaultStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Pass:     r.NewStyle().Foreground(colorPass).Bold(true),
		Fail:     r.NewStyle().Foreground(colorFail).Bold(true),
		Skip:     r.NewStyle().Foreground(colorSkip).Bold(true),
		Dim:      r.NewStyle().Foreground(colorDim),
		Bold:     r.NewStyle().Bold(true),
		Name:     r.NewStyle().Foreground(colorAccent),
		Duration: r.NewStyle().Foreground(colorDim),

		SymbolPass:    "✓",
		SymbolFail:    "✗",
		SymbolSkip:    "↓",
		SymbolPointer: "❯",

		StatusWidth: 6,
	}
}

// PlainStyles returns unstyled ASCII output for pipes and files. A renderer
// over a non-terminal writer drops all colors.
func PlainStyles() *Styles {
	r := lipgloss.NewRenderer(io.Discard)
	s := DefaultStyles(r)

	s.SymbolPass = "ok"
	s.SymbolFail = "!!"
	s.SymbolSkip = "--"
	s.SymbolPointer = ">"

	return s
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Reporter prints case results line by line.
type Reporter struct {
	w       io.Writer
	styles  *Styles
	verbose bool
}

// NewReporter returns a Reporter writing to w, colored when w is a terminal.
func NewReporter(w io.Writer, verbose bool) *Reporter {
	styles := PlainStyles()
	if IsTerminal(w) {
		styles = DefaultStyles(lipgloss.NewRenderer(w))
	}

	return &Reporter{w: w, styles: styles, verbose: verbose}
}

// Case prints one case and, when it failed, the failing expectation.
func (p *Reporter) Case(r CaseResult) {
	s := p.styles

	var status, symbol string

	switch r.Status {
	case StatusPass:
		if !p.verbose {
			return
		}

		status, symbol = s.Pass.Render(pad(r.Status.String(), s.StatusWidth)), s.SymbolPass
	case StatusFail:
		status, symbol = s.Fail.Render(pad(r.Status.String(), s.StatusWidth)), s.SymbolFail
	case StatusSkip:
		if !p.verbose {
			return
		}

		status, symbol = s.Skip.Render(pad(r.Status.String(), s.StatusWidth)), s.SymbolSkip
	}

	_, _ = fmt.Fprintf(p.w, "%s %s %s %s\n", symbol, status, s.Name.Render(r.Name), s.Duration.Render(formatDuration(r.Duration)))

	if f := r.Failure(); f != nil {
		msg := "expected " + f.Expression
		if f.Error != nil {
			msg = f.Error.Error()
		}

		_, _ = fmt.Fprintf(p.w, "  %s %s\n", s.Dim.Render(s.SymbolPointer), msg)
	}
}

// Summary prints the totals of a run.
func (p *Reporter) Summary(r *Result) {
	s := p.styles

	parts := []string{s.Pass.Render(fmt.Sprintf("%d passed", r.Passed))}
	if r.Failed > 0 {
		parts = append(parts, s.Fail.Render(fmt.Sprintf("%d failed", r.Failed)))
	}

	if r.Skipped > 0 {
		parts = append(parts, s.Skip.Render(fmt.Sprintf("%d skipped", r.Skipped)))
	}

	_, _ = fmt.Fprintf(p.w, "%s %s %s\n",
		s.Bold.Render("Summary:"), strings.Join(parts, ", "), s.Duration.Render(formatDuration(r.Duration)))
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}

	return s + strings.Repeat(" ", width-len(s))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
