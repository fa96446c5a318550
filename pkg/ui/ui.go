// Package ui renders the user-facing progress output: the ::/--> step
// hierarchy on stdout and error details on stderr. All output is suppressed
// in stdin mode so the rendered document stays the only thing on stdout.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
)

var (
	stepMarkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	stepTextStyle    = lipgloss.NewStyle().Bold(true)
	substepMarkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	detailStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	successStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
)

// Printer writes formatted progress messages.
type Printer struct {
	out   io.Writer
	err   io.Writer
	color bool
	quiet bool
}

// New builds a Printer. Color is applied only when requested and stdout is
// a terminal; quiet silences stdout entirely (stdin render mode).
func New(color, quiet bool) *Printer {
	return &Printer{
		out:   os.Stdout,
		err:   os.Stderr,
		color: color && isatty.IsTerminal(os.Stdout.Fd()),
		quiet: quiet,
	}
}

// NewWriterPrinter builds a Printer against explicit writers, for tests.
func NewWriterPrinter(out, err io.Writer, color bool) *Printer {
	return &Printer{out: out, err: err, color: color}
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

// Step prints a top-level pipeline step.
func (p *Printer) Step(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(p.out, "%s %s\n", p.style(stepMarkStyle, "::"), p.style(stepTextStyle, msg))
}

// Substep prints a second-level progress line.
func (p *Printer) Substep(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(p.out, "  %s %s\n", p.style(substepMarkStyle, "-->"), msg)
}

// Detail prints an indented informational line.
func (p *Printer) Detail(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "      %s\n", p.style(detailStyle, fmt.Sprintf(format, args...)))
}

// Success prints a bold success line.
func (p *Printer) Success(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.style(successStyle, "::"), fmt.Sprintf(format, args...))
}

// Error prints an indented error detail to stderr. Stderr stays usable in
// stdin mode without corrupting the rendered document on stdout.
func (p *Printer) Error(format string, args ...interface{}) {
	fmt.Fprintf(p.err, "      %s\n", p.style(errorStyle, fmt.Sprintf(format, args...)))
}

// Table renders a header plus rows as an aligned table, used for the
// synchronization report.
func (p *Printer) Table(header []string, rows [][]string) {
	if p.quiet || len(rows) == 0 {
		return
	}
	data := pterm.TableData{header}
	data = append(data, rows...)
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		// Fall back to plain lines rather than dropping the report.
		for _, row := range rows {
			p.Detail("%v", row)
		}
		return
	}
	fmt.Fprintln(p.out, rendered)
}
