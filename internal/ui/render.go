// Package ui renders the interactive session on the console.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// --- Styles ---

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	titleStyle  = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230")).
			Bold(true)
	toolStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Italic(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	spinStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

const defaultWidth = 80

// Renderer writes answers to out and diagnostics to errOut. Markdown and the
// busy spinner only kick in when the respective writer is a terminal.
type Renderer struct {
	out    io.Writer
	errOut io.Writer

	markdown *glamour.TermRenderer
	spinner  bool
}

func NewRenderer(out, errOut io.Writer, markdown bool) *Renderer {
	r := &Renderer{
		out:     out,
		errOut:  errOut,
		spinner: isTerminal(errOut),
	}
	if markdown && isTerminal(out) {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(terminalWidth(out)),
		)
		if err == nil {
			r.markdown = md
		}
	}
	return r
}

func (r *Renderer) Banner(title string, details ...string) {
	fmt.Fprintln(r.out, titleStyle.Render(" "+title+" "))
	for _, d := range details {
		fmt.Fprintln(r.out, helpStyle.Render(d))
	}
}

func (r *Renderer) Prompt() {
	fmt.Fprint(r.out, promptStyle.Render(">")+" ")
}

func (r *Renderer) Answer(text string) {
	if r.markdown != nil {
		if rendered, err := r.markdown.Render(text); err == nil {
			fmt.Fprint(r.out, rendered)
			return
		}
	}
	fmt.Fprintln(r.out, strings.TrimRight(text, "\n"))
}

func (r *Renderer) ToolCall(name string) {
	fmt.Fprintln(r.errOut, toolStyle.Render("→ calling tool "+name))
}

func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.errOut, errorStyle.Render("error: "+err.Error()))
}

func (r *Renderer) Println(s string) {
	fmt.Fprintln(r.out, s)
}

// Busy shows a spinner labelled label until the returned stop is called.
// Without a terminal it does nothing.
func (r *Renderer) Busy(label string) (stop func()) {
	if !r.spinner {
		return func() {}
	}
	return startSpinner(r.errOut, label)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}
