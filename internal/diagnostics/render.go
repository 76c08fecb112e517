package diagnostics

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Renderer writes diagnostics to a console. Styling is applied only when
// the destination is a terminal.
type Renderer struct {
	out       io.Writer
	color     bool
	errStyle  lipgloss.Style
	warnStyle lipgloss.Style
	locStyle  lipgloss.Style
	helpStyle lipgloss.Style
}

// NewRenderer creates a Renderer for the given writer. Color is enabled
// when the writer is a TTY.
func NewRenderer(out io.Writer) *Renderer {
	color := false
	if f, ok := out.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Renderer{
		out:       out,
		color:     color,
		errStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warnStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		locStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		helpStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// Render writes every diagnostic followed by an error tally line.
func (r *Renderer) Render(diags []Diagnostic) {
	errs := 0
	for _, d := range diags {
		r.renderOne(d)
		if d.Severity == SeverityError {
			errs++
		}
	}
	if errs > 0 {
		fmt.Fprintf(r.out, "\n%d error(s) emitted\n", errs)
	}
}

func (r *Renderer) renderOne(d Diagnostic) {
	label := d.Severity.String()
	if r.color {
		if d.Severity == SeverityError {
			label = r.errStyle.Render(label)
		} else {
			label = r.warnStyle.Render(label)
		}
	}
	fmt.Fprintf(r.out, "%s[%s]: %s\n", label, d.Code, d.Message)

	loc := d.Location.String()
	if r.color {
		loc = r.locStyle.Render(loc)
	}
	fmt.Fprintf(r.out, "  --> %s\n", loc)
	for _, rel := range d.Related {
		relStr := rel.String()
		if r.color {
			relStr = r.locStyle.Render(relStr)
		}
		fmt.Fprintf(r.out, "  ::: %s\n", relStr)
	}
	if d.Help != "" {
		help := "help: " + d.Help
		if r.color {
			help = r.helpStyle.Render(help)
		}
		fmt.Fprintf(r.out, "  %s\n", help)
	}
}
