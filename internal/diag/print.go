package diag

import (
	"fmt"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/mitchellh/colorstring"
	wordwrap "github.com/mitchellh/go-wordwrap"
)

// Printer renders Diagnostics as caret-underlined source excerpts.
type Printer struct {
	// Source is the concatenated session source, split into lines,
	// indexed the same way Range positions are (1-indexed lines).
	Source []string
	Color  bool
	Width  uint
}

func NewPrinter(source []string) *Printer {
	return &Printer{Source: source, Color: true, Width: 100}
}

func (p *Printer) line(n int) string {
	if n < 1 || n > len(p.Source) {
		return ""
	}
	return p.Source[n-1]
}

// Render produces the full pretty-printed form of d, including any
// secondary-range notes.
func (p *Printer) Render(d Diagnostic) string {
	var b strings.Builder

	tag := "[red]error"
	if d.Severity == SeverityWarning {
		tag = "[yellow]warning"
	}
	header := fmt.Sprintf("%s[reset][bold]: %s", tag, d.Message)
	if d.Code != "" {
		header = fmt.Sprintf("%s[reset][bold]: [%s] %s", tag, d.Code, d.Message)
	}
	b.WriteString(p.colorize(header))
	b.WriteString("\n")

	if !d.Range.IsNone() {
		b.WriteString(p.excerpt(d.Range, ""))
	}

	for _, n := range d.Notes {
		b.WriteString(p.colorize(fmt.Sprintf("[cyan]%s[reset]\n", n.Label)))
		if !n.Range.IsNone() {
			b.WriteString(p.excerpt(n.Range, "  "))
		}
	}

	if d.Suggest != "" {
		b.WriteString(p.colorize(fmt.Sprintf("[cyan]did you mean[reset] %q?\n", d.Suggest)))
	}

	return wordwrap.WrapString(b.String(), p.Width)
}

func (p *Printer) colorize(s string) string {
	if !p.Color {
		return colorstring.Color(stripColorTags(s))
	}
	return colorstring.Color(s)
}

func stripColorTags(s string) string {
	// colorstring.Color with Disable=true would strip codes but still
	// require valid tags; run through it with colors disabled instead.
	c := colorstring.Colorize{Colors: colorstring.DefaultColors, Disable: true, Reset: true}
	return c.Color(s)
}

func (p *Printer) excerpt(r Range, indent string) string {
	var b strings.Builder
	line := p.line(r.Start.Line)
	lineNoWidth := len(fmt.Sprintf("%d", r.Start.Line))

	b.WriteString(fmt.Sprintf("%s%*d | %s\n", indent, lineNoWidth, r.Start.Line, line))

	underlineStart := r.Start.Col
	underlineEnd := r.End.Col
	if r.End.Line != r.Start.Line || underlineEnd <= underlineStart {
		underlineEnd = underlineStart + 1
	}

	pad := strings.Repeat(" ", lineNoWidth+3+underlineStart-1)
	carets := strings.Repeat("^", max(1, underlineEnd-underlineStart))
	b.WriteString(fmt.Sprintf("%s%s[red]%s[reset]\n", indent, pad, carets))

	return b.String()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Suggestion returns the candidate in known closest (by edit distance)
// to name, or "" if none is within a reasonable threshold. Used to
// populate Diagnostic.Suggest for UndefinedVariable/UnknownField errors.
func Suggestion(name string, known []string) string {
	best := ""
	bestDist := -1
	for _, k := range known {
		d := levenshtein.Distance(name, k)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = k
		}
	}
	if bestDist < 0 || bestDist > 3 {
		return ""
	}
	return best
}
