package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dotcommander/actionlib/internal/actions"
)

var (
	accentColor = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"}
	mutedColor  = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#6C6C6C"}
	warnColor   = lipgloss.AdaptiveColor{Light: "#C27C0E", Dark: "#F2B94B"}
	okColor     = lipgloss.AdaptiveColor{Light: "#2E8B57", Dark: "#5FD38D"}
)

// printer renders command output; styles degrade to plain text when w is
// not a terminal
type printer struct {
	w       io.Writer
	title   lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	warn    lipgloss.Style
	ok      lipgloss.Style
	code    lipgloss.Style
	heading lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	r := lipgloss.NewRenderer(w)
	return &printer{
		w:       w,
		title:   r.NewStyle().Bold(true).Foreground(accentColor),
		label:   r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(mutedColor),
		warn:    r.NewStyle().Foreground(warnColor).Bold(true),
		ok:      r.NewStyle().Foreground(okColor),
		code:    r.NewStyle().PaddingLeft(2),
		heading: r.NewStyle().Bold(true).Underline(true),
	}
}

func (p *printer) println(a ...any) {
	fmt.Fprintln(p.w, a...)
}

func (p *printer) printf(format string, a ...any) {
	fmt.Fprintf(p.w, format, a...)
}

func (p *printer) success(format string, a ...any) {
	p.println(p.ok.Render(fmt.Sprintf(format, a...)))
}

func (p *printer) warning(format string, a ...any) {
	p.println(p.warn.Render("warning: ") + fmt.Sprintf(format, a...))
}

// actionRow prints one line per action: short id, category, name, description
func (p *printer) actionRow(a actions.Action, nameWidth int) {
	desc := firstLine(a.Description)
	p.printf("%s  %s  %s  %s\n",
		p.muted.Render(a.ShortID()),
		p.label.Render(pad(a.Name, nameWidth)),
		p.muted.Render("["+a.Category+"]"),
		desc)
}

func (p *printer) actionDetail(a actions.Action) {
	p.println(p.title.Render(a.Name))
	p.printf("%s %s\n", p.label.Render("ID:"), a.ID)
	p.printf("%s %s\n", p.label.Render("Category:"), a.Category)
	if a.Description != "" {
		p.printf("%s %s\n", p.label.Render("Description:"), a.Description)
	}

	p.println()
	p.println(p.heading.Render("Code"))
	p.println(p.code.Render(orPlaceholder(a.Code)))

	p.println()
	p.println(p.heading.Render("Generated code"))
	p.println(p.code.Render(orPlaceholder(a.GeneratedCode)))
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(empty)"
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

func pad(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// mask hides all but the edges of a credential
func mask(secret string) string {
	switch {
	case secret == "":
		return "(not set)"
	case len(secret) <= 8:
		return strings.Repeat("*", len(secret))
	default:
		return secret[:4] + strings.Repeat("*", 8) + secret[len(secret)-4:]
	}
}
