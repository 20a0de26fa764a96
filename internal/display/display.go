// Package display renders accounts, communities and model text for the terminal.
package display

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/TobiSchelling/friendscout/internal/social"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	mutedStyle = lipgloss.NewStyle().Faint(true)
)

// Printer writes status lines and tables.
type Printer struct {
	out io.Writer
	err io.Writer
	md  *glamour.TermRenderer
}

// NewPrinter creates a printer. Markdown is rendered with glamour's
// plain style when style is empty.
func NewPrinter(out, errOut io.Writer, style string, width int) *Printer {
	if style == "" {
		style = "notty"
	}
	if width <= 0 {
		width = 80
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		md = nil
	}
	return &Printer{out: out, err: errOut, md: md}
}

// Title prints a section header.
func (p *Printer) Title(format string, args ...any) {
	fmt.Fprintln(p.out, titleStyle.Render(fmt.Sprintf(format, args...)))
}

// Info prints a plain line.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Muted prints a dimmed line.
func (p *Printer) Muted(format string, args ...any) {
	fmt.Fprintln(p.out, mutedStyle.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) Success(format string, args ...any) {
	color.New(color.FgGreen).Fprintf(p.out, "✓ "+format+"\n", args...)
}

func (p *Printer) Warning(format string, args ...any) {
	color.New(color.FgYellow).Fprintf(p.err, "⚠ "+format+"\n", args...)
}

func (p *Printer) Error(format string, args ...any) {
	color.New(color.FgRed).Fprintf(p.err, "✗ "+format+"\n", args...)
}

// Markdown prints model text, rendered when possible and verbatim otherwise.
func (p *Printer) Markdown(text string) {
	fmt.Fprintln(p.out, p.RenderMarkdown(text))
}

// RenderMarkdown returns text rendered for the terminal.
func (p *Printer) RenderMarkdown(text string) string {
	if p.md == nil {
		return text
	}
	out, err := p.md.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// Accounts prints a table of followed accounts.
func (p *Printer) Accounts(accounts []social.Account) {
	rows := make([][]string, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, []string{a.Handle, a.DisplayName, a.Platform.Title()})
	}
	renderTable(p.out, []string{"Handle", "Name", "Platform"}, rows)
}

// Communities prints a table of subscribed communities.
func (p *Printer) Communities(communities []social.Community) {
	rows := make([][]string, 0, len(communities))
	for _, c := range communities {
		rows = append(rows, []string{"r/" + c.Name, strconv.Itoa(c.Subscribers), c.Description})
	}
	renderTable(p.out, []string{"Community", "Subscribers", "Description"}, rows)
}

// Candidates prints a table of candidates with their post counts.
func (p *Printer) Candidates(candidates []social.Candidate) {
	rows := make([][]string, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, []string{c.Account.Handle, c.Account.DisplayName, c.Platform.Title(), strconv.Itoa(len(c.Posts))})
	}
	renderTable(p.out, []string{"Handle", "Name", "Platform", "Posts"}, rows)
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{Borders: tw.BorderNone}),
	)
	table.Header(header)
	table.Bulk(rows)
	table.Render()
}
