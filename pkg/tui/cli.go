// Package tui renders terminal output for the logprune CLI.
// Plain streaming output, no full-screen UI.
package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().PaddingRight(2)
)

const rule = "  ─────────────────────────────────────"

// Printer writes styled output to one stream.
type Printer struct {
	out io.Writer
}

// NewPrinter returns a Printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Header prints the program banner.
func (p *Printer) Header(version string) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, titleStyle.Render("  LOGPRUNE")+mutedStyle.Render(" "+version))
	fmt.Fprintln(p.out, mutedStyle.Render("  Entropy-guided activity filtering for event logs"))
	fmt.Fprintln(p.out)
}

// Section prints a section heading.
func (p *Printer) Section(title string) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, accentStyle.Render("▸ "+strings.ToUpper(title)))
}

// Field prints one "label: value" line.
func (p *Printer) Field(label, value string) {
	fmt.Fprintf(p.out, "  %s %s\n", mutedStyle.Render(label+":"), titleStyle.Render(value))
}

// Path prints a highlighted file or object location.
func (p *Printer) Path(label, path string) {
	fmt.Fprintf(p.out, "  %s %s\n", mutedStyle.Render(label+":"), codeStyle.Render(path))
}

// Rule prints a separator line.
func (p *Printer) Rule() {
	fmt.Fprintln(p.out, mutedStyle.Render(rule))
}

// Success prints a completion line.
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, successStyle.Render("  ✓ "+msg))
}

// Warn prints a highlighted notice.
func (p *Printer) Warn(msg string) {
	fmt.Fprintln(p.out, accentStyle.Render("  ! ")+msg)
}

// Error prints a failure line.
func (p *Printer) Error(err error) {
	fmt.Fprintln(p.out, accentStyle.Render("  ✗ ")+err.Error())
}

// Table prints rows under a header with padded columns. Cells are measured
// with lipgloss so styled content lines up.
func (p *Printer) Table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := range header {
			if i < len(row) && lipgloss.Width(row[i]) > widths[i] {
				widths[i] = lipgloss.Width(row[i])
			}
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(header))
		for i := range header {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = cellStyle.Width(widths[i] + 2).Render(style.Render(cell))
		}
		return "  " + strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, parts...), " ")
	}

	fmt.Fprintln(p.out, line(header, mutedStyle))
	for _, row := range rows {
		fmt.Fprintln(p.out, line(row, lipgloss.NewStyle()))
	}
}

// RunSummary holds the figures printed after a filter run.
type RunSummary struct {
	Events      int64
	Traces      int
	Activities  int
	Projections int
	InputSize   int64
	Duration    time.Duration
	Cached      bool
}

// Summary prints the results of a filter run.
func (p *Printer) Summary(s RunSummary) {
	p.Success("FILTER COMPLETE")
	fmt.Fprintln(p.out)
	p.Field("Events", FormatNumber(s.Events))
	p.Field("Traces", FormatNumber(int64(s.Traces)))
	p.Field("Activities", fmt.Sprintf("%d", s.Activities))
	p.Field("Projections", fmt.Sprintf("%d", s.Projections))
	if s.InputSize > 0 {
		p.Field("Input", FormatBytes(s.InputSize))
	}
	if s.Duration > 0 {
		timing := FormatDuration(s.Duration)
		if s.Cached {
			timing += mutedStyle.Render(" (cached result)")
		} else if s.Events > 0 {
			rate := float64(s.Events) / s.Duration.Seconds()
			timing += mutedStyle.Render(fmt.Sprintf(" (%s events/sec)", FormatNumber(int64(rate))))
		}
		fmt.Fprintf(p.out, "  %s %s\n", mutedStyle.Render("Time:"), timing)
	}
	fmt.Fprintln(p.out)
}

// Highlight renders s in the accent style.
func Highlight(s string) string {
	return accentStyle.Render(s)
}

// Muted renders s in the muted style.
func Muted(s string) string {
	return mutedStyle.Render(s)
}

// FormatBytes formats a byte count with a binary unit.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

// FormatNumber abbreviates large counts.
func FormatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// ShowProgress creates a progress bar for processing. A negative total
// renders a spinner-style bar for unknown sizes.
func ShowProgress(out io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
