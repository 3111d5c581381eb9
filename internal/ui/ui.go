// Package ui renders the command line output.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/hepwiki/wikibot/internal/history"
)

var (
	// Colors
	Primary = lipgloss.Color("#7C3AED") // Purple
	Success = lipgloss.Color("#10B981") // Green
	Muted   = lipgloss.Color("#6B7280") // Gray
	Warning = lipgloss.Color("#F59E0B") // Amber
	Error   = lipgloss.Color("#EF4444") // Red
)

// Printer writes styled lines to one output.
type Printer struct {
	w io.Writer

	title   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	key     lipgloss.Style
	muted   lipgloss.Style
	headers lipgloss.Style
}

// New returns a printer for w. Colors are dropped when w is not a
// terminal or NO_COLOR is set.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	if termenv.EnvNoColor() {
		r.SetColorProfile(termenv.Ascii)
	}

	return &Printer{
		w:       w,
		title:   r.NewStyle().Bold(true).Foreground(Primary),
		ok:      r.NewStyle().Foreground(Success),
		warn:    r.NewStyle().Foreground(Warning),
		fail:    r.NewStyle().Bold(true).Foreground(Error),
		key:     r.NewStyle().Foreground(Primary).Width(14),
		muted:   r.NewStyle().Foreground(Muted),
		headers: r.NewStyle().Bold(true).Underline(true),
	}
}

// Title prints a heading.
func (p *Printer) Title(format string, args ...any) {
	fmt.Fprintln(p.w, p.title.Render(fmt.Sprintf(format, args...)))
}

// OK prints a success line.
func (p *Printer) OK(format string, args ...any) {
	fmt.Fprintln(p.w, p.ok.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintln(p.w, p.warn.Render("! "+fmt.Sprintf(format, args...)))
}

// Fail prints an error line.
func (p *Printer) Fail(format string, args ...any) {
	fmt.Fprintln(p.w, p.fail.Render("✗ "+fmt.Sprintf(format, args...)))
}

// KV prints an aligned key/value pair.
func (p *Printer) KV(key string, value any) {
	fmt.Fprintf(p.w, "%s %v\n", p.key.Render(key), value)
}

// Muted prints de-emphasized text.
func (p *Printer) Muted(format string, args ...any) {
	fmt.Fprintln(p.w, p.muted.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) outcome(o history.Outcome) string {
	text := fmt.Sprintf("%-12s", o)
	switch o {
	case history.Synced:
		return p.ok.Render(text)
	case history.BuildFailed, history.Inconsistent:
		return p.warn.Render(text)
	default:
		return p.fail.Render(text)
	}
}

// Runs prints one line per run, newest first as given.
func (p *Printer) Runs(runs []history.Run) {
	if len(runs) == 0 {
		p.Muted("no runs recorded")
		return
	}

	fmt.Fprintln(p.w, p.headers.Render(fmt.Sprintf("%-19s  %-12s  %-8s  %-8s  %s", "STARTED", "OUTCOME", "HEAD", "DURATION", "AUTHOR")))
	for _, run := range runs {
		head := run.Head
		if len(head) > 8 {
			head = head[:8]
		}
		fmt.Fprintf(p.w, "%-19s  %s  %-8s  %-8s  %s\n",
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			p.outcome(run.Outcome),
			head,
			run.Duration().Round(time.Second),
			run.Author)
		if len(run.AutoTranslated) > 0 {
			p.Muted("    auto-translated: %s", strings.Join(run.AutoTranslated, ", "))
		}
		if len(run.ManualTranslationNeeded) > 0 {
			p.Muted("    manual:          %s", strings.Join(run.ManualTranslationNeeded, ", "))
		}
		if run.Error != "" {
			p.Muted("    error:           %s", firstLine(run.Error))
		}
	}
}

// Counts prints the number of runs per outcome.
func (p *Printer) Counts(counts map[history.Outcome]int) {
	for _, o := range []history.Outcome{history.Synced, history.BuildFailed, history.Inconsistent, history.Failed, history.Fatal} {
		if n := counts[o]; n > 0 {
			fmt.Fprintf(p.w, "%s %d\n", p.outcome(o), n)
		}
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
