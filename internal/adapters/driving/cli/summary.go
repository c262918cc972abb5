package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
)

// summaryStyles colour the run summary. The zero value renders plain text.
type summaryStyles struct {
	job       lipgloss.Style
	ok        lipgloss.Style
	failed    lipgloss.Style
	cancelled lipgloss.Style
	muted     lipgloss.Style
}

func newSummaryStyles(colour bool) summaryStyles {
	if !colour {
		plain := lipgloss.NewStyle()
		return summaryStyles{job: plain, ok: plain, failed: plain, cancelled: plain, muted: plain}
	}
	return summaryStyles{
		job:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		ok:        lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1")),
		failed:    lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8")),
		cancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF")),
		muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086")),
	}
}

// terminalWidth returns the width of w if it is a terminal, or 0.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// renderSummaries prints one block per job. Colours are only used on terminals.
func renderSummaries(w io.Writer, summaries []*domain.RunSummary) {
	width := terminalWidth(w)
	styles := newSummaryStyles(width > 0)
	for _, s := range summaries {
		fmt.Fprintln(w, formatSummary(s, styles, width))
	}
}

func formatSummary(s *domain.RunSummary, st summaryStyles, width int) string {
	var b strings.Builder

	state := st.ok.Render(string(s.State))
	if s.State == domain.StateFailed {
		state = st.failed.Render(string(s.State))
	}
	fmt.Fprintf(&b, "%s %s: %d declared, %d unique, %s",
		st.job.Render("["+s.Job+"]"), state, s.Declared, s.Unique,
		st.ok.Render(fmt.Sprintf("%d resolved", s.Succeeded)))
	if s.Reused > 0 {
		fmt.Fprintf(&b, " (%d up to date)", s.Reused)
	}
	if s.Failed > 0 {
		fmt.Fprintf(&b, ", %s", st.failed.Render(fmt.Sprintf("%d failed", s.Failed)))
	}
	if s.Cancelled > 0 {
		fmt.Fprintf(&b, ", %s", st.cancelled.Render(fmt.Sprintf("%d cancelled", s.Cancelled)))
	}
	if s.Evicted > 0 {
		fmt.Fprintf(&b, ", %d evicted", s.Evicted)
	}
	fmt.Fprintf(&b, " %s", st.muted.Render(fmt.Sprintf("in %s", s.Duration().Round(time.Millisecond))))

	if s.Err != nil {
		fmt.Fprintf(&b, "\n  %s", st.failed.Render(s.Err.Error()))
	}
	for _, r := range s.Failures {
		line := fmt.Sprintf("%s %s: %s", r.Kind, describe(r), failureMessage(r))
		style := st.failed
		if r.Status == domain.StatusCancelled {
			style = st.cancelled
		}
		fmt.Fprintf(&b, "\n  %s", style.Render(truncate(line, width-2)))
	}
	return b.String()
}

// describe names a resolution by its declared target.
func describe(r domain.Resolution) string {
	switch {
	case r.URL != "" && r.Path != "":
		return r.URL + " -> " + r.Path
	case r.Path != "":
		return r.Path
	case r.URL != "":
		return r.URL
	}
	if len(r.QueryID) > 12 {
		return r.QueryID[:12]
	}
	return r.QueryID
}

func failureMessage(r domain.Resolution) string {
	if r.Failure == nil {
		return string(r.Status)
	}
	return r.Failure.Message
}

// truncate shortens s to width runes; width <= 0 disables truncation.
func truncate(s string, width int) string {
	runes := []rune(s)
	if width <= 0 || len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
